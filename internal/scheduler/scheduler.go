package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultCron runs the job daily at midnight.
const DefaultCron = "0 0 * * *"

// Phase is one step of the daily job. Phases run in order; an error aborts
// the remaining phases of that run.
type Phase struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options configures when the job runs.
type Options struct {
	Cron         string
	Timezone     string
	RunOnStartup bool
	StartupDelay time.Duration
}

// Scheduler runs the job on a cron schedule and on demand. At most one run
// is in flight at any time; a trigger while running is dropped.
type Scheduler struct {
	phases []Phase
	opts   Options
	loc    *time.Location
	logger *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	ctx  context.Context
	cron *cron.Cron
}

// New creates a scheduler for the given phases.
func New(phases []Phase, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cron == "" {
		opts.Cron = DefaultCron
	}
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = 5 * time.Second
	}
	if _, err := cron.ParseStandard(opts.Cron); err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", opts.Cron, err)
	}

	loc := time.Local
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
		}
		loc = l
	}

	return &Scheduler{
		phases: phases,
		opts:   opts,
		loc:    loc,
		logger: logger,
		ctx:    context.Background(),
	}, nil
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// RunOnce runs every phase if no other run is in flight. It reports whether
// this call performed the run. The guard is released on every exit path,
// including a panic inside a phase.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("job already running, trigger ignored")
		return false
	}
	defer s.running.Store(false)

	ran = true
	log := s.logger.With("run_id", uuid.NewString())
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("job crashed", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	log.Info("job started", "phases", len(s.phases))
	for _, p := range s.phases {
		phaseStart := time.Now()
		if err := p.Run(ctx); err != nil {
			log.Error("job aborted", "phase", p.Name, "err", err)
			return ran
		}
		log.Info("phase completed", "phase", p.Name, "elapsed", time.Since(phaseStart).Round(time.Millisecond))
	}
	log.Info("job completed", "elapsed", time.Since(started).Round(time.Millisecond))
	return ran
}

// Trigger starts a run in the background and returns immediately.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)
	}()
}

// Start registers the cron schedule and, when configured, a startup run.
// Runs use ctx; cancelling it interrupts throttle sleeps of a run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx = ctx

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.opts.Cron, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started", "cron", s.opts.Cron, "timezone", s.loc.String(),
		"run_on_startup", s.opts.RunOnStartup)

	if s.opts.RunOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			t := time.NewTimer(s.opts.StartupDelay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			s.logger.Info("startup run")
			s.RunOnce(ctx)
		}()
	}
	return nil
}

// Stop halts the cron schedule and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
