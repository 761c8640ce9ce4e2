package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, phases ...Phase) *Scheduler {
	t.Helper()
	s, err := New(phases, Options{}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunOnceRunsPhasesInOrder(t *testing.T) {
	var order []string
	s := newTestScheduler(t,
		Phase{Name: "discovery", Run: func(context.Context) error { order = append(order, "discovery"); return nil }},
		Phase{Name: "hype", Run: func(context.Context) error { order = append(order, "hype"); return nil }},
	)

	if !s.RunOnce(context.Background()) {
		t.Fatal("RunOnce returned false on an idle scheduler")
	}
	if len(order) != 2 || order[0] != "discovery" || order[1] != "hype" {
		t.Errorf("order = %v", order)
	}
	if s.Running() {
		t.Error("guard still held after run")
	}
}

func TestRunOnceIsNoOpWhileRunning(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	s := newTestScheduler(t, Phase{Name: "slow", Run: func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}})

	done := make(chan bool)
	go func() { done <- s.RunOnce(context.Background()) }()
	waitFor(t, s.Running)

	if s.RunOnce(context.Background()) {
		t.Error("second RunOnce ran while the first was in flight")
	}
	s.Trigger()
	time.Sleep(20 * time.Millisecond)

	close(release)
	if !<-done {
		t.Error("first RunOnce reported no run")
	}
	s.Stop()

	if got := runs.Load(); got != 1 {
		t.Errorf("phase ran %d times, want 1", got)
	}
}

func TestGuardReleasedAfterPanicAndError(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, Phase{Name: "flaky", Run: func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("unexpected nil")
		case 2:
			return errors.New("store unavailable")
		}
		return nil
	}})

	for i := 0; i < 3; i++ {
		if !s.RunOnce(context.Background()) {
			t.Fatalf("run %d skipped; guard not released", i+1)
		}
		if s.Running() {
			t.Fatalf("guard held after run %d", i+1)
		}
	}
}

func TestPhaseErrorAbortsRemainingPhases(t *testing.T) {
	var hypeRan bool
	s := newTestScheduler(t,
		Phase{Name: "discovery", Run: func(context.Context) error { return errors.New("boom") }},
		Phase{Name: "hype", Run: func(context.Context) error { hypeRan = true; return nil }},
	)
	s.RunOnce(context.Background())
	if hypeRan {
		t.Error("hype phase ran after discovery failed")
	}
}

func TestTriggerReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	s := newTestScheduler(t, Phase{Name: "slow", Run: func(context.Context) error {
		<-release
		return nil
	}})

	start := time.Now()
	s.Trigger()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Trigger blocked for %v", elapsed)
	}
	waitFor(t, s.Running)

	close(release)
	s.Stop()
	if s.Running() {
		t.Error("run still in flight after Stop")
	}
}

func TestStartWithStartupRun(t *testing.T) {
	var runs atomic.Int32
	s, err := New([]Phase{{Name: "count", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}}, Options{RunOnStartup: true, StartupDelay: 10 * time.Millisecond, Timezone: "UTC"}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	waitFor(t, func() bool { return runs.Load() == 1 })
	s.Stop()
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil, Options{Cron: "not a cron"}, discardLogger()); err == nil {
		t.Error("expected error for bad cron expression")
	}
	if _, err := New(nil, Options{Timezone: "Mars/Olympus"}, discardLogger()); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
