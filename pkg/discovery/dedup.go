package discovery

import (
	"context"
	"log/slog"
	"strings"

	"github.com/seo-oobx/invest-curation/internal/store"
)

// DedupPrefixLen is how many leading characters of a title are compared.
const DedupPrefixLen = 40

// TitleFinder looks up events by a fuzzy title prefix.
type TitleFinder interface {
	FindByTitlePrefix(ctx context.Context, prefix string) ([]store.Event, error)
}

// DedupGuard reports whether an event resembling a title already exists.
// The match is deliberately loose: a shared 40-character prefix is enough.
type DedupGuard struct {
	finder TitleFinder
	logger *slog.Logger
}

// NewDedupGuard creates a dedup guard.
func NewDedupGuard(finder TitleFinder, logger *slog.Logger) *DedupGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupGuard{finder: finder, logger: logger}
}

// Exists reports whether a stored event collides with title. Lookup errors
// are logged and reported as no collision.
func (g *DedupGuard) Exists(ctx context.Context, title string) bool {
	prefix := titlePrefix(title)
	if prefix == "" {
		return false
	}

	events, err := g.finder.FindByTitlePrefix(ctx, prefix)
	if err != nil {
		g.logger.Warn("dedup lookup failed", "title", title, "err", err)
		return false
	}
	return len(events) > 0
}

func titlePrefix(title string) string {
	title = strings.TrimSpace(title)
	r := []rune(title)
	if len(r) > DedupPrefixLen {
		r = r[:DedupPrefixLen]
	}
	return string(r)
}
