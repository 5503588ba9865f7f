// Package readiness blocks until every artifact on disk matches its expected digest.
package readiness

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/oshokin/mc-provisioner/internal/clock"
	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
	"github.com/oshokin/mc-provisioner/internal/progress"
)

// DefaultInterval is the pause between two checks.
const DefaultInterval = 5 * time.Second

// Gate re-verifies records until all of them are valid.
type Gate struct {
	// cache memoizes file digests between iterations.
	cache *digest.Cache
	// clock drives the poll interval.
	clock clock.Clock
	// interval is the pause between two checks.
	interval time.Duration
	// reporter renders the status table after each check.
	reporter progress.Reporter
	// changes wakes the gate before the interval elapses, nil when unused.
	changes <-chan struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithInterval sets the pause between checks.
func WithInterval(interval time.Duration) Option {
	return func(g *Gate) {
		if interval > 0 {
			g.interval = interval
		}
	}
}

// WithReporter sets where the status table is drawn.
func WithReporter(reporter progress.Reporter) Option {
	return func(g *Gate) {
		if reporter != nil {
			g.reporter = reporter
		}
	}
}

// WithChanges wakes the gate early whenever changes receives.
func WithChanges(changes <-chan struct{}) Option {
	return func(g *Gate) {
		g.changes = changes
	}
}

// NewGate creates a gate. A nil cache gets a private one.
func NewGate(cache *digest.Cache, opts ...Option) *Gate {
	if cache == nil {
		cache = digest.NewCache(digest.DefaultCacheExpiration)
	}

	g := &Gate{
		cache:    cache,
		clock:    clock.Real(),
		interval: DefaultInterval,
		reporter: progress.NewPlainReporter(os.Stdout),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Wait checks records immediately and then once per interval until all are
// valid. It returns the number of checks performed, or the context error.
func (g *Gate) Wait(ctx context.Context, records []*artifact.Record) (int, error) {
	for iteration := 1; ; iteration++ {
		g.check(ctx, records)

		if err := g.reporter.Report(rows(records)); err != nil {
			logger.WarnKV(ctx, "Failed to draw readiness table", "error", err)
		}

		if artifact.AllValid(records) {
			logger.InfoKV(ctx, "All artifacts are ready", "artifacts", len(records), "checks", iteration)

			return iteration, nil
		}

		select {
		case <-ctx.Done():
			return iteration, ctx.Err()
		case <-g.clock.After(g.interval):
		case <-g.changes:
			logger.Debug(ctx, "Woken by a filesystem change")
		}
	}
}

// check re-verifies records that are not confirmed yet. Digest equality is the
// only criterion, so an empty file is accepted when the expected digest is that
// of empty content.
func (g *Gate) check(ctx context.Context, records []*artifact.Record) {
	for _, record := range records {
		if record.Valid {
			continue
		}

		if _, err := os.Stat(record.LocalPath); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		ok, err := g.cache.MatchesFile(digest.Algorithm(record.Spec.Algorithm), record.LocalPath, record.Spec.ExpectedDigest)
		if err != nil {
			logger.WarnKV(ctx, "Failed to verify artifact", "artifact", record.Spec.Key(), "error", err)

			continue
		}

		if ok {
			record.MarkValid()
			logger.InfoKV(ctx, "Artifact confirmed", "artifact", record.Spec.Key(), "path", record.LocalPath)
		}
	}
}

func rows(records []*artifact.Record) []progress.Row {
	result := make([]progress.Row, 0, len(records))
	for _, record := range records {
		result = append(result, progress.Row{
			Path:   record.LocalPath,
			Valid:  record.Valid,
			Source: record.Spec.Source,
		})
	}

	return result
}
