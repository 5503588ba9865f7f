package acquire

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/oshokin/mc-provisioner/internal/clock"
	"github.com/oshokin/mc-provisioner/internal/logger"
)

// clockLayout is the wall-clock format used in pacing log lines.
const clockLayout = "15:04:05"

// Waiter blocks between two fetches.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Pacer sleeps a uniformly random whole number of minutes in [min, max].
type Pacer struct {
	// clock provides the current time and the sleep.
	clock clock.Clock
	// minMinutes is the inclusive lower bound.
	minMinutes int
	// maxMinutes is the inclusive upper bound.
	maxMinutes int
	// intN returns a uniform integer in [0, n).
	intN func(n int) int
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithRandom replaces the random source, mostly for tests.
func WithRandom(intN func(n int) int) PacerOption {
	return func(p *Pacer) {
		if intN != nil {
			p.intN = intN
		}
	}
}

// NewPacer creates a pacer waiting between minMinutes and maxMinutes inclusive.
func NewPacer(c clock.Clock, minMinutes, maxMinutes int, opts ...PacerOption) *Pacer {
	if maxMinutes < minMinutes {
		maxMinutes = minMinutes
	}

	p := &Pacer{
		clock:      c,
		minMinutes: minMinutes,
		maxMinutes: maxMinutes,
		intN:       rand.IntN,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Choose picks the next pause.
func (p *Pacer) Choose() time.Duration {
	minutes := p.minMinutes + p.intN(p.maxMinutes-p.minMinutes+1)

	return time.Duration(minutes) * time.Minute
}

// Wait logs the chosen pause and the time downloads resume, then sleeps.
func (p *Pacer) Wait(ctx context.Context) error {
	wait := p.Choose()
	now := p.clock.Now()

	logger.InfoKV(ctx, "Waiting before downloading next file",
		"wait_minutes", int(wait/time.Minute),
		"now", now.Format(clockLayout),
		"resume_at", now.Add(wait).Format(clockLayout))

	return clock.Sleep(ctx, p.clock, wait)
}
