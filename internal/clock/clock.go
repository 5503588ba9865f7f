package clock

import (
	"context"
	"time"
)

// Clock abstracts the time operations used by the pipeline.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d elapses.
	// If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Sleep blocks for d on the provided clock or until ctx is done.
// It returns ctx.Err() if the wait was interrupted.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
