package scheduler

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so backoff and cadence decisions are
// testable without real sleeps
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until the context is cancelled
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewRealClock returns the production wall clock
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
