package utils

import (
	"context"
	"time"
)

// ContextSleep pauses for d. It returns early with ctx.Err() when the
// context ends first and nil after a full sleep.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
