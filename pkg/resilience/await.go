package resilience

import (
	"context"
	"fmt"
	"time"
)

// Await blocks until done is closed, ctx is cancelled, or timeout elapses.
// A non-positive timeout waits without a bound.
func Await(ctx context.Context, done <-chan struct{}, timeout time.Duration, name string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	}
}
