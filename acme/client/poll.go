package client

import (
	"context"
	"time"
)

// defaultPollInterval is used when a caller passes a non-positive interval.
const defaultPollInterval = time.Second

// pollDelay is the wait before the next poll: the caller's interval, or the
// server's Retry-After when that is longer.
func pollDelay(interval, retryAfter time.Duration) time.Duration {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if retryAfter > interval {
		return retryAfter
	}
	return interval
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
