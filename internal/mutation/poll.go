package mutation

import (
	"context"
	"time"

	"dispatch-dashboard/internal/logging"
)

// PollPositions calls RefreshPositions until ctx is done. The next tick
// waits minInterval, or half of the last refresh's duration when that is
// longer, so a slow feed is not hammered. Each refresh is bounded by
// timeout. Errors are logged and polling continues.
func (c *Coordinator) PollPositions(ctx context.Context, minInterval, timeout time.Duration) {
	if c.tracker == nil || minInterval <= 0 {
		return
	}
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			c.pollOnce(ctx, timeout)
			t.Reset(nextInterval(time.Since(start), minInterval))
		}
	}
}

func (c *Coordinator) pollOnce(ctx context.Context, timeout time.Duration) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	moved, err := c.RefreshPositions(ctx)
	if err != nil {
		c.log.Warn(ctx, "position poll failed", logging.Err(err))
		return
	}
	if moved > 0 {
		c.log.Debug(ctx, "positions refreshed", logging.Int("moved", moved))
	}
}

func nextInterval(elapsed, minInterval time.Duration) time.Duration {
	return max(elapsed/2, minInterval)
}
