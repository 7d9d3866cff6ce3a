package driver

import (
	"context"
	"time"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/result"
)

// Watch reads an inference every interval until ctx is done, publishing
// each result for Latest. A failed read publishes an invalid result and
// the loop continues; when the breaker is open the next read waits at
// least until the cooldown ends.
//
// Watch blocks and returns nil once ctx is done. Only one Watch may run
// per Driver.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	go d.Watch(ctx, 100*time.Millisecond)
//
//	if r := d.Latest(); r != nil && r.Valid() {
//	    best, _ := r.Query().MinConfidence(80).Best()
//	    fmt.Println(best)
//	}
func (d *Driver) Watch(ctx context.Context, interval time.Duration) error {
	const op = "watch"
	if interval <= 0 {
		return fault.New(fault.KindInvalidArgument, op, "interval must be positive")
	}
	if !d.watching.CompareAndSwap(false, true) {
		return fault.New(fault.KindInvalidArgument, op, "already watching")
	}
	defer d.watching.Store(false)

	d.logger.Info("watch started", "interval", interval.String())
	defer d.logger.Info("watch stopped")

	for {
		wait := interval
		if _, err := d.ReadInference(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.latest.Store(result.NewInvalid(nil, d.config.Clock.Now()))
			if after, ok := fault.RetryAfter(err); ok && after > wait {
				wait = after
			}
		}

		if err := d.config.Clock.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}
