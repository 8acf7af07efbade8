package resilience

import (
	"context"
	"time"
)

// Pinger is the subset of a backend client this package needs to probe
// reachability. redis.Client and pgxpool.Pool both satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// funcPinger adapts a plain ping function to Pinger. pgxpool.Pool.Ping
// already has this shape; redis.Client.Ping returns a *StatusCmd instead,
// so callers wrap it: NewPinger(func(ctx) error { return rdb.Ping(ctx).Err() }).
type funcPinger struct {
	ping func(ctx context.Context) error
}

func (p funcPinger) Ping(ctx context.Context) error { return p.ping(ctx) }

// NewPinger adapts a ping function to a Pinger.
func NewPinger(ping func(ctx context.Context) error) Pinger {
	return funcPinger{ping: ping}
}

// RunHealthChecks probes queue and store periodically until ctx is
// cancelled, marking d's availability accordingly. Either may be nil if
// the corresponding backend is not configured.
func RunHealthChecks(ctx context.Context, d *DegradedMode, queue, store Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if queue != nil {
				if err := queue.Ping(ctx); err != nil {
					d.MarkQueueUnavailable()
				} else {
					d.MarkQueueAvailable()
				}
			}
			if store != nil {
				if err := store.Ping(ctx); err != nil {
					d.MarkStoreUnavailable()
				} else {
					d.MarkStoreAvailable()
				}
			}
		}
	}
}
