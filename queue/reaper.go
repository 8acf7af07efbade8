package queue

import (
	"context"
	"log"
	"time"
)

// StallObserver is notified of each job reclaimed by RunReaper. Optional;
// RunReaper works without one, it just doesn't narrate stalls anywhere
// but the log.
type StallObserver interface {
	ObserveStall(unitID, jobKey string)
}

// RunReaper periodically calls ReapStalled until ctx is cancelled. It is
// the background loop a site runtime starts alongside its worker pool.
// observer may be nil.
func RunReaper(ctx context.Context, q Queue, interval time.Duration, observer StallObserver) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := q.ReapStalled(ctx)
			if err != nil {
				log.Printf("queue: reap stalled jobs: %v", err)
				continue
			}
			if len(reclaimed) == 0 {
				continue
			}
			log.Printf("queue: reclaimed %d stalled job(s)", len(reclaimed))
			if observer == nil {
				continue
			}
			for _, job := range reclaimed {
				observer.ObserveStall(job.UnitID, job.Key)
			}
		}
	}
}
