package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu    sync.Mutex
	stall []string
}

func (r *recordingObserver) ObserveStall(unitID, jobKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stall = append(r.stall, unitID)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stall)
}

func TestRunReaperNotifiesObserverOfStalledJobs(t *testing.T) {
	q := NewMemQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spec := testSpec("a", 1)
	spec.StallTimeout = 1 * time.Millisecond
	spec.StallLimit = 5
	if err := q.Enqueue(ctx, spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.Reserve(ctx, "c1", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	observer := &recordingObserver{}
	go RunReaper(ctx, q, 5*time.Millisecond, observer)

	deadline := time.Now().Add(time.Second)
	for observer.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if observer.count() != 1 {
		t.Fatalf("expected observer notified of 1 stalled job, got %d", observer.count())
	}
}

func TestRunReaperToleratesNilObserver(t *testing.T) {
	q := NewMemQueue()
	ctx, cancel := context.WithCancel(context.Background())

	go RunReaper(ctx, q, 5*time.Millisecond, nil)
	time.Sleep(20 * time.Millisecond)
	cancel()
}
