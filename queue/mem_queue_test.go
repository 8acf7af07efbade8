package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightloop/sitecore/model"
)

func testSpec(key string, priority int) JobSpec {
	return JobSpec{
		Job:        model.Job{Key: key, Priority: priority},
		StallTimeout: 50 * time.Millisecond,
		MaxRetries: 2,
		RetryBase:  5 * time.Millisecond,
		StallLimit: 2,
	}
}

func TestMemQueueEnqueueDedup(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	if err := q.Enqueue(ctx, testSpec("a", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Enqueue(ctx, testSpec("a", 5)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMemQueueReservePriorityOrder(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	_ = q.Enqueue(ctx, testSpec("low", 1))
	_ = q.Enqueue(ctx, testSpec("high", 20))
	_ = q.Enqueue(ctx, testSpec("mid", 10))

	job, err := q.Reserve(ctx, "c1", time.Second)
	if err != nil || job == nil {
		t.Fatalf("unexpected reserve result: job=%v err=%v", job, err)
	}
	if job.Key != "high" {
		t.Fatalf("expected highest priority job first, got %q", job.Key)
	}
}

func TestMemQueueAckRemovesFromActive(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	_ = q.Enqueue(ctx, testSpec("a", 1))
	job, _ := q.Reserve(ctx, "c1", time.Second)
	if job == nil {
		t.Fatalf("expected a job")
	}
	if err := q.Ack(ctx, job.Key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, _ := q.Stats(ctx)
	if stats.Active != 0 || stats.Completed != 1 {
		t.Fatalf("unexpected stats after ack: %+v", stats)
	}

	// Key is free again after completion.
	if err := q.Enqueue(ctx, testSpec("a", 1)); err != nil {
		t.Fatalf("expected re-enqueue after ack to succeed, got %v", err)
	}
}

func TestMemQueueFailExhaustsRetriesToFailed(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	spec := testSpec("a", 1)
	spec.MaxRetries = 0
	_ = q.Enqueue(ctx, spec)
	job, _ := q.Reserve(ctx, "c1", time.Second)
	if job == nil {
		t.Fatalf("expected a job")
	}

	if err := q.Fail(ctx, job.Key, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, _ := q.Stats(ctx)
	if stats.Failed != 1 {
		t.Fatalf("expected job moved to failed, got stats %+v", stats)
	}
}

func TestMemQueueReapStalledReturnsToWaiting(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	spec := testSpec("a", 1)
	spec.StallTimeout = 1 * time.Millisecond
	spec.StallLimit = 5
	_ = q.Enqueue(ctx, spec)
	if _, err := q.Reserve(ctx, "c1", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	reclaimed, err := q.ReapStalled(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reclaimed) != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", len(reclaimed))
	}

	stats, _ := q.Stats(ctx)
	if stats.Waiting != 1 || stats.Active != 0 {
		t.Fatalf("unexpected stats after reap: %+v", stats)
	}
}

func TestMemQueueReapStalledPastLimitFails(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	spec := testSpec("a", 1)
	spec.StallTimeout = 1 * time.Millisecond
	spec.StallLimit = 0
	_ = q.Enqueue(ctx, spec)
	_, _ = q.Reserve(ctx, "c1", time.Second)

	time.Sleep(5 * time.Millisecond)
	reclaimed, err := q.ReapStalled(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("expected 0 reclaimed (past stall limit), got %d", len(reclaimed))
	}

	stats, _ := q.Stats(ctx)
	if stats.Failed != 1 {
		t.Fatalf("expected job failed past stall limit, got %+v", stats)
	}
}

func TestMemQueueReserveTimesOutWhenEmpty(t *testing.T) {
	q := NewMemQueue()
	ctx := context.Background()

	start := time.Now()
	job, err := q.Reserve(ctx, "c1", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job on timeout, got %+v", job)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected Reserve to wait out the timeout")
	}
}
