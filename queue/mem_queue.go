package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/brightloop/sitecore/model"
)

// entry is one waiting job plus the bookkeeping the Queue needs for
// retries and stall recovery.
type entry struct {
	spec       JobSpec
	stallCount int
	retryCount int
}

// priorityHeap orders entries by descending priority (spec priorities run
// 0..20 with 20 most urgent), then by earliest enqueue time.
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].spec.Job.Priority != h[j].spec.Job.Priority {
		return h[i].spec.Job.Priority > h[j].spec.Job.Priority
	}
	return h[i].spec.Job.EnqueuedAt.Before(h[j].spec.Job.EnqueuedAt)
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type activeEntry struct {
	entry    *entry
	deadline time.Time
}

// MemQueue is an in-process, heap-backed Queue implementation. It
// satisfies the same dedup/retry/stall contract as RedisQueue and is used
// for tests and single-process/dev deployments where a Redis backend
// isn't available.
type MemQueue struct {
	mu sync.Mutex

	waiting priorityHeap
	active  map[string]*activeEntry

	completed []model.Job
	failed    []model.Job
}

const (
	completedRetention = 10
	failedRetention     = 25
)

// NewMemQueue constructs an empty MemQueue.
func NewMemQueue() *MemQueue {
	q := &MemQueue{active: make(map[string]*activeEntry)}
	heap.Init(&q.waiting)
	return q
}

func (q *MemQueue) isTracked(key string) bool {
	if _, ok := q.active[key]; ok {
		return true
	}
	for _, e := range q.waiting {
		if e.spec.Job.Key == key {
			return true
		}
	}
	return false
}

func (q *MemQueue) Enqueue(_ context.Context, spec JobSpec) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isTracked(spec.Job.Key) {
		return ErrDuplicate
	}
	if spec.Job.EnqueuedAt.IsZero() {
		spec.Job.EnqueuedAt = time.Now()
	}
	heap.Push(&q.waiting, &entry{spec: spec})
	return nil
}

func (q *MemQueue) Reserve(ctx context.Context, _ string, timeout time.Duration) (*model.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.waiting) > 0 {
			e := heap.Pop(&q.waiting).(*entry)
			q.active[e.spec.Job.Key] = &activeEntry{entry: e, deadline: time.Now().Add(e.spec.StallTimeout)}
			job := e.spec.Job
			q.mu.Unlock()
			return &job, nil
		}
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (q *MemQueue) Ack(_ context.Context, jobKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ae, ok := q.active[jobKey]
	if !ok {
		return nil
	}
	delete(q.active, jobKey)
	q.completed = append(q.completed, ae.entry.spec.Job)
	if len(q.completed) > completedRetention {
		q.completed = q.completed[len(q.completed)-completedRetention:]
	}
	return nil
}

func (q *MemQueue) Fail(_ context.Context, jobKey string, _ error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ae, ok := q.active[jobKey]
	if !ok {
		return nil
	}
	delete(q.active, jobKey)

	e := ae.entry
	e.retryCount++
	if e.retryCount > e.spec.MaxRetries {
		q.pushFailedLocked(e.spec.Job)
		return nil
	}

	// Exponential backoff: requeue after a delay. For the in-memory queue
	// this is modeled with a timer rather than a separate delayed set.
	delay := backoffDelay(e.spec.RetryBase, e.retryCount)
	e.spec.Job.Attempt = e.retryCount
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.isTracked(e.spec.Job.Key) {
			return
		}
		heap.Push(&q.waiting, e)
	})
	return nil
}

func (q *MemQueue) pushFailedLocked(job model.Job) {
	q.failed = append(q.failed, job)
	if len(q.failed) > failedRetention {
		q.failed = q.failed[len(q.failed)-failedRetention:]
	}
}

func (q *MemQueue) Stats(_ context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Waiting:   len(q.waiting),
		Active:    len(q.active),
		Completed: len(q.completed),
		Failed:    len(q.failed),
	}, nil
}

func (q *MemQueue) ReapStalled(_ context.Context) ([]model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var reclaimed []model.Job
	for key, ae := range q.active {
		if now.Before(ae.deadline) {
			continue
		}
		delete(q.active, key)

		e := ae.entry
		e.stallCount++
		if e.stallCount > e.spec.StallLimit {
			q.pushFailedLocked(e.spec.Job)
			continue
		}
		heap.Push(&q.waiting, e)
		reclaimed = append(reclaimed, e.spec.Job)
	}
	return reclaimed, nil
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
