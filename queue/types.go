// Package queue implements a persistent, priority-ordered, deduplicated
// Job store: at most one live job per jobKey, retries with exponential
// backoff, bounded retention of completed/failed jobs, and stall
// recovery for jobs whose consumer never acks or fails.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/brightloop/sitecore/model"
)

// ErrDuplicate is returned by Enqueue when a job with the same key is
// already waiting or active.
var ErrDuplicate = errors.New("queue: job already waiting or active")

// JobSpec is what a caller submits to Enqueue: the deterministic key, the
// payload, its priority, and the policy knobs the Queue needs to run
// retries and stall detection without consulting the Registry itself.
type JobSpec struct {
	Job          model.Job
	StallTimeout time.Duration // reservation deadline: job is stalled if not ack'd/failed within this
	MaxRetries   int
	RetryBase    time.Duration
	StallLimit   int
}

// Stats reports queue depths for observability.
type Stats struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
}

// Queue is the contract the Gate, Worker Pool, and reaper depend on.
type Queue interface {
	// Enqueue inserts a job at the given priority. Returns ErrDuplicate if
	// a job with the same key is already waiting or active; callers treat
	// that as a success no-op.
	Enqueue(ctx context.Context, spec JobSpec) error

	// Reserve blocks (up to timeout) for the next job in priority order,
	// or returns (nil, nil) if none became available.
	Reserve(ctx context.Context, consumerID string, timeout time.Duration) (*model.Job, error)

	// Ack marks a reserved job as successfully completed and removes it.
	Ack(ctx context.Context, jobKey string) error

	// Fail marks a reserved job as failed. If retries remain, it is
	// requeued after exponential backoff; otherwise it is moved to the
	// failed set.
	Fail(ctx context.Context, jobKey string, cause error) error

	// Stats returns current queue depths.
	Stats(ctx context.Context) (Stats, error)

	// ReapStalled scans for jobs whose reservation deadline has elapsed
	// and returns them to waiting (or to failed, past the stall limit).
	// Returns the jobs returned to waiting. Called periodically by a
	// background reaper.
	ReapStalled(ctx context.Context) (reclaimed []model.Job, err error)
}
