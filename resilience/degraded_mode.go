// Package resilience tracks backend availability so the Gate can react
// to a Redis/queue or Postgres disconnect without guessing, rather than
// silently stalling. Scoped to reachability, not write replay — the
// Queue and stores handle their own retry.
package resilience

import (
	"log"
	"sync"
	"time"

	"github.com/brightloop/sitecore/observability"
)

// DegradedMode tracks whether the queue backend (Redis) and the
// durable stores (Postgres) are currently reachable.
type DegradedMode struct {
	mu sync.RWMutex

	queueAvailable bool
	storeAvailable bool

	lastQueueCheck time.Time
	lastStoreCheck time.Time
}

// NewDegradedMode starts with both backends assumed available.
func NewDegradedMode() *DegradedMode {
	return &DegradedMode{queueAvailable: true, storeAvailable: true}
}

// MarkQueueUnavailable records a Redis/queue-backend disconnect.
func (d *DegradedMode) MarkQueueUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queueAvailable {
		log.Printf("resilience: queue backend unavailable, entering degraded mode")
	}
	d.queueAvailable = false
	d.lastQueueCheck = time.Now()
	observability.DegradedMode.WithLabelValues("queue").Set(1)
}

// MarkQueueAvailable records Redis/queue-backend recovery.
func (d *DegradedMode) MarkQueueAvailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.queueAvailable {
		log.Printf("resilience: queue backend recovered")
	}
	d.queueAvailable = true
	d.lastQueueCheck = time.Now()
	observability.DegradedMode.WithLabelValues("queue").Set(0)
}

// Available reports whether the queue backend is currently reachable.
// Implements gate.QueueAvailability.
func (d *DegradedMode) Available() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queueAvailable
}

// MarkStoreUnavailable records a Postgres disconnect.
func (d *DegradedMode) MarkStoreUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.storeAvailable {
		log.Printf("resilience: durable store unavailable, entering degraded mode")
	}
	d.storeAvailable = false
	d.lastStoreCheck = time.Now()
	observability.DegradedMode.WithLabelValues("store").Set(1)
}

// MarkStoreAvailable records Postgres recovery.
func (d *DegradedMode) MarkStoreAvailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.storeAvailable {
		log.Printf("resilience: durable store recovered")
	}
	d.storeAvailable = true
	d.lastStoreCheck = time.Now()
	observability.DegradedMode.WithLabelValues("store").Set(0)
}

// StoreAvailable reports whether the durable stores are currently
// reachable.
func (d *DegradedMode) StoreAvailable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.storeAvailable
}

// Status summarizes current degraded-mode state for the /status endpoint.
type Status struct {
	QueueAvailable bool      `json:"queueAvailable"`
	StoreAvailable bool      `json:"storeAvailable"`
	LastQueueCheck time.Time `json:"lastQueueCheck"`
	LastStoreCheck time.Time `json:"lastStoreCheck"`
}

// Snapshot returns the current Status.
func (d *DegradedMode) Snapshot() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{
		QueueAvailable: d.queueAvailable,
		StoreAvailable: d.storeAvailable,
		LastQueueCheck: d.lastQueueCheck,
		LastStoreCheck: d.lastStoreCheck,
	}
}
