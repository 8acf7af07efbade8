// Package timeline keeps a bounded, queryable history of Gate decisions
// and job outcomes for diagnostics, bounded to avoid unbounded growth
// over a long-running process.
package timeline

import (
	"sync"
	"time"
)

// Stage names a point in a job's life, from Gate decision through
// command write.
type Stage string

const (
	StageDecided      Stage = "DECIDED"
	StageEnqueued     Stage = "ENQUEUED"
	StageReserved     Stage = "RESERVED"
	StageInvoked      Stage = "INVOKED"
	StageCommitted    Stage = "COMMITTED"
	StageFailed       Stage = "FAILED"
	StageStalled      Stage = "STALLED"
)

// Event records one timeline entry for a unit.
type Event struct {
	UnitID    string            `json:"unitId"`
	JobKey    string            `json:"jobKey,omitempty"`
	Stage     Stage             `json:"stage"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// maxEvents bounds the ring so a long-running process doesn't grow this
// store without limit; oldest events are dropped first.
const maxEvents = 5000

// Store is an append-only, mutex-guarded ring of recent Events.
type Store struct {
	mu     sync.RWMutex
	events []Event
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{events: make([]Event, 0, maxEvents)}
}

// Record appends e, stamping Timestamp if unset, and evicts the oldest
// entry once the ring is full.
func (s *Store) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if len(s.events) >= maxEvents {
		s.events = s.events[1:]
	}
	s.events = append(s.events, e)
}

// ForUnit returns all recorded events for unitID, oldest first.
func (s *Store) ForUnit(unitID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.UnitID == unitID {
			out = append(out, e)
		}
	}
	return out
}

// ForJob returns all recorded events for jobKey, oldest first.
func (s *Store) ForJob(jobKey string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.JobKey == jobKey {
			out = append(out, e)
		}
	}
	return out
}

// ObserveStall records a StageStalled event for unitID/jobKey. Satisfies
// queue.StallObserver so RunReaper can narrate reclaimed jobs without
// this package importing queue.
func (s *Store) ObserveStall(unitID, jobKey string) {
	s.Record(Event{UnitID: unitID, JobKey: jobKey, Stage: StageStalled})
}

// Recent returns the n most recently recorded events, newest last.
func (s *Store) Recent(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}
