package gate

import (
	"sync"
	"time"
)

// trackingSet is the Gate's process-local in-flight set: a concurrent
// set of jobKeys with a self-healing TTL so a missed completion/failure
// event can never leave a key stuck forever.
type trackingSet struct {
	mu      sync.Mutex
	members map[string]*time.Timer
}

func newTrackingSet() *trackingSet {
	return &trackingSet{members: make(map[string]*time.Timer)}
}

// Contains reports whether jobKey is currently tracked as in-flight.
func (s *trackingSet) Contains(jobKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[jobKey]
	return ok
}

// Mark adds jobKey to the set and schedules its automatic removal after
// cleanupTimeout, regardless of whether Clear is ever called.
func (s *trackingSet) Mark(jobKey string, cleanupTimeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.members[jobKey]; ok {
		existing.Stop()
	}
	s.members[jobKey] = time.AfterFunc(cleanupTimeout, func() {
		s.Clear(jobKey)
	})
}

// Clear removes jobKey from the set, stopping its self-heal timer if it
// hasn't already fired.
func (s *trackingSet) Clear(jobKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.members[jobKey]; ok {
		t.Stop()
		delete(s.members, jobKey)
	}
}
