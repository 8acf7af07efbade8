package gate

import (
	"sync"

	"github.com/brightloop/sitecore/model"
)

// snapshotStore holds, per unit, the MetricSnapshot observed on the
// previous Gate evaluation, used only for change detection. In-memory,
// per-process; never persisted.
type snapshotStore struct {
	mu   sync.Mutex
	prev map[string]model.MetricSnapshot
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{prev: make(map[string]model.MetricSnapshot)}
}

func (s *snapshotStore) Get(unitID string) (model.MetricSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.prev[unitID]
	return snap, ok
}

func (s *snapshotStore) Set(unitID string, snap model.MetricSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev[unitID] = snap.Clone()
}
