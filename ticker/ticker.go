// Package ticker drives the Gate on a per-unit cadence: one independent
// ticker per registered unit, never blocking another unit's ticker,
// swallowing and logging failures rather than dying.
package ticker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/brightloop/sitecore/gate"
	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/queue"
	"github.com/brightloop/sitecore/registry"
	"github.com/brightloop/sitecore/timeline"
)

// Gate is the decision engine each tick consults.
type Gate interface {
	Evaluate(ctx context.Context, unitID string) gate.Decision
}

// Enqueuer is the subset of queue.Queue the ticker needs to act on a
// Gate decision.
type Enqueuer interface {
	Enqueue(ctx context.Context, spec queue.JobSpec) error
}

// Manager runs one ticker goroutine per unit in the registry.
type Manager struct {
	reg      *registry.Registry
	gate     Gate
	queue    Enqueuer
	timeline *timeline.Store

	mu       sync.Mutex
	lastTick map[string]time.Time
}

// NewManager constructs a Manager for every unit in reg.
func NewManager(reg *registry.Registry, gate Gate, enq Enqueuer) *Manager {
	return &Manager{
		reg:      reg,
		gate:     gate,
		queue:    enq,
		lastTick: make(map[string]time.Time),
	}
}

// WithTimeline attaches a timeline.Store that observes Gate decisions and
// enqueue outcomes. Optional; a Manager with no timeline attached still
// runs, it just doesn't narrate itself to /stream.
func (m *Manager) WithTimeline(t *timeline.Store) *Manager {
	m.timeline = t
	return m
}

// Run starts one ticker per unit and blocks until ctx is cancelled; every
// ticker goroutine exits within one tick period of cancellation.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, unit := range m.reg.Enumerate() {
		wg.Add(1)
		go func(u registry.EquipmentUnit) {
			defer wg.Done()
			m.runUnit(ctx, u)
		}(unit)
	}
	wg.Wait()
}

func (m *Manager) runUnit(ctx context.Context, unit registry.EquipmentUnit) {
	t := time.NewTicker(unit.TickPeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx, unit)
		}
	}
}

func (m *Manager) tick(ctx context.Context, unit registry.EquipmentUnit) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ticker: unit %q tick panicked: %v", unit.ID, r)
		}
	}()

	decision := m.gate.Evaluate(ctx, unit.ID)

	jobKey := registry.JobKey(unit.SiteID, unit.ID, unit.Kind)
	m.record(unit.ID, jobKey, timeline.StageDecided, map[string]string{"reason": decision.Reason})

	if !decision.Process {
		return
	}

	m.mu.Lock()
	m.lastTick[unit.ID] = time.Now()
	m.mu.Unlock()

	err := m.queue.Enqueue(ctx, queue.JobSpec{
		Job: model.Job{
			Key:      jobKey,
			SiteID:   unit.SiteID,
			UnitID:   unit.ID,
			Kind:     string(unit.Kind),
			Reason:   decision.Reason,
			Priority: decision.Priority,
		},
		StallTimeout: unit.MaxStaleness * 2,
		MaxRetries:   unit.Policy.MaxRetries,
		RetryBase:    unit.Policy.RetryBaseDelay,
		StallLimit:   unit.Policy.StallLimit,
	})
	if err != nil {
		if err == queue.ErrDuplicate {
			return
		}
		log.Printf("ticker: unit %q enqueue failed: %v", unit.ID, err)
		return
	}
	m.record(unit.ID, jobKey, timeline.StageEnqueued, nil)
}

func (m *Manager) record(unitID, jobKey string, stage timeline.Stage, metadata map[string]string) {
	if m.timeline == nil {
		return
	}
	m.timeline.Record(timeline.Event{
		UnitID:   unitID,
		JobKey:   jobKey,
		Stage:    stage,
		Metadata: metadata,
	})
}

// LastTick returns the instant of the unit's most recent tick that the
// Gate accepted for processing.
func (m *Manager) LastTick(unitID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastTick[unitID]
	return t, ok
}
