// Package gate implements the scheduling decision engine: the dominant
// component of the pipeline, evaluating seven ordered rules per tick and
// returning whether, why, and at what priority a unit should be
// enqueued for recomputation.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brightloop/sitecore/incident"
	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/observability"
	"github.com/brightloop/sitecore/registry"
)

// Decision is the Gate's public output: whether to enqueue, why, and at
// what priority.
type Decision struct {
	Process  bool
	Reason   string
	Priority int
}

// MetricSource fetches a fresh MetricSnapshot for a unit.
type MetricSource interface {
	FetchSnapshot(ctx context.Context, unitID string, siteID int) (model.MetricSnapshot, error)
}

// SettingsSource resolves the current SettingsBundle for a unit, which
// carries the setpoint used by the deviation rule.
type SettingsSource interface {
	FetchSettings(ctx context.Context, unitID string) (model.SettingsBundle, error)
}

// UICommandChecker answers whether a unit has a UI command newer than a
// given instant.
type UICommandChecker interface {
	HasRecent(ctx context.Context, unitID string, since time.Time) (bool, error)
}

// QueueAvailability reports whether the Queue backend is currently
// reachable, letting the Gate short-circuit during a backend disconnect.
type QueueAvailability interface {
	Available() bool
}

// IncidentRecorder captures a diagnostic snapshot when the Gate falls
// back to its error path. Optional; a nil recorder is a no-op.
type IncidentRecorder interface {
	Capture(report incident.Report)
}

const uiCheckThrottle = 30 * time.Second
const uiCheckWindow = 5 * time.Minute

type uiCheckCacheEntry struct {
	checkedAt time.Time
	result    bool
}

// Gate is the decision engine for one site. It is safe for concurrent
// use by multiple per-unit tickers.
type Gate struct {
	reg       *registry.Registry
	metrics   MetricSource
	settings  SettingsSource
	uiCheck   UICommandChecker
	queueAvail QueueAvailability
	incidents IncidentRecorder

	tracking  *trackingSet
	snapshots *snapshotStore

	mu          sync.Mutex
	lastEnqueue map[string]time.Time
	uiCache     map[string]uiCheckCacheEntry
}

// New constructs a Gate for the given registry and collaborators.
// queueAvail and incidents may be nil.
func New(reg *registry.Registry, metrics MetricSource, settings SettingsSource, uiCheck UICommandChecker, queueAvail QueueAvailability, incidents IncidentRecorder) *Gate {
	return &Gate{
		reg:        reg,
		metrics:    metrics,
		settings:   settings,
		uiCheck:    uiCheck,
		queueAvail: queueAvail,
		incidents:  incidents,
		tracking:   newTrackingSet(),
		snapshots:  newSnapshotStore(),
		lastEnqueue: make(map[string]time.Time),
		uiCache:     make(map[string]uiCheckCacheEntry),
	}
}

// ClearInFlight removes jobKey from the in-flight tracking set. Called by
// the worker pool after a job is ack'd or failed.
func (g *Gate) ClearInFlight(jobKey string) {
	g.tracking.Clear(jobKey)
}

// Evaluate runs the seven ordered rules for unitID and returns the first
// match. It never returns an error to the caller: any internal failure is
// converted into the "gate error" fallback decision.
func (g *Gate) Evaluate(ctx context.Context, unitID string) Decision {
	start := time.Now()
	decision := g.evaluate(ctx, unitID)
	observability.TickerLoopDuration.Observe(time.Since(start).Seconds())
	observability.GateDecisions.WithLabelValues(fmt.Sprintf("%t", decision.Process), reasonCategory(decision.Reason)).Inc()
	return decision
}

// reasonCategory strips the dynamic suffix off reasons like "temperature
// deviation: 2.5°F" so the reason cardinality stays bounded for metrics.
func reasonCategory(reason string) string {
	if idx := strings.Index(reason, ":"); idx >= 0 {
		return reason[:idx]
	}
	return reason
}

func (g *Gate) evaluate(ctx context.Context, unitID string) Decision {
	unit, ok := g.reg.Lookup(unitID)
	if !ok {
		return Decision{Process: false, Reason: fmt.Sprintf("unknown unit %q", unitID), Priority: 0}
	}
	jobKey := registry.JobKey(unit.SiteID, unitID, unit.Kind)

	if g.queueAvail != nil && !g.queueAvail.Available() {
		return Decision{Process: false, Reason: "queue unavailable", Priority: 0}
	}

	decision, err := g.evaluateRules(ctx, unit, jobKey)
	if err != nil {
		if g.incidents != nil {
			g.incidents.Capture(incident.Report{
				UnitID: unitID,
				Reason: fmt.Sprintf("gate error: %v", err),
				At:     time.Now(),
			})
		}
		g.markInFlight(jobKey, unit.GateTimeout)
		g.touchLastEnqueue(unitID)
		return Decision{Process: true, Reason: fmt.Sprintf("gate error: %v", err), Priority: 1}
	}
	return decision
}

func (g *Gate) evaluateRules(ctx context.Context, unit registry.EquipmentUnit, jobKey string) (Decision, error) {
	// Rule 1: deduplication.
	if g.tracking.Contains(jobKey) {
		return Decision{Process: false, Reason: "already queued", Priority: 0}, nil
	}

	// Rule 2: UI-command recency, throttled to once per unit per 30s.
	hasRecentUI, err := g.checkUICommand(ctx, unit.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("ui command check: %w", err)
	}
	if hasRecentUI {
		g.markInFlight(jobKey, unit.GateTimeout)
		g.touchLastEnqueue(unit.ID)
		return Decision{Process: true, Reason: "recent UI commands", Priority: 10}, nil
	}

	// Fresh metrics read, needed by rules 3-5.
	snap, err := g.metrics.FetchSnapshot(ctx, unit.ID, unit.SiteID)
	if err != nil {
		return Decision{}, fmt.Errorf("fetch metrics: %w", err)
	}

	// Rule 3: safety.
	if reason, fired := safetyPredicate(unit.Kind, g.reg.Site().Class, snap); fired {
		g.markInFlight(jobKey, unit.GateTimeout)
		g.touchLastEnqueue(unit.ID)
		return Decision{Process: true, Reason: "safety: " + reason, Priority: 20}, nil
	}

	// Rule 4: temperature deviation.
	if field, ok := controlTempField(unit.Kind); ok {
		threshold, hasThreshold := tightControlThreshold(unit.Kind)
		if hasThreshold {
			threshold = overlay(g.reg.Site().Class, threshold)
			measured, hasMeasured := snap.Get(field)
			setpoint, hasSetpoint := g.currentSetpoint(ctx, unit.ID)
			if hasMeasured && hasSetpoint {
				delta := measured - setpoint
				if delta < 0 {
					delta = -delta
				}
				if delta >= threshold {
					g.markInFlight(jobKey, unit.GateTimeout)
					g.touchLastEnqueue(unit.ID)
					return Decision{
						Process:  true,
						Reason:   fmt.Sprintf("temperature deviation: %.1f°F", delta),
						Priority: 15,
					}, nil
				}
			}
		}
	}

	// Rule 5: change vs last snapshot. Always records the new snapshot.
	prev, hadPrev := g.snapshots.Get(unit.ID)
	g.snapshots.Set(unit.ID, snap)
	if hadPrev {
		if field, delta, changed := significantChange(unit.Kind, prev, snap); changed {
			g.markInFlight(jobKey, unit.GateTimeout)
			g.touchLastEnqueue(unit.ID)
			return Decision{
				Process:  true,
				Reason:   fmt.Sprintf("significant deviation: %s changed by %.2f", field, delta),
				Priority: 5,
			}, nil
		}
	}

	// Rule 6: maximum staleness.
	if g.staleness(unit.ID) > unit.MaxStaleness {
		g.markInFlight(jobKey, unit.GateTimeout)
		g.touchLastEnqueue(unit.ID)
		return Decision{Process: true, Reason: "max staleness exceeded", Priority: 1}, nil
	}

	// Rule 7: default.
	return Decision{Process: false, Reason: "no significant changes", Priority: 0}, nil
}

func (g *Gate) checkUICommand(ctx context.Context, unitID string) (bool, error) {
	if g.uiCheck == nil {
		return false, nil
	}

	g.mu.Lock()
	if cached, ok := g.uiCache[unitID]; ok && time.Since(cached.checkedAt) < uiCheckThrottle {
		g.mu.Unlock()
		return cached.result, nil
	}
	g.mu.Unlock()

	since := time.Now().Add(-uiCheckWindow)
	result, err := g.uiCheck.HasRecent(ctx, unitID, since)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	g.uiCache[unitID] = uiCheckCacheEntry{checkedAt: time.Now(), result: result}
	g.mu.Unlock()
	return result, nil
}

func (g *Gate) currentSetpoint(ctx context.Context, unitID string) (float64, bool) {
	if g.settings == nil {
		return 0, false
	}
	bundle, err := g.settings.FetchSettings(ctx, unitID)
	if err != nil {
		return 0, false
	}
	cv, ok := bundle.Values["setpoint"]
	if !ok {
		return 0, false
	}
	return cv.Number()
}

func (g *Gate) markInFlight(jobKey string, gateTimeout time.Duration) {
	g.tracking.Mark(jobKey, gateTimeout)
}

func (g *Gate) touchLastEnqueue(unitID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastEnqueue[unitID] = time.Now()
}

func (g *Gate) staleness(unitID string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastEnqueue[unitID]
	if !ok {
		return time.Hour * 24 * 365 // never enqueued: force staleness to fire
	}
	return time.Since(last)
}

// significantChange implements rule 5: any kind-sensitive field that
// moved by more than its tolerance since the last snapshot.
func significantChange(kind registry.Kind, prev, cur model.MetricSnapshot) (string, float64, bool) {
	for _, ft := range deviationTolerances(kind) {
		prevVal, hasPrev := prev.Get(ft.field)
		curVal, hasCur := cur.Get(ft.field)
		if !hasPrev || !hasCur {
			continue
		}
		delta := curVal - prevVal
		if delta < 0 {
			delta = -delta
		}
		if delta > ft.tolerance {
			return ft.field, delta, true
		}
	}
	return "", 0, false
}
