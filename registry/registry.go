// Package registry holds the static per-site table of managed equipment
// and the per-kind policy (tick period, staleness, timeout, retry/backoff)
// derived from spec. The registry is built once at startup and never
// mutated at runtime; Tickers, Gate, and Worker Pool all read through it.
package registry

import (
	"fmt"
	"time"
)

// Kind tags the class of equipment. It selects the control algorithm and
// the Gate's thresholds.
type Kind string

const (
	KindAirHandler  Kind = "air-handler"
	KindFanCoil     Kind = "fan-coil"
	KindBoiler      Kind = "boiler"
	KindPump        Kind = "pump"
	KindChiller     Kind = "chiller"
	KindSteamBundle Kind = "steam-bundle"
)

// KindPolicy unifies the per-kind literals (tick period, max staleness,
// gate timeout, base priority, retry/backoff/stall limits) a unit's
// Kind determines, so every consumer reads them from one place instead
// of re-deriving them from scattered per-site constants.
type KindPolicy struct {
	TickPeriod     time.Duration
	MaxStaleness   time.Duration
	GateTimeout    time.Duration
	BasePriority   int
	MaxRetries     int
	RetryBaseDelay time.Duration
	StallLimit     int
}

// DefaultPolicies is the fixed per-kind policy table, with retry/backoff/
// stall defaults unified across every kind (3 retries, 2s exponential
// backoff base, stall limit 3).
var DefaultPolicies = map[Kind]KindPolicy{
	KindFanCoil: {
		TickPeriod: 30 * time.Second, MaxStaleness: 45 * time.Second,
		GateTimeout: 45 * time.Second, BasePriority: 0,
		MaxRetries: 3, RetryBaseDelay: 2 * time.Second, StallLimit: 3,
	},
	KindAirHandler: {
		TickPeriod: 30 * time.Second, MaxStaleness: 45 * time.Second,
		GateTimeout: 90 * time.Second, BasePriority: 0,
		MaxRetries: 3, RetryBaseDelay: 2 * time.Second, StallLimit: 3,
	},
	KindBoiler: {
		TickPeriod: 60 * time.Second, MaxStaleness: 180 * time.Second,
		GateTimeout: 90 * time.Second, BasePriority: 0,
		MaxRetries: 3, RetryBaseDelay: 2 * time.Second, StallLimit: 3,
	},
	KindPump: {
		TickPeriod: 30 * time.Second, MaxStaleness: 120 * time.Second,
		GateTimeout: 60 * time.Second, BasePriority: 0,
		MaxRetries: 3, RetryBaseDelay: 2 * time.Second, StallLimit: 3,
	},
	KindChiller: {
		TickPeriod: 300 * time.Second, MaxStaleness: 480 * time.Second,
		GateTimeout: 180 * time.Second, BasePriority: 0,
		MaxRetries: 3, RetryBaseDelay: 2 * time.Second, StallLimit: 3,
	},
	KindSteamBundle: {
		TickPeriod: 20 * time.Second, MaxStaleness: 30 * time.Second,
		GateTimeout: 45 * time.Second, BasePriority: 0,
		MaxRetries: 3, RetryBaseDelay: 2 * time.Second, StallLimit: 3,
	},
}

// SiteClass selects per-site Gate threshold overlays.
type SiteClass string

const (
	SiteStandard SiteClass = "standard"
	SiteTherapy  SiteClass = "therapy" // tighter deviation thresholds
)

// Site is the process-singleton description of the site this instance
// serves.
type Site struct {
	ID        int
	Name      string
	Class     SiteClass
	LogicDir  string
	QueueName string
}

// UnitConfig is the static description of one managed unit, as loaded
// from the (external, out-of-scope) equipment catalog at startup.
type UnitConfig struct {
	ID           string
	Kind         Kind
	LogicModule  string
	TickPeriod   time.Duration // 0 => use DefaultPolicies[Kind]
	BasePriority int
}

// Registry exposes, by unit id, the complete static description of the
// unit, plus enumeration of all units of the site. It is immutable after
// Build succeeds.
type Registry struct {
	site     Site
	units    map[string]EquipmentUnit
	ordered  []string
	policies map[Kind]KindPolicy
}

// EquipmentUnit is the resolved, validated description of one unit: its
// static config plus the kind policy it runs under.
type EquipmentUnit struct {
	ID           string
	Kind         Kind
	LogicModule  string
	SiteID       int
	TickPeriod   time.Duration
	MaxStaleness time.Duration
	GateTimeout  time.Duration
	BasePriority int
	Policy       KindPolicy
}

// Build validates and constructs a Registry from static config. It
// returns an error if any unit id is duplicated, any tick period is
// non-positive or exceeds maxStaleness(kind), or any logicModule does not
// resolve to one of the known resolver names.
func Build(site Site, units []UnitConfig, policies map[Kind]KindPolicy, knownModules map[string]bool) (*Registry, error) {
	if policies == nil {
		policies = DefaultPolicies
	}

	r := &Registry{
		site:     site,
		units:    make(map[string]EquipmentUnit, len(units)),
		ordered:  make([]string, 0, len(units)),
		policies: policies,
	}

	for _, u := range units {
		if u.ID == "" {
			return nil, fmt.Errorf("registry: unit with empty id in site %d", site.ID)
		}
		if _, dup := r.units[u.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate unit id %q", u.ID)
		}

		policy, ok := policies[u.Kind]
		if !ok {
			return nil, fmt.Errorf("registry: unit %q has unknown kind %q", u.ID, u.Kind)
		}

		if !knownModules[u.LogicModule] {
			return nil, fmt.Errorf("registry: unit %q references unresolvable logic module %q", u.ID, u.LogicModule)
		}

		tickPeriod := u.TickPeriod
		if tickPeriod <= 0 {
			tickPeriod = policy.TickPeriod
		}
		if tickPeriod <= 0 {
			return nil, fmt.Errorf("registry: unit %q has non-positive tick period", u.ID)
		}
		if tickPeriod > policy.MaxStaleness {
			return nil, fmt.Errorf("registry: unit %q tick period %v exceeds max staleness %v for kind %q",
				u.ID, tickPeriod, policy.MaxStaleness, u.Kind)
		}

		basePriority := u.BasePriority
		if basePriority == 0 {
			basePriority = policy.BasePriority
		}

		r.units[u.ID] = EquipmentUnit{
			ID:           u.ID,
			Kind:         u.Kind,
			LogicModule:  u.LogicModule,
			SiteID:       site.ID,
			TickPeriod:   tickPeriod,
			MaxStaleness: policy.MaxStaleness,
			GateTimeout:  policy.GateTimeout,
			BasePriority: basePriority,
			Policy:       policy,
		}
		r.ordered = append(r.ordered, u.ID)
	}

	return r, nil
}

// Site returns the static site description.
func (r *Registry) Site() Site { return r.site }

// Lookup returns the unit by id, or (EquipmentUnit{}, false) if not found.
func (r *Registry) Lookup(unitID string) (EquipmentUnit, bool) {
	u, ok := r.units[unitID]
	return u, ok
}

// Enumerate returns all units of the site in registration order.
func (r *Registry) Enumerate() []EquipmentUnit {
	out := make([]EquipmentUnit, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.units[id])
	}
	return out
}

// JobKey returns the deterministic "{site}-{unitId}-{kind}" key for a
// unit, used by the Queue for deduplication.
func JobKey(siteID int, unitID string, kind Kind) string {
	return fmt.Sprintf("%d-%s-%s", siteID, unitID, kind)
}
