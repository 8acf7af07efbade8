// Package model holds the data shapes shared across the scheduling
// pipeline: metric snapshots, settings, control temperature, durable
// per-unit state, jobs, and commands.
package model

import "time"

// MetricSnapshot is a flat mapping from metric name to the last-observed
// scalar for one unit, captured at a single instant.
type MetricSnapshot struct {
	UnitID     string
	SiteID     int
	CapturedAt time.Time
	Values     map[string]float64
}

// Get returns the value for name and whether it was present.
func (m MetricSnapshot) Get(name string) (float64, bool) {
	if m.Values == nil {
		return 0, false
	}
	v, ok := m.Values[name]
	return v, ok
}

// Clone returns a deep copy so callers can retain a snapshot across
// mutation of the live snapshot (used for GateSnapshot comparisons).
func (m MetricSnapshot) Clone() MetricSnapshot {
	values := make(map[string]float64, len(m.Values))
	for k, v := range m.Values {
		values[k] = v
	}
	return MetricSnapshot{UnitID: m.UnitID, SiteID: m.SiteID, CapturedAt: m.CapturedAt, Values: values}
}

// SettingsBundle is the merged per-invocation settings: hard-coded per-kind
// defaults, site identity, unit identity, and the enable flag.
type SettingsBundle struct {
	SiteID   int
	SiteName string
	UnitID   string
	Kind     string
	Enabled  bool
	Values   map[string]CommandValue
}

// UnitState is the durable per-unit state carried across invocations.
type UnitState struct {
	UnitID              string
	LastInvocationAt    time.Time
	Integral            float64
	Derivative          float64
	LastError           float64
	IsLead              bool
	LeadEquipmentID     string
	LastOutputs         map[string]CommandValue
	Version             int64 // CAS version for the durable store
}

// Job is a unit of scheduling work: "recompute control outputs for this
// unit now".
type Job struct {
	Key        string // deterministic "{site}-{unitId}-{kind}"
	SiteID     int
	UnitID     string
	Kind       string
	Reason     string
	Priority   int
	EnqueuedAt time.Time
	Attempt    int
}

// Command is a single (name, value) actuator setpoint emitted by a logic
// run, ready to be written to the command store. Value is carried as a
// tagged union internally and stringified only at the writer boundary.
type Command struct {
	EquipmentID   string
	SiteID        int
	EquipmentType string
	CommandType   string
	Value         CommandValue
	EmittedAt     time.Time
	Source        string
	Status        string
}

// Result is one record returned from a control algorithm invocation; the
// Writer extracts the allow-listed subset of fields from it.
type Result struct {
	Fields map[string]CommandValue
}

// UICommand is an externally-issued command, read-only to the core.
type UICommand struct {
	UnitID    string
	IssuedAt  time.Time
	IssuedBy  string
	Payload   map[string]CommandValue
}
