// Package settings assembles the per-invocation SettingsBundle: hard-coded
// per-kind defaults, plus site id and name, unit id and kind, and an
// enable flag. There is no external settings store in scope — weather/
// control settings pages are an explicit non-goal — so this is a pure,
// in-process merge, not an I/O-bound lookup.
package settings

import (
	"context"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// defaultSetpoint is the kind-specific fallback setpoint. Its values
// match the fallbacks the Logic Host's fixture algorithms hard-code, so
// the Gate's deviation rule and the algorithm's PID loop agree on the
// target absent an override.
var defaultSetpoint = map[registry.Kind]float64{
	registry.KindFanCoil:     72.0,
	registry.KindAirHandler:  55.0,
	registry.KindBoiler:      180.0,
	registry.KindPump:        12.0,
	registry.KindChiller:     44.0,
	registry.KindSteamBundle: 10.0,
}

// Provider assembles SettingsBundles from the registry's static unit
// table plus a per-unit override map (e.g. operator-adjusted setpoints
// held in memory; a real deployment would source overrides from the
// excluded control-settings pages).
type Provider struct {
	reg       *registry.Registry
	overrides map[string]map[string]model.CommandValue
}

// NewProvider constructs a Provider for reg. overrides may be nil.
func NewProvider(reg *registry.Registry, overrides map[string]map[string]model.CommandValue) *Provider {
	return &Provider{reg: reg, overrides: overrides}
}

// FetchSettings merges static per-kind defaults with any per-unit
// override; the enable flag defaults true.
func (p *Provider) FetchSettings(_ context.Context, unitID string) (model.SettingsBundle, error) {
	unit, ok := p.reg.Lookup(unitID)
	if !ok {
		return model.SettingsBundle{UnitID: unitID}, nil
	}
	site := p.reg.Site()

	values := map[string]model.CommandValue{
		"setpoint": model.Number(defaultSetpoint[unit.Kind]),
		"enabled":  model.Bool(true),
	}
	for k, v := range p.overrides[unitID] {
		values[k] = v
	}

	return model.SettingsBundle{
		SiteID:   site.ID,
		SiteName: site.Name,
		UnitID:   unitID,
		Kind:     string(unit.Kind),
		Enabled:  true,
		Values:   values,
	}, nil
}

// SetOverride records a per-unit setting override (e.g. an operator
// adjusting a setpoint), replacing any previous value for that key.
func (p *Provider) SetOverride(unitID, key string, value model.CommandValue) {
	if p.overrides == nil {
		p.overrides = make(map[string]map[string]model.CommandValue)
	}
	if p.overrides[unitID] == nil {
		p.overrides[unitID] = make(map[string]model.CommandValue)
	}
	p.overrides[unitID][key] = value
}
