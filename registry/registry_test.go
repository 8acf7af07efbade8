package registry

import "testing"

func knownModules() map[string]bool {
	return map[string]bool{
		"air-handler": true, "fan-coil": true, "pumps": true,
		"boiler": true, "steam-bundle": true, "chiller": true,
	}
}

func TestBuildRejectsTickPeriodExceedingMaxStaleness(t *testing.T) {
	site := Site{ID: 1, Name: "hq", Class: SiteStandard}
	units := []UnitConfig{
		{ID: "fc-1", Kind: KindFanCoil, LogicModule: "fan-coil", TickPeriod: 0},
	}
	if _, err := Build(site, units, nil, knownModules()); err != nil {
		t.Fatalf("expected default tick period to validate, got %v", err)
	}

	badUnits := []UnitConfig{
		{ID: "fc-1", Kind: KindFanCoil, LogicModule: "fan-coil", TickPeriod: 60 * 1e9},
	}
	if _, err := Build(site, badUnits, nil, knownModules()); err == nil {
		t.Fatalf("expected tick period exceeding max staleness to be rejected")
	}
}

func TestBuildRejectsDuplicateUnitIDs(t *testing.T) {
	site := Site{ID: 1, Name: "hq"}
	units := []UnitConfig{
		{ID: "ahu-1", Kind: KindAirHandler, LogicModule: "air-handler"},
		{ID: "ahu-1", Kind: KindAirHandler, LogicModule: "air-handler"},
	}
	if _, err := Build(site, units, nil, knownModules()); err == nil {
		t.Fatalf("expected duplicate unit id to be rejected")
	}
}

func TestBuildRejectsUnresolvableLogicModule(t *testing.T) {
	site := Site{ID: 1, Name: "hq"}
	units := []UnitConfig{
		{ID: "boiler-1", Kind: KindBoiler, LogicModule: "../../etc/passwd"},
	}
	if _, err := Build(site, units, nil, knownModules()); err == nil {
		t.Fatalf("expected unresolvable logic module to be rejected")
	}
}

func TestLookupAndEnumerate(t *testing.T) {
	site := Site{ID: 7, Name: "hq"}
	units := []UnitConfig{
		{ID: "fc-1", Kind: KindFanCoil, LogicModule: "fan-coil"},
		{ID: "ahu-1", Kind: KindAirHandler, LogicModule: "air-handler"},
	}
	reg, err := Build(site, units, nil, knownModules())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, ok := reg.Lookup("fc-1")
	if !ok || u.Kind != KindFanCoil || u.SiteID != 7 {
		t.Fatalf("unexpected lookup result: %+v ok=%v", u, ok)
	}

	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("expected lookup of missing unit to fail")
	}

	all := reg.Enumerate()
	if len(all) != 2 || all[0].ID != "fc-1" || all[1].ID != "ahu-1" {
		t.Fatalf("unexpected enumeration order: %+v", all)
	}
}

func TestJobKeyIsDeterministic(t *testing.T) {
	a := JobKey(1, "fc-1", KindFanCoil)
	b := JobKey(1, "fc-1", KindFanCoil)
	if a != b {
		t.Fatalf("expected deterministic job key, got %q and %q", a, b)
	}
	if a == JobKey(2, "fc-1", KindFanCoil) {
		t.Fatalf("expected job key to vary by site id")
	}
}
