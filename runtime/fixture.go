package runtime

import (
	"github.com/brightloop/sitecore/registry"
)

// FixtureUnits stands in for a persisted equipment catalog, keyed by
// SITE_ID. A real deployment would source this from an external catalog
// layer; this is a checked-in Go literal for the site demonstrated by
// this process.
var FixtureUnits = map[int][]registry.UnitConfig{
	1: {
		{ID: "fc-101", Kind: registry.KindFanCoil, LogicModule: "fan-coil"},
		{ID: "fc-102", Kind: registry.KindFanCoil, LogicModule: "fan-coil"},
		{ID: "ahu-1", Kind: registry.KindAirHandler, LogicModule: "air-handler"},
		{ID: "blr-1", Kind: registry.KindBoiler, LogicModule: "boiler"},
		{ID: "pmp-1", Kind: registry.KindPump, LogicModule: "pump"},
		{ID: "pmp-2", Kind: registry.KindPump, LogicModule: "pump"},
		{ID: "chl-1", Kind: registry.KindChiller, LogicModule: "chiller"},
		{ID: "stm-1", Kind: registry.KindSteamBundle, LogicModule: "steam-bundle"},
	},
}

// FixtureSiteClass maps SITE_ID to its threshold-overlay class; therapy
// sites get tighter deviation thresholds than standard ones.
var FixtureSiteClass = map[int]registry.SiteClass{
	1: registry.SiteStandard,
}
