package logic

import (
	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// controlTempPreference lists, per kind, the metric fields tried in order
// to derive the single controlled-variable temperature. The first
// present field wins.
var controlTempPreference = map[registry.Kind][]string{
	registry.KindFanCoil:     {"roomTemp"},
	registry.KindAirHandler:  {"supplyAirTemp", "mixedAirTemp"},
	registry.KindBoiler:      {"supplyWaterTemp"},
	registry.KindPump:        {"motorTemp"},
	registry.KindChiller:     {"dischargeTemp", "chilledWaterSupplyTemp"},
	registry.KindSteamBundle: {"headerTemp"},
}

// DeriveControlTemperature selects the control temperature for kind from
// the metric snapshot, per its preference list. Returns 0 if none of the
// preferred fields are present.
func DeriveControlTemperature(kind registry.Kind, snap model.MetricSnapshot) float64 {
	for _, field := range controlTempPreference[kind] {
		if v, ok := snap.Get(field); ok {
			return v
		}
	}
	return 0
}
