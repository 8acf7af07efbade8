package commandwriter

import "github.com/brightloop/sitecore/registry"

// allowlists is the closed per-kind vocabulary of actionable command
// names. Any Result field not named here is dropped.
var allowlists = map[registry.Kind]map[string]bool{
	registry.KindAirHandler: set(
		"fanEnable", "fanSpeed", "heatingValve", "coolingValve", "outdoorDamper",
		"returnDamper", "mixedAirDamper", "supplyTempSetpoint", "economizer",
		"unitEnable", "temperatureSetpoint",
	),
	registry.KindFanCoil: set(
		"fanEnabled", "heatingValvePosition", "coolingValvePosition",
		"heatingEnable", "coolingEnable",
	),
	registry.KindPump: set(
		"pumpEnable", "pumpSpeed", "pumpCommand", "leadLagStatus", "isLead",
		"leadLagGroupId", "leadEquipmentId", "leadLagReason",
	),
	registry.KindBoiler: set(
		"boilerEnable", "firingRate", "waterTempSetpoint",
	),
	registry.KindSteamBundle: set(
		"steamValve", "steamEnable", "steamTempSetpoint", "steamPressure",
	),
	registry.KindChiller: set(
		"chillerEnable", "chilledWaterSetpoint", "compressorStage",
	),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// allowed reports whether commandName is in kind's allowlist.
func allowed(kind registry.Kind, commandName string) bool {
	return allowlists[kind][commandName]
}
