package logic

import (
	"context"
	"math"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// pidStep is the shared proportional-integral step every fixture
// algorithm below builds on: error = setpoint - measured (or the inverse
// for cooling-direction loops), with the integral term clamped to avoid
// windup. The caller owns units and sign convention.
func pidStep(state model.UnitState, measured, setpoint, kp, ki float64) (output float64, integral float64) {
	err := setpoint - measured
	integral = state.Integral + err
	const clamp = 200.0
	if integral > clamp {
		integral = clamp
	} else if integral < -clamp {
		integral = -clamp
	}
	output = kp*err + ki*integral
	return output, integral
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func settingEnabled(settings model.SettingsBundle) bool {
	if v, ok := settings.Values["enabled"]; ok {
		if b, ok := v.Bool(); ok {
			return b
		}
	}
	return true
}

func setpointOf(settings model.SettingsBundle, fallback float64) float64 {
	if v, ok := settings.Values["setpoint"]; ok {
		if n, ok := v.Number(); ok {
			return n
		}
	}
	return fallback
}

// FanCoilAlgorithm drives a chilled-water valve to hold room temperature
// at setpoint. Output fields per the fan-coil allowlist.
type FanCoilAlgorithm struct{}

func (FanCoilAlgorithm) Kind() registry.Kind { return registry.KindFanCoil }

func (FanCoilAlgorithm) Run(_ context.Context, _ model.MetricSnapshot, settings model.SettingsBundle, controlTemp float64, state model.UnitState) ([]model.Result, error) {
	if !settingEnabled(settings) {
		return []model.Result{{Fields: map[string]model.CommandValue{
			"coolingEnable":        model.Bool(false),
			"coolingValvePosition": model.Number(0),
		}}}, nil
	}

	setpoint := setpointOf(settings, 72.0)
	output, _ := pidStep(state, controlTemp, setpoint, -8.0, -0.5)
	valve := clampPercent(output)

	return []model.Result{{Fields: map[string]model.CommandValue{
		"fanEnabled":           model.Bool(true),
		"coolingEnable":        model.Bool(true),
		"coolingValvePosition": model.Number(valve),
	}}}, nil
}

// AirHandlerAlgorithm drives supply-air temperature via cooling valve and
// economizer damper position. Output fields per the air-handler
// allowlist.
type AirHandlerAlgorithm struct{}

func (AirHandlerAlgorithm) Kind() registry.Kind { return registry.KindAirHandler }

func (AirHandlerAlgorithm) Run(_ context.Context, metrics model.MetricSnapshot, settings model.SettingsBundle, controlTemp float64, state model.UnitState) ([]model.Result, error) {
	if !settingEnabled(settings) {
		return []model.Result{{Fields: map[string]model.CommandValue{
			"unitEnable":   model.Bool(false),
			"coolingValve": model.Number(0),
		}}}, nil
	}

	setpoint := setpointOf(settings, 55.0)
	output, _ := pidStep(state, controlTemp, setpoint, -6.0, -0.4)
	valve := clampPercent(output)

	outdoorTemp, hasOutdoor := metrics.Get(model.FieldOutdoorAirTemp)
	damper := 20.0
	if hasOutdoor && outdoorTemp < setpoint {
		damper = clampPercent(100 - (setpoint-outdoorTemp)*5)
	}

	return []model.Result{{Fields: map[string]model.CommandValue{
		"unitEnable":          model.Bool(true),
		"coolingValve":        model.Number(valve),
		"outdoorDamper":       model.Number(damper),
		"supplyTempSetpoint":  model.Number(setpoint),
	}}}, nil
}

// BoilerAlgorithm drives firing rate to hold supply water temperature at
// setpoint, with a lead/lag fallback if the unit isn't lead. Output
// fields per the boiler allowlist.
type BoilerAlgorithm struct{}

func (BoilerAlgorithm) Kind() registry.Kind { return registry.KindBoiler }

func (BoilerAlgorithm) Run(_ context.Context, _ model.MetricSnapshot, settings model.SettingsBundle, controlTemp float64, state model.UnitState) ([]model.Result, error) {
	if !state.IsLead || !settingEnabled(settings) {
		return []model.Result{{Fields: map[string]model.CommandValue{
			"boilerEnable": model.Bool(false),
			"firingRate":   model.Number(0),
		}}}, nil
	}

	setpoint := setpointOf(settings, 180.0)
	output, _ := pidStep(state, controlTemp, setpoint, 4.0, 0.2)
	rate := clampPercent(output)

	return []model.Result{{Fields: map[string]model.CommandValue{
		"boilerEnable":      model.Bool(true),
		"firingRate":        model.Number(rate),
		"waterTempSetpoint": model.Number(setpoint),
	}}}, nil
}

// PumpAlgorithm drives variable-frequency-drive speed to hold
// differential pressure at setpoint. Output fields per the pump
// allowlist.
type PumpAlgorithm struct{}

func (PumpAlgorithm) Kind() registry.Kind { return registry.KindPump }

func (PumpAlgorithm) Run(_ context.Context, metrics model.MetricSnapshot, settings model.SettingsBundle, _ float64, state model.UnitState) ([]model.Result, error) {
	if !settingEnabled(settings) {
		return []model.Result{{Fields: map[string]model.CommandValue{
			"pumpEnable": model.Bool(false),
			"pumpSpeed":  model.Number(0),
		}}}, nil
	}

	measured, _ := metrics.Get(model.FieldPressure)
	setpoint := setpointOf(settings, 12.0)
	output, _ := pidStep(state, measured, setpoint, 5.0, 0.3)
	speed := clampPercent(50 + output)

	fields := map[string]model.CommandValue{
		"pumpEnable": model.Bool(true),
		"pumpSpeed":  model.Number(speed),
	}
	if state.IsLead {
		fields["isLead"] = model.Bool(true)
		fields["leadLagStatus"] = model.String("lead")
	} else {
		fields["isLead"] = model.Bool(false)
		fields["leadLagStatus"] = model.String("lag")
	}
	return []model.Result{{Fields: fields}}, nil
}

// ChillerAlgorithm drives compressor staging to hold chilled-water supply
// temperature at setpoint. Output fields per the chiller allowlist
//.
type ChillerAlgorithm struct{}

func (ChillerAlgorithm) Kind() registry.Kind { return registry.KindChiller }

func (ChillerAlgorithm) Run(_ context.Context, _ model.MetricSnapshot, settings model.SettingsBundle, controlTemp float64, state model.UnitState) ([]model.Result, error) {
	if !settingEnabled(settings) {
		return []model.Result{{Fields: map[string]model.CommandValue{
			"chillerEnable":  model.Bool(false),
			"compressorStage": model.Number(0),
		}}}, nil
	}

	setpoint := setpointOf(settings, 44.0)
	output, _ := pidStep(state, controlTemp, setpoint, -10.0, -0.5)
	loading := clampPercent(output)
	stage := math.Round(loading / 25.0) // four discrete compressor stages

	return []model.Result{{Fields: map[string]model.CommandValue{
		"chillerEnable":        model.Bool(true),
		"compressorStage":      model.Number(stage),
		"chilledWaterSetpoint": model.Number(setpoint),
	}}}, nil
}

// SteamBundleAlgorithm drives a modulating steam valve to hold header
// pressure at setpoint. Output fields per the steam-bundle allowlist
//.
type SteamBundleAlgorithm struct{}

func (SteamBundleAlgorithm) Kind() registry.Kind { return registry.KindSteamBundle }

func (SteamBundleAlgorithm) Run(_ context.Context, metrics model.MetricSnapshot, settings model.SettingsBundle, _ float64, state model.UnitState) ([]model.Result, error) {
	if !settingEnabled(settings) {
		return []model.Result{{Fields: map[string]model.CommandValue{
			"steamEnable": model.Bool(false),
			"steamValve":  model.Number(0),
		}}}, nil
	}

	measured, _ := metrics.Get(model.FieldHeaderPressure)
	setpoint := setpointOf(settings, 10.0)
	output, _ := pidStep(state, measured, setpoint, -6.0, -0.3)
	valve := clampPercent(output)

	return []model.Result{{Fields: map[string]model.CommandValue{
		"steamEnable":     model.Bool(true),
		"steamValve":      model.Number(valve),
		"steamPressure":   model.Number(measured),
	}}}, nil
}
