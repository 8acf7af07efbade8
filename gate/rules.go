package gate

import (
	"fmt"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// Metric field name aliases, for brevity within this file. The canonical
// definitions live in package model so the Logic Host's fixture
// algorithms can share them.
const (
	fieldRoomTemp           = model.FieldRoomTemp
	fieldSupplyAirTemp      = model.FieldSupplyAirTemp
	fieldMixedAirTemp       = model.FieldMixedAirTemp
	fieldOutdoorAirTemp     = model.FieldOutdoorAirTemp
	fieldOutdoorDamperPos   = model.FieldOutdoorDamperPos
	fieldFreezestat         = model.FieldFreezestat
	fieldSupplyWaterTemp    = model.FieldSupplyWaterTemp
	fieldMotorCurrent       = model.FieldMotorCurrent
	fieldMotorOverloadLimit = model.FieldMotorOverloadLimit
	fieldVibration          = model.FieldVibration
	fieldVibrationLimit     = model.FieldVibrationLimit
	fieldHeaderPressure     = model.FieldHeaderPressure
	fieldDischargePressure  = model.FieldDischargePressure
	fieldDamperPosition     = model.FieldDamperPosition
	fieldValvePosition      = model.FieldValvePosition
	fieldSpeed              = model.FieldSpeed
	fieldPressure           = model.FieldPressure
)

// controlTempField returns the metric name that holds the kind's defining
// temperature, used by the deviation rule.
func controlTempField(kind registry.Kind) (string, bool) {
	switch kind {
	case registry.KindFanCoil:
		return fieldRoomTemp, true
	case registry.KindAirHandler:
		return fieldSupplyAirTemp, true
	case registry.KindBoiler:
		return fieldSupplyWaterTemp, true
	default:
		return "", false
	}
}

// tightControlThreshold is the deviation-rule temperature threshold,
// before any per-site therapy overlay.
func tightControlThreshold(kind registry.Kind) (float64, bool) {
	switch kind {
	case registry.KindFanCoil:
		return 2.0, true
	case registry.KindAirHandler:
		return 3.0, true
	default:
		return 0, false
	}
}

// therapyOverlayMultiplier tightens the deviation-rule temperature
// threshold for therapy-class sites: a per-site configuration overlay,
// not a fork of the Gate's rule set.
const therapyOverlayMultiplier = 0.5

func overlay(class registry.SiteClass, threshold float64) float64 {
	if class == registry.SiteTherapy {
		return threshold * therapyOverlayMultiplier
	}
	return threshold
}

// safetyPredicate evaluates a kind's safety catalogue against a fresh
// snapshot, returning a firing reason or ("", false) if none fire.
func safetyPredicate(kind registry.Kind, class registry.SiteClass, m model.MetricSnapshot) (string, bool) {
	switch kind {
	case registry.KindBoiler:
		if t, ok := m.Get(fieldSupplyWaterTemp); ok && t > 170 {
			return fmt.Sprintf("supply water temp %.1f°F exceeds 170°F", t), true
		}
		if f, ok := m.Get(fieldFreezestat); ok && f != 0 {
			return "freezestat asserted", true
		}
	case registry.KindFanCoil:
		if t, ok := m.Get(fieldRoomTemp); ok {
			lo, hi := 60.0, 85.0
			if t < lo || t > hi {
				return fmt.Sprintf("room temp %.1f°F outside safe band", t), true
			}
		}
	case registry.KindAirHandler:
		if t, ok := m.Get(fieldSupplyAirTemp); ok && t > 85 {
			return fmt.Sprintf("supply air temp %.1f°F exceeds 85°F", t), true
		}
		if t, ok := m.Get(fieldMixedAirTemp); ok && t < 35 {
			return fmt.Sprintf("mixed air temp %.1f°F below 35°F", t), true
		}
		outdoor, hasOutdoor := m.Get(fieldOutdoorAirTemp)
		damper, hasDamper := m.Get(fieldOutdoorDamperPos)
		if hasOutdoor && hasDamper && outdoor < 32 && damper > 95 {
			return "outdoor damper open in cold", true
		}
		if f, ok := m.Get(fieldFreezestat); ok && f != 0 {
			return "freezestat asserted", true
		}
	case registry.KindPump:
		if cur, ok := m.Get(fieldMotorCurrent); ok {
			if limit, hasLimit := m.Get(fieldMotorOverloadLimit); hasLimit && cur > limit {
				return fmt.Sprintf("motor current %.1f exceeds overload limit %.1f", cur, limit), true
			}
		}
		if v, ok := m.Get(fieldVibration); ok {
			if limit, hasLimit := m.Get(fieldVibrationLimit); hasLimit && v > limit {
				return fmt.Sprintf("vibration %.2f exceeds limit %.2f", v, limit), true
			}
		}
	case registry.KindSteamBundle:
		if p, ok := m.Get(fieldHeaderPressure); ok && p > 15 {
			return fmt.Sprintf("header pressure %.1f psi exceeds 15 psi", p), true
		}
	case registry.KindChiller:
		if p, ok := m.Get(fieldDischargePressure); ok && p > 200 {
			return fmt.Sprintf("discharge pressure %.1f psi exceeds 200 psi", p), true
		}
	}
	return "", false
}

// deviationTolerances holds, per kind, the per-field tolerance used by
// the change-vs-last-snapshot rule.
type fieldTolerance struct {
	field     string
	tolerance float64
}

func deviationTolerances(kind registry.Kind) []fieldTolerance {
	switch kind {
	case registry.KindAirHandler:
		return []fieldTolerance{
			{fieldSupplyAirTemp, 2.0},
			{fieldOutdoorDamperPos, 20},
		}
	case registry.KindFanCoil:
		return []fieldTolerance{
			{fieldRoomTemp, 1.5},
			{fieldValvePosition, 20},
		}
	case registry.KindPump:
		return []fieldTolerance{
			{fieldSpeed, 15},
			{fieldPressure, 5},
		}
	case registry.KindBoiler:
		return []fieldTolerance{
			{fieldSupplyWaterTemp, 4.0},
			{fieldPressure, 8},
		}
	case registry.KindChiller:
		return []fieldTolerance{
			{fieldDischargePressure, 8},
		}
	case registry.KindSteamBundle:
		return []fieldTolerance{
			{fieldHeaderPressure, 5},
			{fieldDamperPosition, 25},
		}
	default:
		return nil
	}
}
