package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// Host assembles the four inputs (metrics, settings, control temperature,
// state) and invokes the resolved ControlAlgorithm, bounded by the unit's
// kind-specific gate timeout.
type Host struct {
	registry *Registry
}

// NewHost constructs a Host around the given algorithm registry.
func NewHost(reg *Registry) *Host {
	return &Host{registry: reg}
}

// Invoke resolves unit.LogicModule, derives the control temperature, and
// runs the algorithm with ctx bounded by unit.GateTimeout.
func (h *Host) Invoke(ctx context.Context, unit registry.EquipmentUnit, metrics model.MetricSnapshot, settings model.SettingsBundle, state model.UnitState) ([]model.Result, error) {
	alg, err := h.registry.Resolve(unit.LogicModule)
	if err != nil {
		return nil, err
	}
	if alg.Kind() != unit.Kind {
		return nil, fmt.Errorf("logic: module %q is registered for kind %q, unit %q is kind %q",
			unit.LogicModule, alg.Kind(), unit.ID, unit.Kind)
	}

	timeout := unit.GateTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controlTemp := DeriveControlTemperature(unit.Kind, metrics)
	results, err := alg.Run(runCtx, metrics, settings, controlTemp, state)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, errors.New("logic timeout")
		}
		return nil, fmt.Errorf("logic: %s run failed for unit %q: %w", unit.Kind, unit.ID, err)
	}
	return results, nil
}
