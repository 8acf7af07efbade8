// Package logic hosts the per-kind control algorithms and the registry
// that resolves a unit's LogicModule name to one. Algorithms are
// registered at build time, in a closed, path-traversal-safe table
// rather than loaded dynamically from a module path.
package logic

import (
	"context"
	"fmt"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// ControlAlgorithm computes actionable outputs from the four assembled
// inputs: metrics, settings, the derived control temperature, and the
// unit's persistent state.
type ControlAlgorithm interface {
	Kind() registry.Kind
	Run(ctx context.Context, metrics model.MetricSnapshot, settings model.SettingsBundle, controlTemp float64, state model.UnitState) ([]model.Result, error)
}

// Registry maps a LogicModule name to the ControlAlgorithm that
// implements it.
type Registry struct {
	byModule map[string]ControlAlgorithm
}

// NewRegistry builds a Registry from the given algorithms, indexed by the
// LogicModule names under which each is registered.
func NewRegistry(algorithms map[string]ControlAlgorithm) *Registry {
	r := &Registry{byModule: make(map[string]ControlAlgorithm, len(algorithms))}
	for name, alg := range algorithms {
		r.byModule[name] = alg
	}
	return r
}

// KnownModules returns the set of registered module names, used by
// registry.Build to validate each unit's LogicModule at startup.
func (r *Registry) KnownModules() map[string]bool {
	out := make(map[string]bool, len(r.byModule))
	for name := range r.byModule {
		out[name] = true
	}
	return out
}

// Resolve returns the algorithm registered under moduleName, or an error
// if none matches.
func (r *Registry) Resolve(moduleName string) (ControlAlgorithm, error) {
	alg, ok := r.byModule[moduleName]
	if !ok {
		return nil, fmt.Errorf("logic: module %q is not registered", moduleName)
	}
	return alg, nil
}

// Default returns the registry pre-populated with the six fixture
// algorithms shipped alongside this package.
func Default() *Registry {
	return NewRegistry(map[string]ControlAlgorithm{
		"fan-coil":     FanCoilAlgorithm{},
		"air-handler":  AirHandlerAlgorithm{},
		"boiler":       BoilerAlgorithm{},
		"pump":         PumpAlgorithm{},
		"chiller":      ChillerAlgorithm{},
		"steam-bundle": SteamBundleAlgorithm{},
	})
}
