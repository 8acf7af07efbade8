package logic

import (
	"context"
	"testing"
	"time"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

func TestHostInvokeFanCoilProducesValveCommand(t *testing.T) {
	reg := Default()
	host := NewHost(reg)

	unit := registry.EquipmentUnit{
		ID: "fc-1", Kind: registry.KindFanCoil, LogicModule: "fan-coil",
		SiteID: 1, GateTimeout: 5 * time.Second,
	}
	metrics := model.MetricSnapshot{UnitID: "fc-1", Values: map[string]float64{model.FieldRoomTemp: 74.5}}
	settings := model.SettingsBundle{Values: map[string]model.CommandValue{"setpoint": model.Number(72.0)}}

	results, err := host.Invoke(context.Background(), unit, metrics, settings, model.UnitState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if _, ok := results[0].Fields["coolingValvePosition"]; !ok {
		t.Fatalf("expected coolingValvePosition command, got %+v", results[0].Fields)
	}
}

func TestHostInvokeUnresolvedModule(t *testing.T) {
	host := NewHost(Default())
	unit := registry.EquipmentUnit{ID: "x", Kind: registry.KindFanCoil, LogicModule: "nonexistent"}

	_, err := host.Invoke(context.Background(), unit, model.MetricSnapshot{}, model.SettingsBundle{}, model.UnitState{})
	if err == nil {
		t.Fatalf("expected error for unresolved module")
	}
}

type blockingAlgorithm struct {
	kind registry.Kind
}

func (a blockingAlgorithm) Kind() registry.Kind { return a.kind }

func (a blockingAlgorithm) Run(ctx context.Context, _ model.MetricSnapshot, _ model.SettingsBundle, _ float64, _ model.UnitState) ([]model.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHostInvokeTimeoutReturnsLogicTimeout(t *testing.T) {
	reg := NewRegistry(map[string]ControlAlgorithm{"slow": blockingAlgorithm{kind: registry.KindFanCoil}})
	host := NewHost(reg)

	unit := registry.EquipmentUnit{
		ID: "fc-1", Kind: registry.KindFanCoil, LogicModule: "slow",
		SiteID: 1, GateTimeout: 5 * time.Millisecond,
	}

	_, err := host.Invoke(context.Background(), unit, model.MetricSnapshot{}, model.SettingsBundle{}, model.UnitState{})
	if err == nil || err.Error() != "logic timeout" {
		t.Fatalf("expected \"logic timeout\" error, got %v", err)
	}
}

func TestHostInvokeKindMismatch(t *testing.T) {
	host := NewHost(Default())
	unit := registry.EquipmentUnit{ID: "x", Kind: registry.KindBoiler, LogicModule: "fan-coil"}

	_, err := host.Invoke(context.Background(), unit, model.MetricSnapshot{}, model.SettingsBundle{}, model.UnitState{})
	if err == nil {
		t.Fatalf("expected error for kind mismatch")
	}
}

func TestBoilerAlgorithmRequiresLead(t *testing.T) {
	alg := BoilerAlgorithm{}
	settings := model.SettingsBundle{Values: map[string]model.CommandValue{"setpoint": model.Number(180)}}

	results, err := alg.Run(context.Background(), model.MetricSnapshot{}, settings, 150, model.UnitState{IsLead: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled, _ := results[0].Fields["boilerEnable"].Bool(); enabled {
		t.Fatalf("expected lag boiler to stay disabled")
	}
}
