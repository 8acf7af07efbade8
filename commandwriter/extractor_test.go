package commandwriter

import (
	"testing"
	"time"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

func TestExtractFiltersToAllowlist(t *testing.T) {
	unit := registry.EquipmentUnit{ID: "fc-1", SiteID: 1, Kind: registry.KindFanCoil}
	results := []model.Result{{Fields: map[string]model.CommandValue{
		"coolingValvePosition": model.Number(42),
		"notAllowed":           model.Bool(true),
	}}}

	commands := Extract(unit, results, time.Unix(0, 0))
	if len(commands) != 1 {
		t.Fatalf("expected only the allow-listed field, got %+v", commands)
	}
	if commands[0].CommandType != "coolingValvePosition" {
		t.Fatalf("unexpected command type: %q", commands[0].CommandType)
	}
	if commands[0].Status != "active" || commands[0].Source != "worker" {
		t.Fatalf("unexpected tags: %+v", commands[0])
	}
	if commands[0].Value.String() != "42" {
		t.Fatalf("expected stringified value \"42\", got %q", commands[0].Value.String())
	}
}

func TestExtractRejectsUnknownKind(t *testing.T) {
	unit := registry.EquipmentUnit{ID: "x", SiteID: 1, Kind: registry.Kind("unknown")}
	results := []model.Result{{Fields: map[string]model.CommandValue{"anything": model.Bool(true)}}}

	commands := Extract(unit, results, time.Unix(0, 0))
	if len(commands) != 0 {
		t.Fatalf("expected no commands for unrecognized kind, got %+v", commands)
	}
}
