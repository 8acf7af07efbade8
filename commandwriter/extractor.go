package commandwriter

import (
	"time"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
)

// Extract turns a set of algorithm Results into the durable Command
// records for unit, keeping only allow-listed field names.
func Extract(unit registry.EquipmentUnit, results []model.Result, emittedAt time.Time) []model.Command {
	var commands []model.Command
	for _, r := range results {
		for name, value := range r.Fields {
			if !allowed(unit.Kind, name) {
				continue
			}
			commands = append(commands, model.Command{
				EquipmentID:   unit.ID,
				SiteID:        unit.SiteID,
				EquipmentType: string(unit.Kind),
				CommandType:   name,
				Value:         value,
				EmittedAt:     emittedAt,
				Source:        "worker",
				Status:        "active",
			})
		}
	}
	return commands
}
