package parser

import (
	"regexp"
	"strconv"

	"github.com/starlogs/starlogs/pkg/core"
)

var (
	vehicleDestroyRe = regexp.MustCompile(
		`CVehicle::OnAdvanceDestroyLevel: Vehicle '([^']+)' .*advanced from destroy level ([0-9]+) to ([0-9]+) caused by '([^']+)' .*with '([^']+)'`,
	)
	vehicleZoneRe = regexp.MustCompile(`in zone '([^']+)'`)
)

var vehicleDestroyRule = rule{
	name:  "vehicle_destroy",
	match: vehicleDestroyRe.FindStringSubmatch,
	extract: func(c *Classifier, ev *core.DomainEvent, m []string) bool {
		from, errFrom := strconv.Atoi(m[2])
		to, errTo := strconv.Atoi(m[3])
		if errFrom != nil || errTo != nil {
			return false
		}

		switch to {
		case core.LevelSoftDeath:
			ev.Kind = core.KindVehicleSoftDeath
		case core.LevelDestroyed:
			ev.Kind = core.KindVehicleDestruction
		default:
			c.logger.Debug("ignoring destroy level", "vehicle", m[1], "to", to)
			return false
		}

		ev.VehicleID = m[1]
		ev.FromLevel = from
		ev.ToLevel = to
		ev.Killer = m[4]
		ev.RawDamageType = m[5]
		ev.DamageType = core.ParseDamageType(m[5])
		ev.Ship = ShipName(m[1])
		if z := vehicleZoneRe.FindStringSubmatch(ev.Raw); z != nil {
			ev.Zone = z[1]
		}
		return true
	},
}
