package convert

import (
	"encoding/json"

	"github.com/starlogs/starlogs/internal/model"
	"github.com/starlogs/starlogs/pkg/core"
)

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:        s.UUID,
		LogPath:   s.LogPath,
		Mode:      core.Mode(s.Mode),
		StartTime: s.StartTime,
	}
	if s.EndTime.Valid {
		out.EndTime = s.EndTime.Time
	}
	return out
}

// EventToCore converts a GORM Event to a core.DomainEvent.
func EventToCore(e model.Event) core.DomainEvent {
	ev := core.DomainEvent{
		Seq:            e.Seq,
		Kind:           core.Kind(e.Kind),
		Timestamp:      e.Time,
		Raw:            e.Raw,
		Killer:         e.Killer,
		KillerID:       e.KillerID,
		Victim:         e.Victim,
		VictimID:       e.VictimID,
		Weapon:         e.Weapon,
		WeaponClassRaw: e.WeaponClassRaw,
		WeaponClass:    core.WeaponClass(e.WeaponClass),
		WeaponSize:     e.WeaponSize,
		DamageType:     core.DamageType(e.DamageType),
		RawDamageType:  e.RawDamageType,
		Zone:           e.Zone,
		Ship:           e.Ship,
		DirectionLabel: e.DirectionLabel,
		VehicleID:      e.VehicleID,
		FromLevel:      e.FromLevel,
		ToLevel:        e.ToLevel,
		CrewOf:         e.CrewOf,
		Final:          e.Final,
	}

	if len(e.Crew) > 0 {
		var crew []string
		if err := json.Unmarshal(e.Crew, &crew); err == nil && len(crew) > 0 {
			ev.Crew = crew
		}
	}
	if len(e.Details) > 0 {
		var d details
		if err := json.Unmarshal(e.Details, &d); err == nil {
			ev.Direction = d.Direction
			ev.Stall = d.Stall
			ev.Info = d.Info
		}
	}
	return ev
}
