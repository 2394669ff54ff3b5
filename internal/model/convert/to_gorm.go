// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/starlogs/starlogs/internal/model"
	"github.com/starlogs/starlogs/pkg/core"
)

// details is the JSON layout of model.Event.Details.
type details struct {
	Direction *core.Vector3     `json:"direction,omitempty"`
	Stall     *core.Stall       `json:"stall,omitempty"`
	Info      []core.SystemInfo `json:"info,omitempty"`
}

// crewToJSON converts a crew list to datatypes.JSON for DB storage.
func crewToJSON(crew []string) datatypes.JSON {
	if len(crew) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(crew)
	return datatypes.JSON(data)
}

// CrewJSON exposes the crew encoding for patch updates.
func CrewJSON(crew []string) datatypes.JSON {
	return crewToJSON(crew)
}

func detailsToJSON(ev core.DomainEvent) datatypes.JSON {
	d := details{Direction: ev.Direction, Stall: ev.Stall, Info: ev.Info}
	if d.Direction == nil && d.Stall == nil && len(d.Info) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(d)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to GORM Session.UUID.
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		UUID:      s.ID,
		LogPath:   s.LogPath,
		Mode:      string(s.Mode),
		StartTime: s.StartTime,
	}
	if !s.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return out
}

// CoreToEvent converts a core.DomainEvent to a GORM model.Event.
// The session id is stamped by the writer.
func CoreToEvent(ev core.DomainEvent) model.Event {
	return model.Event{
		Time:           ev.Timestamp,
		Seq:            ev.Seq,
		Kind:           string(ev.Kind),
		Killer:         ev.Killer,
		KillerID:       ev.KillerID,
		Victim:         ev.Victim,
		VictimID:       ev.VictimID,
		Weapon:         ev.Weapon,
		WeaponClassRaw: ev.WeaponClassRaw,
		WeaponClass:    string(ev.WeaponClass),
		WeaponSize:     ev.WeaponSize,
		DamageType:     string(ev.DamageType),
		RawDamageType:  ev.RawDamageType,
		Zone:           ev.Zone,
		Ship:           ev.Ship,
		DirectionLabel: ev.DirectionLabel,
		VehicleID:      ev.VehicleID,
		FromLevel:      ev.FromLevel,
		ToLevel:        ev.ToLevel,
		Crew:           crewToJSON(ev.Crew),
		CrewOf:         ev.CrewOf,
		Final:          ev.Final,
		Details:        detailsToJSON(ev),
		Raw:            ev.Raw,
	}
}

// CoreToSystemInfo converts the header pairs of a system info event.
func CoreToSystemInfo(ev core.DomainEvent) []model.SystemInfo {
	out := make([]model.SystemInfo, 0, len(ev.Info))
	for _, kv := range ev.Info {
		out = append(out, model.SystemInfo{Key: kv.Key, Value: kv.Value})
	}
	return out
}
