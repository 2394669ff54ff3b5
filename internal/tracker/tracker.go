// Package tracker keeps the destroy level of every vehicle seen in a session.
package tracker

import (
	"sync"

	"github.com/starlogs/starlogs/pkg/core"
)

// Tracker maps vehicle ids to their destruction records. Levels only
// ever increase; a transition that does not raise the level is dropped.
type Tracker struct {
	mu       sync.Mutex
	vehicles map[string]*core.VehicleRecord
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{vehicles: make(map[string]*core.VehicleRecord)}
}

// Apply feeds a soft death or destruction event into the tracker.
// It returns the event enriched with the vehicle's remembered attacker,
// damage type and ship name, and false when the event is a duplicate or
// would lower the level. Events of other kinds are returned unchanged
// with false.
func (t *Tracker) Apply(ev core.DomainEvent) (core.DomainEvent, bool) {
	if !ev.Kind.IsDestruction() || ev.VehicleID == "" {
		return ev, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.vehicles[ev.VehicleID]
	if !ok {
		rec = &core.VehicleRecord{
			ID:      ev.VehicleID,
			Level:   core.LevelIntact,
			Created: ev.Timestamp,
		}
		t.vehicles[ev.VehicleID] = rec
	}

	if ev.ToLevel <= rec.Level {
		return ev, false
	}

	ev.FromLevel = rec.Level
	rec.Level = ev.ToLevel
	rec.Updated = ev.Timestamp

	if known(ev.Killer) {
		rec.LastAttacker = ev.Killer
	} else {
		ev.Killer = rec.LastAttacker
	}
	if ev.DamageType != "" && ev.DamageType != core.DamageUnknown {
		rec.LastDamageType = ev.DamageType
	} else if rec.LastDamageType != "" {
		ev.DamageType = rec.LastDamageType
	}
	if ev.Ship != "" {
		rec.ShipName = ev.Ship
	} else {
		ev.Ship = rec.ShipName
	}

	return ev, true
}

// Get returns a copy of the record for id.
func (t *Tracker) Get(id string) (core.VehicleRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.vehicles[id]
	if !ok {
		return core.VehicleRecord{}, false
	}
	return *rec, true
}

// Len returns the number of tracked vehicles.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.vehicles)
}

// Reset forgets every vehicle.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vehicles = make(map[string]*core.VehicleRecord)
}

func known(name string) bool {
	return name != "" && name != "unknown"
}
