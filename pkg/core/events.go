// pkg/core/events.go
package core

import (
	"strings"
	"time"
)

// Kind identifies what a classified log line represents.
type Kind string

const (
	KindPveKill            Kind = "pve_kill"
	KindPvpKill            Kind = "pvp_kill"
	KindKill               Kind = "kill" // NPC killed NPC
	KindDeath              Kind = "death"
	KindFpsPveKill         Kind = "fps_pve_kill"
	KindFpsPvpKill         Kind = "fps_pvp_kill"
	KindFpsDeath           Kind = "fps_death"
	KindSuicide            Kind = "suicide"
	KindCorpse             Kind = "corpse"
	KindDisconnect         Kind = "disconnect"
	KindActorStall         Kind = "actor_stall"
	KindVehicleSoftDeath   Kind = "vehicle_soft_death"
	KindVehicleDestruction Kind = "vehicle_destruction"
	KindSystemInfo         Kind = "system_info"
	KindUnrecognized       Kind = "unrecognized"
)

// IsKill reports whether the kind came from an actor death line.
func (k Kind) IsKill() bool {
	switch k {
	case KindPveKill, KindPvpKill, KindKill, KindDeath, KindFpsPveKill, KindFpsPvpKill, KindFpsDeath:
		return true
	}
	return false
}

// IsFPS reports whether the kind is an on-foot kill or death.
func (k Kind) IsFPS() bool {
	return k == KindFpsPveKill || k == KindFpsPvpKill || k == KindFpsDeath
}

// IsCrewDeath reports whether events of this kind may be attached to a
// vehicle destruction as crew.
func (k Kind) IsCrewDeath() bool {
	return k == KindDeath || k == KindFpsDeath
}

// IsDestruction reports whether the kind is a vehicle destroy level transition.
func (k Kind) IsDestruction() bool {
	return k == KindVehicleSoftDeath || k == KindVehicleDestruction
}

// DamageType is the closed set of damage causes reported for vehicle losses.
type DamageType string

const (
	DamageCombat       DamageType = "combat"
	DamageCollision    DamageType = "collision"
	DamageSelfDestruct DamageType = "self_destruct"
	DamageGameRules    DamageType = "game_rules"
	DamageUnknown      DamageType = "unknown"
)

// ParseDamageType maps a raw damage type string from the log onto DamageType.
// Anything not recognised becomes DamageUnknown.
func ParseDamageType(raw string) DamageType {
	norm := strings.ToLower(strings.NewReplacer("_", "", " ", "", "-", "").Replace(raw))
	switch norm {
	case "combat", "bullet", "explosion", "ballistic", "energy", "laser", "missile", "distortion", "melee", "vehicledestruction":
		return DamageCombat
	case "collision", "crash":
		return DamageCollision
	case "selfdestruct", "suicide":
		return DamageSelfDestruct
	case "gamerules":
		return DamageGameRules
	}
	return DamageUnknown
}

// WeaponClass is the coarse family of a weapon.
type WeaponClass string

const (
	WeaponBallistic WeaponClass = "ballistic"
	WeaponEnergy    WeaponClass = "energy"
	WeaponMissile   WeaponClass = "missile"
	WeaponUnknown   WeaponClass = "unknown"
)

// Vector3 is a direction vector as written by the game.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Stall holds the fields of an actor stall line.
type Stall struct {
	Player string  `json:"player"`
	Type   string  `json:"type"`
	Length float64 `json:"length"`
}

// SystemInfo is one key/value pair from the log header.
type SystemInfo struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DomainEvent is a typed event produced from one log line.
// Seq is the sequence number of the originating line and identifies the
// event for later patches.
type DomainEvent struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Raw       string    `json:"raw,omitempty"`

	Killer   string `json:"killer,omitempty"`
	KillerID string `json:"killerId,omitempty"`
	Victim   string `json:"victim,omitempty"`
	VictimID string `json:"victimId,omitempty"`

	Weapon         string      `json:"weapon,omitempty"`
	WeaponClassRaw string      `json:"weaponClassRaw,omitempty"`
	WeaponClass    WeaponClass `json:"weaponClass,omitempty"`
	WeaponSize     int         `json:"weaponSize,omitempty"`

	DamageType    DamageType `json:"damageType,omitempty"`
	RawDamageType string     `json:"rawDamageType,omitempty"`

	Zone           string   `json:"zone,omitempty"`
	Ship           string   `json:"ship,omitempty"`
	Direction      *Vector3 `json:"direction,omitempty"`
	DirectionLabel string   `json:"directionLabel,omitempty"`

	VehicleID string   `json:"vehicleId,omitempty"`
	FromLevel int      `json:"fromLevel,omitempty"`
	ToLevel   int      `json:"toLevel,omitempty"`
	Crew      []string `json:"crew,omitempty"`
	CrewOf    string   `json:"crewOf,omitempty"`
	// Final is set on destructions whose crew list can no longer change.
	Final bool `json:"final,omitempty"`

	Stall *Stall       `json:"stall,omitempty"`
	Info  []SystemInfo `json:"info,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with e.
func (e DomainEvent) Clone() DomainEvent {
	out := e
	if e.Crew != nil {
		out.Crew = append([]string(nil), e.Crew...)
	}
	if e.Direction != nil {
		d := *e.Direction
		out.Direction = &d
	}
	if e.Stall != nil {
		s := *e.Stall
		out.Stall = &s
	}
	if e.Info != nil {
		out.Info = append([]SystemInfo(nil), e.Info...)
	}
	return out
}

// Patch amends an already delivered event. Seq is the target event's Seq.
// Final is set once the event's correlation window has closed.
type Patch struct {
	Seq       uint64   `json:"seq"`
	Kind      Kind     `json:"kind"`
	VehicleID string   `json:"vehicleId,omitempty"`
	Crew      []string `json:"crew,omitempty"`
	CrewOf    string   `json:"crewOf,omitempty"`
	Final     bool     `json:"final"`
}

// Apply copies the patch onto e. Crew is only replaced when the patch
// targets a destruction event.
func (p Patch) Apply(e *DomainEvent) {
	if e.Seq != p.Seq {
		return
	}
	if e.Kind.IsDestruction() {
		e.Crew = append([]string(nil), p.Crew...)
	}
	if p.CrewOf != "" {
		e.CrewOf = p.CrewOf
	}
	if p.Final {
		e.Final = true
	}
}

// Counters is a point-in-time copy of the aggregated totals.
type Counters struct {
	PveKills     int `json:"pveKills"`
	PvpKills     int `json:"pvpKills"`
	NpcKills     int `json:"npcKills"`
	Deaths       int `json:"deaths"`
	FpsPveKills  int `json:"fpsPveKills"`
	FpsPvpKills  int `json:"fpsPvpKills"`
	FpsDeaths    int `json:"fpsDeaths"`
	Suicides     int `json:"suicides"`
	Corpses      int `json:"corpses"`
	Disconnects  int `json:"disconnects"`
	ActorStalls  int `json:"actorStalls"`
	SoftDeaths   int `json:"softDeaths"`
	Destructions int `json:"destructions"`

	TotalLines        int `json:"totalLines"`
	UnrecognizedLines int `json:"unrecognizedLines"`
	Events            int `json:"events"`
	Patches           int `json:"patches"`
	CrewAttached      int `json:"crewAttached"`

	DestructionsByDamage map[DamageType]int `json:"destructionsByDamage"`
	SystemInfo           map[string]string  `json:"systemInfo"`
}
