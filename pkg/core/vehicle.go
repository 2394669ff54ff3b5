// pkg/core/vehicle.go
package core

import "time"

// Destroy levels reported by vehicle destruction lines.
const (
	LevelIntact    = 0
	LevelSoftDeath = 1
	LevelDestroyed = 2
)

// VehicleRecord is the tracked destruction state of one vehicle.
type VehicleRecord struct {
	ID             string     `json:"id"`
	Level          int        `json:"level"`
	LastAttacker   string     `json:"lastAttacker,omitempty"`
	LastDamageType DamageType `json:"lastDamageType,omitempty"`
	ShipName       string     `json:"shipName,omitempty"`
	Created        time.Time  `json:"created"`
	Updated        time.Time  `json:"updated"`
}
