package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// SchemaVersion is stored in StarlogsInfo when the schema is created
const SchemaVersion = 1

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&StarlogsInfo{},
	&Session{},
	&Event{},
	&SystemInfo{},
	&IngestPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// StarlogsInfo records the schema version of the database
type StarlogsInfo struct {
	gorm.Model
	SchemaVersion int    `json:"schemaVersion"`
	Application   string `json:"application" gorm:"size:64"`
}

func (*StarlogsInfo) TableName() string {
	return "starlogs_infos"
}

// IngestPerformance is a periodic sample of the storage writer
type IngestPerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_ingestperformance_session_id"`
	Session             Session           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*IngestPerformance) TableName() string {
	return "ingest_performances"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Events     uint32 `json:"events"`
	Patches    uint32 `json:"patches"`
	SystemInfo uint32 `json:"systemInfo"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one monitoring run over a Game.log
type Session struct {
	gorm.Model
	UUID      string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	LogPath   string       `json:"logPath" gorm:"size:1024"`
	Mode      string       `json:"mode" gorm:"size:32"`
	StartTime time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime   sql.NullTime `json:"endTime"`

	Events     []Event
	SystemInfo []SystemInfo
}

func (*Session) TableName() string {
	return "sessions"
}

// Event is one classified log line. Seq is unique within a session and
// is the key patches are applied by.
type Event struct {
	ID   uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time time.Time `json:"time" gorm:"index:idx_event_time"`

	SessionID uint    `json:"sessionId" gorm:"uniqueIndex:idx_event_session_seq"`
	Session   Session `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Seq       uint64  `json:"seq" gorm:"uniqueIndex:idx_event_session_seq"`
	Kind      string  `json:"kind" gorm:"size:32;index:idx_event_kind"`

	Killer   string `json:"killer" gorm:"size:127;index:idx_event_killer"`
	KillerID string `json:"killerId" gorm:"size:32"`
	Victim   string `json:"victim" gorm:"size:127;index:idx_event_victim"`
	VictimID string `json:"victimId" gorm:"size:32"`

	Weapon         string `json:"weapon" gorm:"size:127"`
	WeaponClassRaw string `json:"weaponClassRaw" gorm:"size:127"`
	WeaponClass    string `json:"weaponClass" gorm:"size:32"`
	WeaponSize     int    `json:"weaponSize"`

	DamageType    string `json:"damageType" gorm:"size:32"`
	RawDamageType string `json:"rawDamageType" gorm:"size:64"`

	Zone           string `json:"zone" gorm:"size:127"`
	Ship           string `json:"ship" gorm:"size:127"`
	DirectionLabel string `json:"directionLabel" gorm:"size:32"`

	VehicleID string         `json:"vehicleId" gorm:"size:127;index:idx_event_vehicle"`
	FromLevel int            `json:"fromLevel"`
	ToLevel   int            `json:"toLevel"`
	Crew      datatypes.JSON `json:"crew"`
	CrewOf    string         `json:"crewOf" gorm:"size:127"`
	Final     bool           `json:"final"`

	// Details holds the direction vector, stall fields and header info.
	Details datatypes.JSON `json:"details"`
	Raw     string         `json:"raw" gorm:"type:text"`
}

func (*Event) TableName() string {
	return "events"
}

// SystemInfo is one header key/value pair, first value per key
type SystemInfo struct {
	ID        uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID uint    `json:"sessionId" gorm:"uniqueIndex:idx_systeminfo_session_key"`
	Session   Session `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Key       string  `json:"key" gorm:"size:64;uniqueIndex:idx_systeminfo_session_key"`
	Value     string  `json:"value" gorm:"size:255"`
}

func (*SystemInfo) TableName() string {
	return "system_infos"
}
