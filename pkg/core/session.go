// pkg/core/session.go
package core

import "time"

// Mode selects how a log file is read.
type Mode string

const (
	// ModeLive starts at the current end of the file and follows appends.
	ModeLive Mode = "live"
	// ModeReplay reads from offset 0 to EOF and stops.
	ModeReplay Mode = "replay"
	// ModeReplayThenFollow replays the whole file, then follows appends.
	ModeReplayThenFollow Mode = "replay_follow"
)

// Session describes one monitoring run over a log file.
type Session struct {
	ID        string    `json:"id"`
	LogPath   string    `json:"logPath"`
	Mode      Mode      `json:"mode"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"`
}

// Marker flags a RawLine that carries no text but a stream boundary.
type Marker int

const (
	MarkerNone Marker = iota
	// MarkerSessionBoundary is emitted when the file was truncated or rotated.
	MarkerSessionBoundary
	// MarkerReplayComplete separates replayed history from live lines.
	MarkerReplayComplete
)

// RawLine is a single line read from the log.
type RawLine struct {
	Text    string
	Offset  int64
	Seq     uint64
	Arrived time.Time
	Marker  Marker
}
