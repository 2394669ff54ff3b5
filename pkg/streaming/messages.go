package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/starlogs/starlogs/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession   = "start_session"
	TypeEndSession     = "end_session"
	TypeEvent          = "event"
	TypePatch          = "patch"
	TypeLogLine        = "log_line"
	TypeSessionReset   = "session_reset"
	TypeReplayComplete = "replay_complete"
)

// Envelope wraps all messages sent to subscribers and over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a new monitoring session.
type StartSessionPayload struct {
	Session core.Session `json:"session"`
}

// LogLinePayload carries one raw line and whether it produced an event.
type LogLinePayload struct {
	Seq      uint64 `json:"seq"`
	Line     string `json:"line"`
	HasEvent bool   `json:"hasEvent"`
}

// SessionResetPayload tells consumers to drop everything they hold.
type SessionResetPayload struct {
	Reason string `json:"reason"`
}

// ReplayCompletePayload marks the end of replayed history.
type ReplayCompletePayload struct {
	Lines int `json:"lines"`
}

// Message is what the engine publishes to subscribers.
// Exactly one of the pointer fields is set, matching Type.
type Message struct {
	Type           string
	Session        *core.Session
	Event          *core.DomainEvent
	Patch          *core.Patch
	LogLine        *LogLinePayload
	Reset          *SessionResetPayload
	ReplayComplete *ReplayCompletePayload
}

// Payload returns the value carried by the message.
func (m Message) Payload() any {
	switch m.Type {
	case TypeStartSession:
		return StartSessionPayload{Session: *m.Session}
	case TypeEndSession:
		return m.Session
	case TypeEvent:
		return m.Event
	case TypePatch:
		return m.Patch
	case TypeLogLine:
		return m.LogLine
	case TypeSessionReset:
		return m.Reset
	case TypeReplayComplete:
		return m.ReplayComplete
	}
	return nil
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Encode marshals a Message into an Envelope.
func (m Message) Encode() ([]byte, error) {
	return Marshal(m.Type, m.Payload())
}
