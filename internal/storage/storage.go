// internal/storage/storage.go
package storage

import (
	"fmt"

	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s core.Session) error
	EndSession(s core.Session) error

	// Event recording
	RecordEvent(ev core.DomainEvent) error
	ApplyPatch(p core.Patch) error
}

// Resetter is an optional interface for backends that drop the current
// session's events when the engine clears its state.
type Resetter interface {
	Reset(reason string) error
}

// Exporter is an optional interface for backends that write a report file
// when a session ends.
type Exporter interface {
	ExportedFilePath() string
}

// Registrar is satisfied by *dispatcher.Dispatcher.
type Registrar interface {
	Register(name string, h dispatcher.HandlerFunc, opts ...dispatcher.Option)
}

// Handler maps engine messages onto backend calls.
func Handler(b Backend) dispatcher.HandlerFunc {
	return func(msg streaming.Message) error {
		switch msg.Type {
		case streaming.TypeStartSession:
			if msg.Session == nil {
				return fmt.Errorf("start_session without session")
			}
			return b.StartSession(*msg.Session)
		case streaming.TypeEndSession:
			if msg.Session == nil {
				return fmt.Errorf("end_session without session")
			}
			return b.EndSession(*msg.Session)
		case streaming.TypeEvent:
			if msg.Event == nil {
				return fmt.Errorf("event message without event")
			}
			return b.RecordEvent(*msg.Event)
		case streaming.TypePatch:
			if msg.Patch == nil {
				return fmt.Errorf("patch message without patch")
			}
			return b.ApplyPatch(*msg.Patch)
		case streaming.TypeSessionReset:
			if r, ok := b.(Resetter); ok {
				reason := ""
				if msg.Reset != nil {
					reason = msg.Reset.Reason
				}
				return r.Reset(reason)
			}
		}
		return nil
	}
}

// Attach registers a backend as a named subscriber.
func Attach(r Registrar, name string, b Backend, opts ...dispatcher.Option) {
	r.Register(name, Handler(b), opts...)
}
