// Package websocket streams engine output to a remote server. Session
// boundaries wait for a server ack; events and patches are fire-and-forget.
package websocket

import (
	"log/slog"
	"time"

	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket.
type Backend struct {
	conn       *connection
	cfg        Config
	ackTimeout time.Duration
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn:       newConnection(logger.With("component", "storage.websocket")),
		cfg:        cfg,
		ackTimeout: ackTimeout,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session and waits for the server ack.
func (b *Backend) StartSession(s core.Session) error {
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}
	b.conn.setCachedStart(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, b.ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession(s core.Session) error {
	data, err := streaming.Marshal(streaming.TypeEndSession, s)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, b.ackTimeout)

	// Clear cached state regardless of error.
	b.conn.setCachedStart(nil)
	return err
}

func (b *Backend) RecordEvent(ev core.DomainEvent) error {
	return b.sendEnvelope(streaming.TypeEvent, ev)
}

func (b *Backend) ApplyPatch(p core.Patch) error {
	return b.sendEnvelope(streaming.TypePatch, p)
}

// Reset tells the server to drop what it holds for the session.
func (b *Backend) Reset(reason string) error {
	return b.sendEnvelope(streaming.TypeSessionReset, streaming.SessionResetPayload{Reason: reason})
}
