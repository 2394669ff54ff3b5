// internal/storage/storage_test.go
package storage_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/internal/storage"
	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

type recordingBackend struct {
	calls  []string
	resets []string
	err    error
}

func (b *recordingBackend) Init() error  { return nil }
func (b *recordingBackend) Close() error { return nil }
func (b *recordingBackend) StartSession(s core.Session) error {
	b.calls = append(b.calls, "start:"+s.ID)
	return b.err
}
func (b *recordingBackend) EndSession(s core.Session) error {
	b.calls = append(b.calls, "end:"+s.ID)
	return b.err
}
func (b *recordingBackend) RecordEvent(ev core.DomainEvent) error {
	b.calls = append(b.calls, "event:"+string(ev.Kind))
	return b.err
}
func (b *recordingBackend) ApplyPatch(p core.Patch) error {
	b.calls = append(b.calls, "patch")
	return b.err
}

type resettingBackend struct{ recordingBackend }

func (b *resettingBackend) Reset(reason string) error {
	b.resets = append(b.resets, reason)
	return nil
}

type registrar struct {
	name string
	h    dispatcher.HandlerFunc
	opts int
}

func (r *registrar) Register(name string, h dispatcher.HandlerFunc, opts ...dispatcher.Option) {
	r.name, r.h, r.opts = name, h, len(opts)
}

func TestHandler_Routing(t *testing.T) {
	b := &recordingBackend{}
	h := storage.Handler(b)
	sess := &core.Session{ID: "s1", StartTime: time.Now()}

	msgs := []streaming.Message{
		{Type: streaming.TypeSessionReset, Reset: &streaming.SessionResetPayload{Reason: "start"}},
		{Type: streaming.TypeStartSession, Session: sess},
		{Type: streaming.TypeEvent, Event: &core.DomainEvent{Seq: 1, Kind: core.KindVehicleDestruction}},
		{Type: streaming.TypeLogLine, LogLine: &streaming.LogLinePayload{Seq: 1}},
		{Type: streaming.TypePatch, Patch: &core.Patch{Seq: 1, Final: true}},
		{Type: streaming.TypeReplayComplete, ReplayComplete: &streaming.ReplayCompletePayload{Lines: 1}},
		{Type: streaming.TypeEndSession, Session: sess},
	}
	for _, m := range msgs {
		require.NoError(t, h(m))
	}
	assert.Equal(t, []string{"start:s1", "event:vehicle_destruction", "patch", "end:s1"}, b.calls)
}

func TestHandler_Reset(t *testing.T) {
	b := &resettingBackend{}
	h := storage.Handler(b)
	require.NoError(t, h(streaming.Message{Type: streaming.TypeSessionReset, Reset: &streaming.SessionResetPayload{Reason: "manual"}}))
	require.NoError(t, h(streaming.Message{Type: streaming.TypeSessionReset}))
	assert.Equal(t, []string{"manual", ""}, b.resets)
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  streaming.Message
	}{
		{"start without session", streaming.Message{Type: streaming.TypeStartSession}},
		{"end without session", streaming.Message{Type: streaming.TypeEndSession}},
		{"event without payload", streaming.Message{Type: streaming.TypeEvent}},
		{"patch without payload", streaming.Message{Type: streaming.TypePatch}},
	}
	h := storage.Handler(&recordingBackend{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, h(tt.msg))
		})
	}

	failing := &recordingBackend{err: errors.New("disk full")}
	err := storage.Handler(failing)(streaming.Message{Type: streaming.TypeEvent, Event: &core.DomainEvent{}})
	assert.EqualError(t, err, "disk full")
}

func TestAttach(t *testing.T) {
	r := &registrar{}
	storage.Attach(r, "storage", &recordingBackend{}, dispatcher.Buffered(10))
	assert.Equal(t, "storage", r.name)
	assert.Equal(t, 1, r.opts)
	require.NotNil(t, r.h)
}
