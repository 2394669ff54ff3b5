package logging

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGelf struct {
	mu   sync.Mutex
	msgs []*gelf.Message
}

func (r *recordingGelf) WriteMessage(m *gelf.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func TestGelfHandler_WritesMessage(t *testing.T) {
	w := &recordingGelf{}
	logger := slog.New(NewGelfHandler(w, "info")).With("session", "s1")

	logger.Warn("tailer degraded", "path", "Game.log")

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "tailer degraded", msg.Short)
	assert.Equal(t, int32(4), msg.Level)
	assert.Equal(t, "s1", msg.Extra["_session"])
	assert.Equal(t, "Game.log", msg.Extra["_path"])
	assert.Equal(t, "1.1", msg.Version)
}

func TestGelfHandler_LevelFilter(t *testing.T) {
	h := NewGelfHandler(&recordingGelf{}, "warn")
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestGelfHandler_Group(t *testing.T) {
	w := &recordingGelf{}
	logger := slog.New(NewGelfHandler(w, "debug")).WithGroup("tailer")

	logger.Debug("tick", "cursor", 10)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, int32(7), w.msgs[0].Level)
	assert.Equal(t, int64(10), w.msgs[0].Extra["_tailer.cursor"])
}

func TestSyslogLevel(t *testing.T) {
	assert.Equal(t, int32(3), syslogLevel(slog.LevelError))
	assert.Equal(t, int32(4), syslogLevel(slog.LevelWarn))
	assert.Equal(t, int32(6), syslogLevel(slog.LevelInfo))
	assert.Equal(t, int32(7), syslogLevel(slog.LevelDebug))
}
