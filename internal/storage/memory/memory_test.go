// internal/storage/memory/memory_test.go
package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/storage"
	"github.com/starlogs/starlogs/pkg/core"
)

// Verify Backend implements the storage interfaces
var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Resetter = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

var sessionStart = time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)

func testSession() core.Session {
	return core.Session{ID: "6f1c", LogPath: "/sc/Game.log", Mode: core.ModeReplay, StartTime: sessionStart}
}

func destruction(seq uint64) core.DomainEvent {
	return core.DomainEvent{
		Seq:        seq,
		Kind:       core.KindVehicleDestruction,
		Timestamp:  sessionStart.Add(time.Second),
		VehicleID:  "ANVL_Paladin_6763231335005",
		FromLevel:  1,
		ToLevel:    2,
		DamageType: core.DamageCombat,
	}
}

func TestInit_Compression(t *testing.T) {
	tests := []struct {
		compression string
		wantErr     bool
	}{
		{"", false},
		{"none", false},
		{"gzip", false},
		{"ZSTD", false},
		{"brotli", true},
	}
	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			err := New(config.MemoryConfig{Compression: tt.compression}).Init()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecordEventAndPatch(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordEvent(destruction(7)))
	require.NoError(t, b.ApplyPatch(core.Patch{
		Seq:   7,
		Kind:  core.KindVehicleDestruction,
		Crew:  []string{"PlayerOne", "PlayerThree"},
		Final: true,
	}))
	// unknown targets are ignored
	require.NoError(t, b.ApplyPatch(core.Patch{Seq: 99, Final: true}))

	evs := b.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, []string{"PlayerOne", "PlayerThree"}, evs[0].Crew)
	assert.True(t, evs[0].Final)

	r := b.Report()
	assert.Equal(t, 1, r.Counters.Destructions)
	assert.Equal(t, 1, r.Counters.Patches)
	assert.Equal(t, "6f1c", r.Session.ID)
}

func TestRecordEvent_RepeatedSeqReplaces(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	ev := destruction(3)
	require.NoError(t, b.RecordEvent(ev))
	ev.Killer = "PlayerTwo"
	require.NoError(t, b.RecordEvent(ev))

	evs := b.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "PlayerTwo", evs[0].Killer)
	assert.Equal(t, 1, b.Report().Counters.Events)
}

func TestEventsAreCopies(t *testing.T) {
	b := New(config.MemoryConfig{})
	ev := destruction(1)
	ev.Crew = []string{"PlayerOne"}
	require.NoError(t, b.RecordEvent(ev))

	ev.Crew[0] = "changed"
	got := b.Events()
	got[0].Crew[0] = "also changed"
	assert.Equal(t, "PlayerOne", b.Events()[0].Crew[0])
}

func TestStartSession_DropsPrevious(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordEvent(destruction(1)))

	next := testSession()
	next.ID = "a2b9"
	require.NoError(t, b.StartSession(next))
	assert.Empty(t, b.Events())

	s, ok := b.Session()
	require.True(t, ok)
	assert.Equal(t, "a2b9", s.ID)
}

func TestReset(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordEvent(destruction(1)))

	require.NoError(t, b.Reset("manual"))
	assert.Empty(t, b.Events())
	assert.Zero(t, b.Report().Counters.Destructions)
	_, ok := b.Session()
	assert.True(t, ok, "reset keeps the session open")
}

func TestEndSession_UnknownSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	assert.Error(t, b.EndSession(testSession()))

	require.NoError(t, b.StartSession(testSession()))
	other := testSession()
	other.ID = "other"
	assert.Error(t, b.EndSession(other))
}

func TestEndSession_NoOutputDirSkipsExport(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	s := testSession()
	s.EndTime = sessionStart.Add(time.Hour)
	require.NoError(t, b.EndSession(s))
	assert.Empty(t, b.ExportedFilePath())

	got, _ := b.Session()
	assert.Equal(t, s.EndTime, got.EndTime)
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for j := uint64(0); j < 50; j++ {
				_ = b.RecordEvent(destruction(base*100 + j))
				_ = b.Report()
			}
		}(uint64(i))
	}
	wg.Wait()
	assert.Len(t, b.Events(), 400)
}
