// internal/storage/memory/export_test.go
package memory

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/pkg/core"
)

func TestReportFileName(t *testing.T) {
	tests := []struct {
		c    Compression
		want string
	}{
		{CompressionNone, "session_20250115_200000.json"},
		{CompressionGzip, "session_20250115_200000.json.gz"},
		{CompressionZstd, "session_20250115_200000.json.zst"},
	}
	for _, tt := range tests {
		t.Run(string(tt.c), func(t *testing.T) {
			assert.Equal(t, tt.want, ReportFileName(sessionStart, tt.c))
		})
	}
}

func TestEndSession_Export(t *testing.T) {
	for _, compression := range []string{"none", "gzip", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "sessions")
			b := New(config.MemoryConfig{OutputDir: dir, Compression: compression})
			require.NoError(t, b.Init())
			require.NoError(t, b.StartSession(testSession()))
			require.NoError(t, b.RecordEvent(destruction(4)))
			require.NoError(t, b.ApplyPatch(core.Patch{Seq: 4, Kind: core.KindVehicleDestruction, Crew: []string{"PlayerOne"}, Final: true}))

			s := testSession()
			s.EndTime = sessionStart.Add(time.Hour)
			require.NoError(t, b.EndSession(s))

			path := b.ExportedFilePath()
			c, _ := ParseCompression(compression)
			assert.Equal(t, filepath.Join(dir, ReportFileName(sessionStart, c)), path)
			_, err := os.Stat(path)
			require.NoError(t, err)

			r, err := ReadReportFile(path)
			require.NoError(t, err)
			assert.Equal(t, ReportVersion, r.Version)
			assert.Equal(t, "6f1c", r.Session.ID)
			assert.True(t, r.Session.EndTime.Equal(s.EndTime))
			require.Len(t, r.Events, 1)
			assert.Equal(t, []string{"PlayerOne"}, r.Events[0].Crew)
			assert.Equal(t, 1, r.Counters.Destructions)
		})
	}
}

func TestWriteReport_EmptyEventsIsArray(t *testing.T) {
	var buf bytes.Buffer
	b := New(config.MemoryConfig{})
	require.NoError(t, WriteReport(&buf, b.Report(), CompressionNone))
	assert.Contains(t, buf.String(), `"events":[]`)
}

func TestReadReportFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadReportFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json.gz")
	require.NoError(t, os.WriteFile(bad, []byte("not gzip"), 0644))
	_, err = ReadReportFile(bad)
	assert.Error(t, err)
}
