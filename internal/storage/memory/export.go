// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/starlogs/starlogs/pkg/core"
)

// ReportVersion is bumped whenever the report layout changes.
const ReportVersion = 1

// Compression selects how report files are encoded.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// Report is the root JSON structure of a session export
type Report struct {
	Version  int                `json:"version"`
	Session  core.Session       `json:"session"`
	Counters core.Counters      `json:"counters"`
	Events   []core.DomainEvent `json:"events"`
}

// ParseCompression accepts none, gzip or zstd; empty means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return c, nil
	}
	return "", fmt.Errorf("unknown compression %q", s)
}

// Extension returns the file suffix for a compression.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".json.gz"
	case CompressionZstd:
		return ".json.zst"
	}
	return ".json"
}

// Report builds the export of the current session.
func (b *Backend) Report() Report {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buildReport()
}

func (b *Backend) buildReport() Report {
	r := Report{
		Version:  ReportVersion,
		Counters: b.agg.Snapshot(),
		Events:   make([]core.DomainEvent, 0, len(b.events)),
	}
	if b.session != nil {
		r.Session = *b.session
	}
	for _, ev := range b.events {
		r.Events = append(r.Events, ev.Clone())
	}
	return r
}

// exportJSON writes the session report to the output directory
func (b *Backend) exportJSON() error {
	c, err := ParseCompression(b.cfg.Compression)
	if err != nil {
		return err
	}

	outputPath := filepath.Join(b.cfg.OutputDir, ReportFileName(b.session.StartTime, c))

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := WriteReportFile(outputPath, b.buildReport(), c); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

// ReportFileName names a report after its session start.
func ReportFileName(start time.Time, c Compression) string {
	return "session_" + start.Format("20060102_150405") + c.Extension()
}

// WriteReportFile encodes r to path.
func WriteReportFile(path string, r Report, c Compression) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := WriteReport(f, r, c); err != nil {
		return err
	}
	return f.Close()
}

// WriteReport encodes r to w with the given compression.
func WriteReport(w io.Writer, r Report, c Compression) error {
	var (
		out io.WriteCloser
		err error
	)
	switch c {
	case CompressionGzip:
		out = gzip.NewWriter(w)
	case CompressionZstd:
		out, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
	default:
		out = nopCloser{w}
	}

	encoder := json.NewEncoder(out)
	if err := encoder.Encode(r); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return out.Close()
}

// ReadReportFile decodes a report, choosing the decompressor from the file
// extension.
func ReadReportFile(path string) (Report, error) {
	var r Report

	f, err := os.Open(path)
	if err != nil {
		return r, err
	}
	defer f.Close()

	var in io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return r, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		in = gz
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			return r, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer dec.Close()
		in = dec
	}

	if err := json.NewDecoder(in).Decode(&r); err != nil {
		return r, fmt.Errorf("failed to decode report: %w", err)
	}
	return r, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
