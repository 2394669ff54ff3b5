// Package analyzer replays a finished log file through the engine and
// summarizes it, and lists the game's LogBackups folder.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/internal/engine"
	"github.com/starlogs/starlogs/internal/logging"
	"github.com/starlogs/starlogs/internal/storage"
	"github.com/starlogs/starlogs/internal/storage/memory"
	"github.com/starlogs/starlogs/pkg/core"
)

// Report summarizes one log file.
type Report struct {
	FileName   string             `json:"fileName"`
	Path       string             `json:"path"`
	SizeBytes  int64              `json:"sizeBytes"`
	Session    core.Session       `json:"session"`
	Counters   core.Counters      `json:"counters"`
	SystemInfo map[string]string  `json:"systemInfo"`
	Events     []core.DomainEvent `json:"events"`
}

// Options configures an analysis run.
type Options struct {
	Engine config.EngineConfig
	Tailer config.TailerConfig
	Logger *slog.Logger
	// DispatchLog receives dispatcher diagnostics; nil discards them.
	DispatchLog *zerolog.Logger
}

// Analyze replays path from the start and returns the resulting report.
// Events in the report carry every crew patch.
func Analyze(ctx context.Context, path string, opts Options) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("log file: %s is a directory", path)
	}

	dlog := zerolog.Nop()
	if opts.DispatchLog != nil {
		dlog = *opts.DispatchLog
	}
	d, err := dispatcher.New(logging.NewDispatcherLogger(dlog))
	if err != nil {
		return nil, err
	}
	defer d.Close()

	backend := memory.New(config.MemoryConfig{})
	if err := backend.Init(); err != nil {
		return nil, err
	}
	defer backend.Close()

	// synchronous so the backend holds everything once the replay returns
	storage.Attach(d, "analyzer", backend)

	eng := engine.New(opts.Engine, opts.Tailer, d, nil, opts.Logger)
	if err := eng.Start(ctx, path, core.ModeReplay); err != nil {
		return nil, err
	}
	if err := eng.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := backend.Report()
	counters := eng.Snapshot()
	return &Report{
		FileName:   filepath.Base(path),
		Path:       path,
		SizeBytes:  info.Size(),
		Session:    r.Session,
		Counters:   counters,
		SystemInfo: counters.SystemInfo,
		Events:     r.Events,
	}, nil
}

// ErrNoEvents is returned by Export for a report without events.
var ErrNoEvents = errors.New("report has no events")

// Export writes the report's session in the memory backend's report
// format to dir and returns the file path.
func Export(r *Report, dir string, c memory.Compression) (string, error) {
	if len(r.Events) == 0 {
		return "", ErrNoEvents
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, memory.ReportFileName(r.Session.StartTime, c))
	err := memory.WriteReportFile(path, memory.Report{
		Version:  memory.ReportVersion,
		Session:  r.Session,
		Counters: r.Counters,
		Events:   r.Events,
	}, c)
	return path, err
}
