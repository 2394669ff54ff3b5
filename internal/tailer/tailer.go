// Package tailer follows a growing log file and emits complete lines.
package tailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/pkg/core"
)

// ErrStopped is returned by Run when its context is cancelled.
var ErrStopped = errors.New("tailer stopped")

const readChunk = 64 * 1024

// IOError is a file access failure. In follow modes it is retried with
// backoff and only surfaces through Diagnostics.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Diagnostics is a point-in-time view of the tailer's progress.
type Diagnostics struct {
	Path       string    `json:"path"`
	Mode       core.Mode `json:"mode"`
	Cursor     int64     `json:"cursor"`
	FileSize   int64     `json:"fileSize"`
	LinesRead  uint64    `json:"linesRead"`
	BytesRead  int64     `json:"bytesRead"`
	Checks     uint64    `json:"checks"`
	Boundaries int       `json:"boundaries"`
	Retries    int       `json:"retries"`
	Degraded   bool      `json:"degraded"`
	LastError  string    `json:"lastError,omitempty"`
	LastRead   time.Time `json:"lastRead,omitempty"`
}

// EmitFunc receives every line and marker. Returning an error stops Run
// with that error.
type EmitFunc func(core.RawLine) error

// Tailer reads one log file. Seq numbers are monotonic over the life of
// the Tailer, including markers.
type Tailer struct {
	path    string
	mode    core.Mode
	cfg     config.TailerConfig
	backoff Backoff
	logger  *slog.Logger
	now     func() time.Time

	file         *os.File
	fresh        bool // next open starts a new session at offset 0
	missing      bool // Prepare found no file; it is read from the start once it appears
	cursor       int64
	partial      []byte
	partialStart int64
	seq          uint64

	mu   sync.Mutex
	diag Diagnostics
}

// New creates a tailer for path. Zero config values fall back to defaults.
func New(path string, mode core.Mode, cfg config.TailerConfig, logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 10 * 1024 * 1024
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = filepath.Clean(abs)
	}
	return &Tailer{
		path: path,
		mode: mode,
		cfg:  cfg,
		backoff: Backoff{
			Initial:    cfg.InitialBackoff,
			Multiplier: cfg.BackoffMultiplier,
			Max:        cfg.MaxBackoff,
		},
		logger: logger.With("component", "tailer", "path", path),
		now:    time.Now,
		diag:   Diagnostics{Path: path, Mode: mode},
	}
}

// Path returns the absolute path being tailed.
func (t *Tailer) Path() string { return t.path }

// Diagnostics returns a copy of the current diagnostics.
func (t *Tailer) Diagnostics() Diagnostics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.diag
}

// Run reads the file according to the tailer's mode and passes every line
// to emit.
//
// ModeReplay reads from offset 0 to EOF, flushes an unterminated last line
// and returns nil. ModeLive starts at the current end of the file and
// follows appends. ModeReplayThenFollow replays, emits a ReplayComplete
// marker and then follows. Following only ends when ctx is cancelled, in
// which case ErrStopped is returned.
//
// A missing parent directory is fatal in every mode. In replay mode a
// file that cannot be opened is fatal too; in follow modes it is retried.
func (t *Tailer) Run(ctx context.Context, emit EmitFunc) error {
	if _, err := os.Stat(filepath.Dir(t.path)); err != nil {
		return &IOError{Op: "stat", Path: filepath.Dir(t.path), Err: err}
	}
	defer t.closeFile()

	switch t.mode {
	case core.ModeReplay:
		if err := t.open(); err != nil {
			return err
		}
		if err := t.readAvailable(ctx, emit); err != nil {
			return err
		}
		return t.flushPartial(emit)

	case core.ModeReplayThenFollow:
		if err := t.openWithRetry(ctx); err != nil {
			return err
		}
		if err := t.readAvailable(ctx, emit); err != nil {
			return err
		}
		if err := t.emitMarker(core.MarkerReplayComplete, emit); err != nil {
			return err
		}

	default:
		if t.file != nil {
			break
		}
		retried, err := t.openRetrying(ctx)
		if err != nil {
			return err
		}
		// a file that only appeared after retrying is a new session
		if !retried && !t.missing {
			if err := t.seekEnd(); err != nil {
				return err
			}
		}
	}

	return t.follow(ctx, emit)
}

// Prepare positions a live tailer at the current end of the file so that
// lines appended before Run starts are still delivered. It is a no-op in
// replay modes. A file that cannot be opened yet is left for Run to retry.
func (t *Tailer) Prepare() error {
	if t.mode != core.ModeLive || t.file != nil {
		return nil
	}
	if err := t.open(); err != nil {
		t.missing = true
		t.fail(err)
		return nil
	}
	if err := t.seekEnd(); err != nil {
		t.closeFile()
		return err
	}
	return nil
}

type watch struct {
	events <-chan fsnotify.Event
	errs   <-chan error
}

func (t *Tailer) follow(ctx context.Context, emit EmitFunc) error {
	var w watch

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn("file notifications unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(t.path)); err != nil {
			t.logger.Warn("failed to watch directory, polling only", "error", err)
		} else {
			w.events = watcher.Events
			w.errs = watcher.Errors
		}
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := t.check(ctx, emit); err != nil {
			return err
		}
		if err := t.wait(ctx, ticker.C, &w); err != nil {
			return err
		}
	}
}

// wait blocks until the next poll tick or a notification about our file.
func (t *Tailer) wait(ctx context.Context, tick <-chan time.Time, w *watch) error {
	for {
		select {
		case <-ctx.Done():
			return ErrStopped
		case <-tick:
			return nil
		case ev, ok := <-w.events:
			if !ok {
				w.events = nil
				continue
			}
			if !strings.EqualFold(filepath.Clean(ev.Name), t.path) {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				t.logger.Info("log file rotated")
				t.closeFile()
				t.fresh = true
			}
			return nil
		case err, ok := <-w.errs:
			if !ok {
				w.errs = nil
				continue
			}
			t.logger.Debug("watcher error", "error", err)
		}
	}
}

// check reads whatever was appended since the last check, handling
// truncation and rotation. IO failures are recorded and retried later.
func (t *Tailer) check(ctx context.Context, emit EmitFunc) error {
	t.update(func(d *Diagnostics) { d.Checks++ })

	if t.file == nil {
		if err := t.openWithRetry(ctx); err != nil {
			return err
		}
		if t.fresh {
			t.fresh = false
			if err := t.boundary(emit); err != nil {
				return err
			}
		}
	}

	info, err := os.Stat(t.path)
	if err != nil {
		t.fail(&IOError{Op: "stat", Path: t.path, Err: err})
		t.closeFile()
		t.fresh = true
		return nil
	}
	current, err := t.file.Stat()
	if err != nil || !os.SameFile(info, current) {
		t.logger.Info("log file replaced")
		t.closeFile()
		t.fresh = true
		return t.check(ctx, emit)
	}

	t.update(func(d *Diagnostics) { d.FileSize = info.Size() })

	if info.Size() < t.cursor {
		t.logger.Info("log file truncated", "size", info.Size(), "cursor", t.cursor)
		if err := t.boundary(emit); err != nil {
			return err
		}
	}
	if info.Size() == t.cursor {
		return nil
	}

	err = t.readAvailable(ctx, emit)
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		t.fail(ioErr)
		t.closeFile()
		return nil
	}
	return err
}

// boundary starts a new session at offset 0.
func (t *Tailer) boundary(emit EmitFunc) error {
	t.cursor = 0
	t.partial = nil
	t.update(func(d *Diagnostics) {
		d.Cursor = 0
		d.Boundaries++
	})
	return t.emitMarker(core.MarkerSessionBoundary, emit)
}

func (t *Tailer) open() error {
	f, err := os.Open(t.path)
	if err != nil {
		return &IOError{Op: "open", Path: t.path, Err: err}
	}
	t.file = f
	if t.fresh {
		t.cursor = 0
		t.partial = nil
	}
	t.update(func(d *Diagnostics) {
		d.Degraded = false
		d.LastError = ""
	})
	return nil
}

func (t *Tailer) openWithRetry(ctx context.Context) error {
	_, err := t.openRetrying(ctx)
	return err
}

// openRetrying opens the file, backing off while it cannot be opened.
// It reports whether at least one attempt failed.
func (t *Tailer) openRetrying(ctx context.Context) (bool, error) {
	for attempt := 1; ; attempt++ {
		err := t.open()
		if err == nil {
			return attempt > 1, nil
		}
		t.fail(err)

		delay := t.backoff.Delay(attempt)
		t.logger.Warn("cannot open log file, retrying", "error", err, "attempt", attempt, "delay", delay)
		t.update(func(d *Diagnostics) { d.Retries++ })

		select {
		case <-ctx.Done():
			return attempt > 1, ErrStopped
		case <-time.After(delay):
		}
	}
}

func (t *Tailer) seekEnd() error {
	end, err := t.file.Seek(0, io.SeekEnd)
	if err != nil {
		return &IOError{Op: "seek", Path: t.path, Err: err}
	}
	t.cursor = end
	t.update(func(d *Diagnostics) {
		d.Cursor = end
		d.FileSize = end
	})
	return nil
}

func (t *Tailer) readAvailable(ctx context.Context, emit EmitFunc) error {
	if _, err := t.file.Seek(t.cursor, io.SeekStart); err != nil {
		return &IOError{Op: "seek", Path: t.path, Err: err}
	}

	buf := make([]byte, readChunk)
	for {
		if ctx.Err() != nil {
			return ErrStopped
		}
		n, err := t.file.Read(buf)
		if n > 0 {
			if err := t.consume(buf[:n], emit); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return &IOError{Op: "read", Path: t.path, Err: err}
		}
	}
}

// consume splits chunk into lines. An unterminated tail is held back in
// t.partial until its newline arrives.
func (t *Tailer) consume(chunk []byte, emit EmitFunc) error {
	base := t.cursor
	t.cursor += int64(len(chunk))
	t.update(func(d *Diagnostics) {
		d.Cursor = t.cursor
		d.BytesRead += int64(len(chunk))
	})

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if len(t.partial) == 0 {
				t.partialStart = base
			}
			t.partial = append(t.partial, chunk...)
			if len(t.partial) > t.cfg.MaxLineBytes {
				t.logger.Warn("line exceeds limit, splitting", "offset", t.partialStart, "limit", t.cfg.MaxLineBytes)
				return t.flushPartial(emit)
			}
			return nil
		}

		text, start := chunk[:i], base
		if len(t.partial) > 0 {
			text = append(t.partial, text...)
			start = t.partialStart
			t.partial = nil
		}
		base += int64(i + 1)
		chunk = chunk[i+1:]

		if err := t.emitLine(text, start, emit); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tailer) flushPartial(emit EmitFunc) error {
	if len(t.partial) == 0 {
		return nil
	}
	text, start := t.partial, t.partialStart
	t.partial = nil
	return t.emitLine(text, start, emit)
}

func (t *Tailer) emitLine(text []byte, offset int64, emit EmitFunc) error {
	t.seq++
	now := t.now()
	t.update(func(d *Diagnostics) {
		d.LinesRead++
		d.LastRead = now
	})
	return emit(core.RawLine{
		Text:    string(bytes.TrimSuffix(text, []byte{'\r'})),
		Offset:  offset,
		Seq:     t.seq,
		Arrived: now,
	})
}

func (t *Tailer) emitMarker(m core.Marker, emit EmitFunc) error {
	t.seq++
	return emit(core.RawLine{Offset: t.cursor, Seq: t.seq, Arrived: t.now(), Marker: m})
}

func (t *Tailer) fail(err error) {
	t.update(func(d *Diagnostics) {
		d.Degraded = true
		d.LastError = err.Error()
	})
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

func (t *Tailer) update(fn func(d *Diagnostics)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.diag)
}
