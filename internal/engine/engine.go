// Package engine owns one log pipeline and its lifecycle.
//
// A single worker goroutine reads lines from the tailer and drives the
// pipeline. Subscribers receive messages through the dispatcher; the pull
// side (Snapshot, RecentEvents, RawLines) is safe to call at any time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/internal/session"
	"github.com/starlogs/starlogs/internal/tailer"
	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

var (
	// ErrNotRunning is returned when an operation needs a started engine.
	ErrNotRunning = errors.New("engine not running")
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Diagnostics is a point-in-time view of the engine for status reporting.
type Diagnostics struct {
	Running         bool                `json:"running"`
	Session         *core.Session       `json:"session,omitempty"`
	Tailer          *tailer.Diagnostics `json:"tailer,omitempty"`
	Window          time.Duration       `json:"window"`
	OpenEntries     int                 `json:"openEntries"`
	PendingCrew     int                 `json:"pendingCrew"`
	TrackedVehicles int                 `json:"trackedVehicles"`
	LastError       string              `json:"lastError,omitempty"`
}

// run is one tailer worker.
type run struct {
	tailer   *tailer.Tailer
	cancel   context.CancelFunc
	done     chan struct{}
	replayed chan struct{}
	once     sync.Once
	err      error
}

func (r *run) markReplayed() {
	r.once.Do(func() { close(r.replayed) })
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Engine is the long-lived owner of a pipeline.
type Engine struct {
	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher
	session    *session.Context
	tailerCfg  config.TailerConfig
	bufferSize int

	// pmu serializes pipeline access between the worker and control calls.
	pmu      sync.Mutex
	pipeline *Pipeline

	// mu guards the lifecycle fields below.
	mu        sync.Mutex
	cur       *run
	baseCtx   context.Context
	path      string
	follow    bool
	reprocess context.CancelFunc
}

// New creates an engine publishing through d. sess may be shared with the
// logging context provider.
func New(cfg config.EngineConfig, tailerCfg config.TailerConfig, d *dispatcher.Dispatcher, sess *session.Context, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if sess == nil {
		sess = session.NewContext()
	}
	e := &Engine{
		logger:     logger.With("component", "engine"),
		dispatcher: d,
		session:    sess,
		tailerCfg:  tailerCfg,
		bufferSize: cfg.SubscriberBuffer,
	}
	e.pipeline = NewPipeline(cfg, logger.With("component", "pipeline"), e.publish)
	return e
}

// Subscribe registers a handler for engine messages. Without options the
// subscriber is buffered with the configured queue size.
func (e *Engine) Subscribe(name string, h dispatcher.HandlerFunc, opts ...dispatcher.Option) {
	if len(opts) == 0 && e.bufferSize > 0 {
		opts = []dispatcher.Option{dispatcher.Buffered(e.bufferSize)}
	}
	e.dispatcher.Register(name, h, opts...)
}

// Unsubscribe removes a handler.
func (e *Engine) Unsubscribe(name string) {
	e.dispatcher.Unregister(name)
}

// Start begins reading path in the given mode. In live mode the reader is
// positioned at the end of the file before Start returns, so every line
// appended afterwards is delivered. Use Wait to block until a replay
// finishes. A missing log directory is reported here.
func (e *Engine) Start(ctx context.Context, path string, mode core.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur != nil && !e.cur.finished() {
		return ErrAlreadyRunning
	}
	e.baseCtx = ctx
	e.follow = mode != core.ModeReplay
	_, err := e.startLocked(ctx, path, mode, "start")
	return err
}

func (e *Engine) startLocked(ctx context.Context, path string, mode core.Mode, reason string) (*run, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving log path: %w", err)
	}
	if _, err := os.Stat(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("log directory: %w", err)
	}

	e.pmu.Lock()
	e.pipeline.Reset(reason)
	e.pmu.Unlock()

	t := tailer.New(abs, mode, e.tailerCfg, e.logger)
	if err := t.Prepare(); err != nil {
		return nil, fmt.Errorf("positioning log reader: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		tailer:   t,
		cancel:   cancel,
		done:     make(chan struct{}),
		replayed: make(chan struct{}),
	}
	e.cur = r
	e.path = abs

	e.beginSession(abs, mode)
	e.logger.Info("engine started", "path", abs, "mode", mode)

	go e.work(runCtx, r)
	return r, nil
}

func (e *Engine) work(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.markReplayed()

	err := r.tailer.Run(ctx, func(line core.RawLine) error {
		if ctx.Err() != nil {
			return tailer.ErrStopped
		}
		e.handle(line)
		if line.Marker == core.MarkerReplayComplete {
			r.markReplayed()
		}
		return nil
	})

	e.pmu.Lock()
	e.pipeline.Flush()
	e.pmu.Unlock()
	e.endSession()

	if errors.Is(err, tailer.ErrStopped) {
		err = nil
	}
	if err != nil {
		e.logger.Error("log reader stopped", "error", err)
	}
	r.err = err
}

func (e *Engine) handle(line core.RawLine) {
	e.pmu.Lock()
	defer e.pmu.Unlock()

	if line.Marker == core.MarkerSessionBoundary {
		e.pipeline.Flush()
		prev, ok := e.endSession()
		e.pipeline.Process(line)
		if ok {
			e.beginSession(prev.LogPath, prev.Mode)
		}
		return
	}
	e.pipeline.Process(line)
}

// Stop cancels the running worker and waits for it to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reprocess != nil {
		e.reprocess()
		e.reprocess = nil
	}
	r := e.cur
	if r == nil || r.finished() {
		return ErrNotRunning
	}
	r.cancel()
	<-r.done
	e.logger.Info("engine stopped", "path", e.path)
	return nil
}

// Wait blocks until the current worker exits and returns its error. A
// stop or cancellation is not an error.
func (e *Engine) Wait() error {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}
	<-r.done
	return r.err
}

// Running reports whether a worker is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil && !e.cur.finished()
}

// Reset clears all derived state. Pending configuration takes effect and
// subscribers receive a session_reset message. The tailer keeps its
// position.
func (e *Engine) Reset() {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	e.pipeline.Reset("reset")
}

// SetConfig stores engine settings to apply on the next reset.
func (e *Engine) SetConfig(cfg config.EngineConfig) {
	e.pmu.Lock()
	defer e.pmu.Unlock()
	e.pipeline.SetConfig(cfg)
}

// Reprocess clears all state and replays the current log from offset 0.
// It blocks until the replayed history is processed, ctx is cancelled,
// or another Reprocess call supersedes it. An engine that was following
// the log keeps following afterwards.
func (e *Engine) Reprocess(ctx context.Context) error {
	e.mu.Lock()
	if e.path == "" {
		e.mu.Unlock()
		return ErrNotRunning
	}
	if e.reprocess != nil {
		e.reprocess()
	}
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.reprocess = cancel

	if e.cur != nil {
		e.cur.cancel()
		<-e.cur.done
	}

	mode := core.ModeReplay
	if e.follow {
		mode = core.ModeReplayThenFollow
	}
	base := e.baseCtx
	if base == nil {
		base = context.Background()
	}
	r, err := e.startLocked(base, e.path, mode, "reprocess")
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.logger.Info("reprocessing log", "path", e.path, "mode", mode)

	select {
	case <-r.replayed:
	case <-rctx.Done():
		r.cancel()
		<-r.done
		return rctx.Err()
	}
	if err := rctx.Err(); err != nil {
		return err
	}
	if mode == core.ModeReplay {
		<-r.done
		return r.err
	}
	return nil
}

// Snapshot returns a copy of the running counters.
func (e *Engine) Snapshot() core.Counters {
	return e.pipeline.Aggregator().Snapshot()
}

// RecentEvents returns up to n recent events, newest first.
func (e *Engine) RecentEvents(n int) []core.DomainEvent {
	return e.pipeline.Aggregator().RecentEvents(n)
}

// RawLines returns up to n recent raw lines, oldest first.
func (e *Engine) RawLines(n int) []streaming.LogLinePayload {
	return e.pipeline.RawLines(n)
}

// Diagnostics reports the engine state.
func (e *Engine) Diagnostics() Diagnostics {
	e.mu.Lock()
	d := Diagnostics{Running: e.cur != nil && !e.cur.finished()}
	if e.cur != nil {
		td := e.cur.tailer.Diagnostics()
		d.Tailer = &td
	}
	if e.cur != nil && e.cur.finished() && e.cur.err != nil {
		d.LastError = e.cur.err.Error()
	}
	e.mu.Unlock()

	if s, ok := e.session.Current(); ok {
		d.Session = &s
	}

	e.pmu.Lock()
	d.Window = e.pipeline.Window()
	d.OpenEntries, d.PendingCrew = e.pipeline.OpenCorrelations()
	d.TrackedVehicles = e.pipeline.TrackedVehicles()
	e.pmu.Unlock()
	return d
}

// Session returns the active session.
func (e *Engine) Session() (core.Session, bool) {
	return e.session.Current()
}

func (e *Engine) beginSession(path string, mode core.Mode) {
	s := e.session.Begin(path, mode, time.Now())
	e.publish(streaming.Message{Type: streaming.TypeStartSession, Session: &s})
}

func (e *Engine) endSession() (core.Session, bool) {
	s, ok := e.session.End(time.Now())
	if ok {
		e.publish(streaming.Message{Type: streaming.TypeEndSession, Session: &s})
	}
	return s, ok
}

func (e *Engine) publish(msg streaming.Message) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.Publish(msg)
}
