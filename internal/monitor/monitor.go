package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starlogs/starlogs/internal/engine"
	"github.com/starlogs/starlogs/internal/influx"
	"github.com/starlogs/starlogs/pkg/core"
)

// Source is the part of the engine the monitor reads.
type Source interface {
	Snapshot() core.Counters
	Diagnostics() engine.Diagnostics
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     Source
	Influx     *influx.Manager // optional
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Status is what the monitor writes on every tick.
type Status struct {
	Time        time.Time          `json:"time"`
	Counters    core.Counters      `json:"counters"`
	Diagnostics engine.Diagnostics `json:"diagnostics"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "monitor")
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current status
func (s *Service) GetStatus() Status {
	return Status{
		Time:        time.Now(),
		Counters:    s.deps.Source.Snapshot(),
		Diagnostics: s.deps.Source.Diagnostics(),
	}
}

// Tick writes one status sample to the status file and to InfluxDB.
func (s *Service) Tick() error {
	status := s.GetStatus()

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, status); err != nil {
			return err
		}
	}

	if s.deps.Influx != nil && status.Diagnostics.Session != nil {
		sid := status.Diagnostics.Session.ID
		if err := s.deps.Influx.WritePoint(s.deps.Influx.SessionBucket(), influx.CountersPoint(sid, status.Counters, status.Time)); err != nil {
			return fmt.Errorf("writing counters point: %w", err)
		}
		if d := status.Diagnostics.Tailer; d != nil {
			if err := s.deps.Influx.WritePoint(influx.PerformanceBucket, influx.TailerPoint(sid, *d, status.Time)); err != nil {
				return fmt.Errorf("writing tailer point: %w", err)
			}
		}
	}
	return nil
}

// writeStatusFile replaces the file in one rename so readers never see a
// partial document.
func writeStatusFile(path string, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*")
	if err != nil {
		return fmt.Errorf("creating status file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Run writes a status sample every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// a last sample so the file reflects the final state
			if err := s.Tick(); err != nil {
				logger.Warn("Error writing final status", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				logger.Error("Error writing status", "error", err)
			}
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop stops the status monitor and waits for its last sample.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
