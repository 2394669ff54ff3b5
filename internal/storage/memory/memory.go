// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/starlogs/starlogs/internal/aggregator"
	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/pkg/core"
)

// Backend stores session events in memory and exports them as a JSON
// report when the session ends.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	events []core.DomainEvent
	bySeq  map[uint64]int // event Seq -> index into events
	agg    *aggregator.Aggregator

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		bySeq: make(map[uint64]int),
		agg:   aggregator.New(aggregator.DefaultRecent),
	}
}

// Init validates the export settings
func (b *Backend) Init() error {
	if _, err := ParseCompression(b.cfg.Compression); err != nil {
		return err
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops the previous one.
func (b *Backend) StartSession(s core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = &s
	b.clear()
	return nil
}

// EndSession stamps the end time and exports the session.
func (b *Backend) EndSession(s core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || b.session.ID != s.ID {
		return fmt.Errorf("end of unknown session %q", s.ID)
	}
	b.session.EndTime = s.EndTime
	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// RecordEvent appends an event. A repeated Seq replaces the stored copy.
func (b *Backend) RecordEvent(ev core.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev = ev.Clone()
	if i, ok := b.bySeq[ev.Seq]; ok {
		b.events[i] = ev
		return nil
	}
	b.bySeq[ev.Seq] = len(b.events)
	b.events = append(b.events, ev)
	b.agg.Add(ev)
	return nil
}

// ApplyPatch amends a stored event. Patches for unknown events are ignored.
func (b *Backend) ApplyPatch(p core.Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.bySeq[p.Seq]
	if !ok {
		return nil
	}
	p.Apply(&b.events[i])
	b.agg.ApplyPatch(p)
	return nil
}

// Reset drops the events recorded so far; the session stays open.
func (b *Backend) Reset(reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clear()
	return nil
}

func (b *Backend) clear() {
	b.events = nil
	b.bySeq = make(map[uint64]int)
	b.agg.Reset()
}

// Events returns a copy of the stored events in arrival order.
func (b *Backend) Events() []core.DomainEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.DomainEvent, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Clone()
	}
	return out
}

// Session returns the current session, if any.
func (b *Backend) Session() (core.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return core.Session{}, false
	}
	return *b.session, true
}

// ExportedFilePath returns the path of the last written report.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
