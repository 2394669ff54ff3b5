// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. It works on
// Postgres and on SQLite.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/starlogs/starlogs/internal/database"
	"github.com/starlogs/starlogs/internal/model"
	"github.com/starlogs/starlogs/internal/model/convert"
	"github.com/starlogs/starlogs/internal/queue"
	"github.com/starlogs/starlogs/pkg/core"
)

// DefaultWriteInterval is how often queued rows are written.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	WriteInterval time.Duration
}

// pendingPatch is a patch bound to the session it arrived in.
type pendingPatch struct {
	SessionID uint
	Patch     core.Patch
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Events     *queue.Queue[model.Event]
	Patches    *queue.Queue[pendingPatch]
	SystemInfo *queue.Queue[model.SystemInfo]
}

func newQueues() *queues {
	return &queues{
		Events:     queue.New[model.Event](),
		Patches:    queue.New[pendingPatch](),
		SystemInfo: queue.New[model.SystemInfo](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	sessionID atomic.Uint64

	// writeMu serializes write cycles with Reset.
	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		log:    deps.Logger.With("component", "storage.gorm"),
		queues: newQueues(),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDBStandalone()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.log.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// DB returns the connection the backend writes to.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Close stops the DB writer goroutine and writes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	b.Flush()
	return nil
}

// StartSession inserts the session row synchronously so queued rows can
// reference it.
func (b *Backend) StartSession(s core.Session) error {
	if b.deps.DB == nil {
		return errors.New("backend not initialized")
	}

	row := convert.CoreToSession(s)
	if err := b.deps.DB.Where(model.Session{UUID: row.UUID}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// EndSession writes everything queued for the session and stamps its end time.
func (b *Backend) EndSession(s core.Session) error {
	if b.deps.DB == nil {
		return errors.New("backend not initialized")
	}

	b.Flush()
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	res := b.deps.DB.Model(&model.Session{}).Where("uuid = ?", s.ID).Update("end_time", end)
	if res.Error != nil {
		return fmt.Errorf("failed to end session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("end of unknown session %q", s.ID)
	}
	return nil
}

// RecordEvent converts and queues an event. System info pairs are queued
// for their own table as well.
func (b *Backend) RecordEvent(ev core.DomainEvent) error {
	sid := uint(b.sessionID.Load())
	if sid == 0 {
		return errors.New("no session started")
	}

	row := convert.CoreToEvent(ev)
	row.SessionID = sid
	b.queues.Events.Push(row)

	if ev.Kind == core.KindSystemInfo {
		infos := convert.CoreToSystemInfo(ev)
		for i := range infos {
			infos[i].SessionID = sid
		}
		b.queues.SystemInfo.Push(infos...)
	}
	return nil
}

// ApplyPatch queues an update of an already queued or written event.
func (b *Backend) ApplyPatch(p core.Patch) error {
	sid := uint(b.sessionID.Load())
	if sid == 0 {
		return errors.New("no session started")
	}
	b.queues.Patches.Push(pendingPatch{SessionID: sid, Patch: p})
	return nil
}

// Reset drops queued and written rows of the current session.
func (b *Backend) Reset(reason string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	sid := uint(b.sessionID.Load())
	b.queues.Events.Clear()
	b.queues.Patches.Clear()
	b.queues.SystemInfo.Clear()
	if sid == 0 || b.deps.DB == nil {
		return nil
	}

	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sid).Delete(&model.Event{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sid).Delete(&model.SystemInfo{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to reset session rows: %w", err)
	}
	b.log.Debug("Session rows dropped", "session", sid, "reason", reason)
	return nil
}

// Events loads the stored events of a session in line order.
func (b *Backend) Events(sessionUUID string) ([]core.DomainEvent, error) {
	var s model.Session
	if err := b.deps.DB.Where("uuid = ?", sessionUUID).First(&s).Error; err != nil {
		return nil, err
	}
	var rows []model.Event
	if err := b.deps.DB.Where("session_id = ?", s.ID).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.DomainEvent, len(rows))
	for i, r := range rows {
		out[i] = convert.EventToCore(r)
	}
	return out, nil
}

// Flush runs one write cycle synchronously.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	lengths := model.WriteQueueLengths{
		Events:     uint32(b.queues.Events.Len()),
		Patches:    uint32(b.queues.Patches.Len()),
		SystemInfo: uint32(b.queues.SystemInfo.Len()),
	}
	if lengths == (model.WriteQueueLengths{}) {
		return
	}
	start := time.Now()

	// Patches are taken before events: a patch is always queued after its
	// event, so every target is written by the time the patch runs.
	patches := b.queues.Patches.Drain()
	written := writeQueue(b.deps.DB, b.queues.Events, "events", b.log, nil)
	writeQueue(b.deps.DB, b.queues.SystemInfo, "system info", b.log, nil)
	if !written || !b.writePatches(patches) {
		b.queues.Patches.Requeue(patches)
	}

	b.recordPerformance(lengths, time.Since(start))
}

// writeQueue writes all items from a queue to the database in a transaction.
// Rows that already exist are skipped. Failed batches are re-queued.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) bool {
	items := q.Drain()
	if len(items) == 0 {
		return true
	}

	tx := db.Begin()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "error", err)
		tx.Rollback()
		q.Requeue(items)
		return false
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing rows", "table", name, "error", err)
		q.Requeue(items)
		return false
	}
	return true
}

func (b *Backend) writePatches(patches []pendingPatch) bool {
	if len(patches) == 0 {
		return true
	}

	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		for _, pp := range patches {
			if err := tx.Model(&model.Event{}).
				Where("session_id = ? AND seq = ?", pp.SessionID, pp.Patch.Seq).
				Updates(patchColumns(pp.Patch)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.log.Error("Error applying patches", "count", len(patches), "error", err)
		return false
	}
	return true
}

// patchColumns mirrors core.Patch.Apply for a stored row.
func patchColumns(p core.Patch) map[string]any {
	cols := map[string]any{"final": p.Final}
	if p.Kind.IsDestruction() {
		cols["crew"] = convert.CrewJSON(p.Crew)
	}
	if p.CrewOf != "" {
		cols["crew_of"] = p.CrewOf
	}
	return cols
}

func (b *Backend) recordPerformance(lengths model.WriteQueueLengths, took time.Duration) {
	sid := uint(b.sessionID.Load())
	if sid == 0 {
		return
	}
	perf := model.IngestPerformance{
		Time:                time.Now(),
		SessionID:           sid,
		WriteQueueLengths:   lengths,
		LastWriteDurationMs: float32(took.Microseconds()) / 1000,
	}
	if err := b.deps.DB.Create(&perf).Error; err != nil {
		b.log.Warn("Error recording ingest performance", "error", err)
	}
}

// writeLoop periodically drains queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
