package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/dispatcher"
	"github.com/starlogs/starlogs/internal/tailer"
	"github.com/starlogs/starlogs/pkg/core"
	"github.com/starlogs/starlogs/pkg/streaming"
)

// Bucket names used besides the configured session bucket.
const (
	PerformanceBucket = "starlogs_performance"
)

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: []string{cfg.Bucket, PerformanceBucket},
		Logger:      log,
		BackupPath:  backupPath,
		cfg:         cfg,
	}
}

// Connect establishes a connection to InfluxDB. When the server cannot be
// reached, points go to the gzip backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

// openBackup creates the gzip line protocol file used while offline.
func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.IsValid = false
	if m.BackupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return errors.New("influxDB unreachable and no backup path set")
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// SessionBucket is the bucket event and counter points go to.
func (m *Manager) SessionBucket() string {
	return m.cfg.Bucket
}

// Handler writes one point per delivered event.
func (m *Manager) Handler(sessionID func() string) dispatcher.HandlerFunc {
	return func(msg streaming.Message) error {
		if msg.Type != streaming.TypeEvent || msg.Event == nil {
			return nil
		}
		return m.WritePoint(m.cfg.Bucket, EventPoint(sessionID(), *msg.Event))
	}
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return nil
	}
	err := m.BackupWriter.Close()
	if cerr := m.backupFile.Close(); err == nil {
		err = cerr
	}
	m.BackupWriter = nil
	m.backupFile = nil
	return err
}

// CountersPoint converts a counter snapshot into a point.
func CountersPoint(sessionID string, c core.Counters, t time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("counters").
		AddTag("session", sessionID).
		AddField("pve_kills", c.PveKills).
		AddField("pvp_kills", c.PvpKills).
		AddField("npc_kills", c.NpcKills).
		AddField("deaths", c.Deaths).
		AddField("fps_pve_kills", c.FpsPveKills).
		AddField("fps_pvp_kills", c.FpsPvpKills).
		AddField("fps_deaths", c.FpsDeaths).
		AddField("suicides", c.Suicides).
		AddField("corpses", c.Corpses).
		AddField("disconnects", c.Disconnects).
		AddField("actor_stalls", c.ActorStalls).
		AddField("soft_deaths", c.SoftDeaths).
		AddField("destructions", c.Destructions).
		AddField("total_lines", c.TotalLines).
		AddField("unrecognized_lines", c.UnrecognizedLines).
		AddField("events", c.Events).
		AddField("patches", c.Patches).
		AddField("crew_attached", c.CrewAttached).
		SetTime(t)
	for damage, n := range c.DestructionsByDamage {
		p.AddField("destructions_"+string(damage), n)
	}
	return p
}

// EventPoint converts a domain event into a point.
func EventPoint(sessionID string, ev core.DomainEvent) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("events").
		AddTag("session", sessionID).
		AddTag("kind", string(ev.Kind)).
		AddField("seq", int64(ev.Seq)).
		SetTime(ev.Timestamp)

	if ev.DamageType != "" {
		p.AddTag("damage_type", string(ev.DamageType))
	}
	if ev.WeaponClass != "" {
		p.AddTag("weapon_class", string(ev.WeaponClass))
	}
	for name, v := range map[string]string{
		"killer":  ev.Killer,
		"victim":  ev.Victim,
		"weapon":  ev.Weapon,
		"zone":    ev.Zone,
		"vehicle": ev.VehicleID,
	} {
		if v != "" {
			p.AddField(name, v)
		}
	}
	if ev.Kind.IsDestruction() {
		p.AddField("from_level", ev.FromLevel).AddField("to_level", ev.ToLevel)
	}
	return p
}

// TailerPoint converts tailer diagnostics into a point.
func TailerPoint(sessionID string, d tailer.Diagnostics, t time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("tailer").
		AddTag("session", sessionID).
		AddTag("mode", string(d.Mode)).
		AddField("cursor", d.Cursor).
		AddField("file_size", d.FileSize).
		AddField("lines_read", int64(d.LinesRead)).
		AddField("bytes_read", d.BytesRead).
		AddField("checks", int64(d.Checks)).
		AddField("boundaries", d.Boundaries).
		AddField("retries", d.Retries).
		AddField("degraded", d.Degraded).
		SetTime(t)
}
