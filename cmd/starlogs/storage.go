package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starlogs/starlogs/internal/config"
	"github.com/starlogs/starlogs/internal/database"
	"github.com/starlogs/starlogs/internal/influx"
	"github.com/starlogs/starlogs/internal/storage"
	gormstorage "github.com/starlogs/starlogs/internal/storage/gorm"
	"github.com/starlogs/starlogs/internal/storage/memory"
	sqlitestorage "github.com/starlogs/starlogs/internal/storage/sqlite"
	wsstorage "github.com/starlogs/starlogs/internal/storage/websocket"
)

func createStorageBackend(a *app, storageCfg config.StorageConfig) (storage.Backend, error) {
	switch strings.ToLower(storageCfg.Type) {
	case "postgres":
		// falls back to a local SQLite file when Postgres is unreachable
		dbm := database.NewManager(a.Zerolog("database"))
		dbm.SqliteFilePath = storageCfg.SQLite.Path
		if err := dbm.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := dbm.Setup(); err != nil {
			return nil, err
		}
		a.Logger.Info("Postgres storage backend initialized", "local", dbm.ShouldSaveLocal)
		return gormstorage.New(gormstorage.Dependencies{
			DB:     dbm.DB,
			Logger: a.Logger,
		}), nil

	case "sqlite":
		dumpPath := sqliteDumpPath(storageCfg.SQLite.Path, a)
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		a.Logger.Info("SQLite storage backend initialized", "path", dumpPath)
		return backend, nil

	case "websocket":
		wsURL := httpToWS(storageCfg.Websocket.URL)
		a.Logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: storageCfg.Websocket.Secret,
		}, a.Logger), nil

	case "", "memory":
		a.Logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
}

// sqliteDumpPath stamps the configured file name with the process start so
// runs do not overwrite each other.
func sqliteDumpPath(path string, a *app) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".db"
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s_%s%s", base, a.start.Format("20060102_150405"), ext)
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

// connectInflux returns nil when InfluxDB is disabled. An unreachable
// server still yields a manager writing to the backup file.
func connectInflux(ctx context.Context, a *app) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	backup := filepath.Join(a.logsDir, fmt.Sprintf("influx_backup_%s.lp.gz", a.start.Format("20060102_150405")))
	m := influx.NewManager(cfg, a.Zerolog("influx"), backup)
	if err := m.Connect(ctx); err != nil {
		a.Logger.Warn("InfluxDB disabled", "error", err)
		_ = m.Close()
		return nil
	}
	return m
}
