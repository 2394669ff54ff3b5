package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"gameLog": "C:/StarCitizen/LIVE/Game.log",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "C:/StarCitizen/LIVE/Game.log", viper.GetString("gameLog"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./starlogs-logs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "starlogs", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./sessions", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, "gzip", viper.GetString("storage.memory.compression"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "starlogs", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	var notFound viper.ConfigFileNotFoundError
	assert.ErrorAs(t, err, &notFound)

	// defaults are still registered
	assert.Equal(t, 200*time.Millisecond, GetEngineConfig().CorrelationWindow)
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{"logLevel": `))
	require.Error(t, err)
	var notFound viper.ConfigFileNotFoundError
	assert.NotErrorAs(t, err, &notFound)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetEngineConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetEngineConfig()
	assert.Equal(t, 200*time.Millisecond, cfg.CorrelationWindow)
	assert.Equal(t, 500, cfg.RecentEvents)
	assert.Equal(t, 1000, cfg.RawLineHistory)
	assert.Equal(t, 2000, cfg.SubscriberBuffer)
}

func TestGetEngineConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"engine": { "correlationWindow": "350ms", "recentEvents": 100 }
	}`)))

	cfg := GetEngineConfig()
	assert.Equal(t, 350*time.Millisecond, cfg.CorrelationWindow)
	assert.Equal(t, 100, cfg.RecentEvents)
	assert.Equal(t, 1000, cfg.RawLineHistory)
}

func TestGetTailerConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetTailerConfig()
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 10*1024*1024, cfg.MaxLineBytes)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./sessions", cfg.Memory.OutputDir)
	assert.Equal(t, "gzip", cfg.Memory.Compression)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "ws://localhost:5000/api", cfg.Websocket.URL)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compression": "zstd" },
			"sqlite": { "path": "/tmp/x.db", "dumpInterval": "10m" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, "zstd", sc.Memory.Compression)
	assert.Equal(t, "/tmp/x.db", sc.SQLite.Path)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxGraylogMonitorConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "starlogs_sessions", ic.Bucket)

	gc := GetGraylogConfig()
	assert.False(t, gc.Enabled)
	assert.Equal(t, "localhost:12201", gc.Address)

	mc := GetMonitorConfig()
	assert.True(t, mc.Enabled)
	assert.Equal(t, time.Second, mc.Interval)
	assert.Equal(t, "status.json", mc.StatusFile)
}

func TestGetAPIConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"api": {"upload": true, "apiKey": "k"}}`)))

	ac := GetAPIConfig()
	assert.True(t, ac.Upload)
	assert.Equal(t, "k", ac.APIKey)
	assert.Equal(t, "http://localhost:5000", ac.ServerURL)
}
