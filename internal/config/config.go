package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "starlogs.cfg.json"

// EngineConfig holds pipeline settings. Changes apply on the next reset.
type EngineConfig struct {
	CorrelationWindow time.Duration
	RecentEvents      int
	RawLineHistory    int
	SubscriberBuffer  int
}

// TailerConfig holds file following settings.
type TailerConfig struct {
	PollInterval      time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	MaxLineBytes      int
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir   string `json:"outputDir" mapstructure:"outputDir"`
	Compression string `json:"compression" mapstructure:"compression"` // none, gzip or zstd
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebsocketConfig holds live streaming backend settings
type WebsocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Websocket WebsocketConfig
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// APIConfig holds report upload settings
type APIConfig struct {
	Upload    bool
	ServerURL string
	APIKey    string
	Tag       string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// setDefaults registers every default. Load calls it before reading the
// file so a missing file still leaves usable values behind.
func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./starlogs-logs")
	viper.SetDefault("gameLog", "")

	viper.SetDefault("engine.correlationWindow", "200ms")
	viper.SetDefault("engine.recentEvents", 500)
	viper.SetDefault("engine.rawLineHistory", 1000)
	viper.SetDefault("engine.subscriberBuffer", 2000)

	viper.SetDefault("tailer.pollInterval", "1s")
	viper.SetDefault("tailer.initialBackoff", "1s")
	viper.SetDefault("tailer.maxBackoff", "30s")
	viper.SetDefault("tailer.backoffMultiplier", 2.0)
	viper.SetDefault("tailer.maxLineBytes", 10*1024*1024)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compression", "gzip")
	viper.SetDefault("storage.sqlite.path", "./starlogs.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "starlogs")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "starlogs")
	viper.SetDefault("influx.bucket", "starlogs_sessions")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "starlogs")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("api.upload", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.tag", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "status.json")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEngineConfig returns the pipeline settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		CorrelationWindow: viper.GetDuration("engine.correlationWindow"),
		RecentEvents:      viper.GetInt("engine.recentEvents"),
		RawLineHistory:    viper.GetInt("engine.rawLineHistory"),
		SubscriberBuffer:  viper.GetInt("engine.subscriberBuffer"),
	}
}

// GetTailerConfig returns the file following settings.
func GetTailerConfig() TailerConfig {
	return TailerConfig{
		PollInterval:      viper.GetDuration("tailer.pollInterval"),
		InitialBackoff:    viper.GetDuration("tailer.initialBackoff"),
		MaxBackoff:        viper.GetDuration("tailer.maxBackoff"),
		BackoffMultiplier: viper.GetFloat64("tailer.backoffMultiplier"),
		MaxLineBytes:      viper.GetInt("tailer.maxLineBytes"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:   viper.GetString("storage.memory.outputDir"),
			Compression: viper.GetString("storage.memory.compression"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetAPIConfig returns the report upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Upload:    viper.GetBool("api.upload"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Tag:       viper.GetString("api.tag"),
	}
}
