package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the settings for the packet processing pipeline.
type EngineConfig struct {
	QueueCapacity   int    `yaml:"queue_capacity"`
	NumWorkers      int    `yaml:"num_workers"`
	DetectorTimeout string `yaml:"detector_timeout"`
	SweepInterval   string `yaml:"sweep_interval"`
}

// TrackerConfig holds the windows and sizing for the feature trackers.
type TrackerConfig struct {
	ConnectionIdleTimeout string `yaml:"connection_idle_timeout"`
	LoginWindow           string `yaml:"login_window"`
	AccessWindow          string `yaml:"access_window"`
	NumShards             uint32 `yaml:"num_shards"`
	HistorySize           int    `yaml:"history_size"`
	HistoryWindow         string `yaml:"history_window"`
}

// FeatureConfig selects the feature vector shape.
type FeatureConfig struct {
	// Extended appends dst_port, tcp_flags and payload_entropy to the
	// live 6-feature vector.
	Extended bool `yaml:"extended"`
}

// SignatureRuleDef defines a single-packet signature rule from the config file.
type SignatureRuleDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Severity    string   `yaml:"severity"`
	Confidence  float64  `yaml:"confidence"`
	Target      string   `yaml:"target"`
	Patterns    []string `yaml:"patterns"`
}

// SignatureConfig holds extra rules and the aggregate rule thresholds.
type SignatureConfig struct {
	Rules             []SignatureRuleDef `yaml:"rules"`
	PortScanThreshold int                `yaml:"port_scan_threshold"`
	DoSPacketRate     float64            `yaml:"dos_packet_rate"`
	ExfilBytes        uint64             `yaml:"exfil_bytes"`
}

// AnomalyConfig holds the anomaly detector's training parameters.
type AnomalyConfig struct {
	MinSamples      int     `yaml:"min_samples"`
	Threshold       float64 `yaml:"threshold"`
	RetrainInterval string  `yaml:"retrain_interval"`
	MaxSamples      int     `yaml:"max_samples"`
}

// ClassifierConfig holds the supervised model settings. An empty ModelPath
// leaves the classifier in its "unavailable" mode.
type ClassifierConfig struct {
	ModelPath      string  `yaml:"model_path"`
	Threshold      float64 `yaml:"threshold"`
	ReloadInterval string  `yaml:"reload_interval"`
}

// AlertConfig holds the alert sink settings.
type AlertConfig struct {
	DedupWindow    string `yaml:"dedup_window"`
	QueueSize      int    `yaml:"queue_size"`
	PersistRetries int    `yaml:"persist_retries"`
}

// StatsConfig holds the stats aggregator settings.
type StatsConfig struct {
	FlushInterval string `yaml:"flush_interval"`
}

// NATSConfig holds the connection settings for the message bus.
type NATSConfig struct {
	URL           string `yaml:"url"`
	PacketSubject string `yaml:"packet_subject"`
	AlertSubject  string `yaml:"alert_subject"`
}

// SensorConfig holds the capture settings for ns-sensor.
type SensorConfig struct {
	Interface   string        `yaml:"interface"`
	SnapshotLen int32         `yaml:"snapshot_len"`
	Promiscuous bool          `yaml:"promiscuous"`
	BPFFilter   string        `yaml:"bpf_filter"`
	Archive     ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig holds the settings for the sensor's local capture archive.
// Files rotate when they reach MaxFileBytes.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	QueueSize    int    `yaml:"queue_size"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
}

// ClickHouseConfig holds the connection settings for the history store.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig holds the connection settings for the live alert store.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	RecentCap int64  `yaml:"recent_cap"`
}

// FileStoreConfig holds the JSONL fallback store settings, for deployments
// that run without ClickHouse.
type FileStoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// APIConfig holds the query API settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MetricsConfig holds the Prometheus endpoint settings for ns-guard.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AlerterConfig holds the settings for the periodic alert digest.
type AlerterConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DigestInterval string `yaml:"digest_interval"`
	AIAnalysis     bool   `yaml:"ai_analysis"`
}

// SMTPConfig holds the settings for the email notifier. To is a
// comma-separated recipient list.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig holds the settings for the AI analyzer.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Trackers   TrackerConfig    `yaml:"trackers"`
	Features   FeatureConfig    `yaml:"features"`
	Signature  SignatureConfig  `yaml:"signature"`
	Anomaly    AnomalyConfig    `yaml:"anomaly"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Alerts     AlertConfig      `yaml:"alerts"`
	Stats      StatsConfig      `yaml:"stats"`
	NATS       NATSConfig       `yaml:"nats"`
	Sensor     SensorConfig     `yaml:"sensor"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	FileStore  FileStoreConfig  `yaml:"file_store"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	AI         AIConfig         `yaml:"ai"`
}

// Load reads the configuration from a YAML file, applies defaults for
// missing fields and returns a Config struct.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in the documented default for every unset field.
// Duration fields stay strings here and are parsed by their consumers.
func (c *Config) ApplyDefaults() {
	if c.Engine.QueueCapacity == 0 {
		c.Engine.QueueCapacity = 10000
	}
	if c.Engine.DetectorTimeout == "" {
		c.Engine.DetectorTimeout = "20ms"
	}
	if c.Engine.SweepInterval == "" {
		c.Engine.SweepInterval = "30s"
	}
	if c.Trackers.ConnectionIdleTimeout == "" {
		c.Trackers.ConnectionIdleTimeout = "5m"
	}
	if c.Trackers.LoginWindow == "" {
		c.Trackers.LoginWindow = "1h"
	}
	if c.Trackers.AccessWindow == "" {
		c.Trackers.AccessWindow = c.Trackers.ConnectionIdleTimeout
	}
	if c.Trackers.NumShards == 0 {
		c.Trackers.NumShards = 256
	}
	if c.Trackers.HistorySize == 0 {
		c.Trackers.HistorySize = 64
	}
	if c.Trackers.HistoryWindow == "" {
		c.Trackers.HistoryWindow = "10s"
	}
	if c.Signature.PortScanThreshold == 0 {
		c.Signature.PortScanThreshold = 20
	}
	if c.Signature.DoSPacketRate == 0 {
		c.Signature.DoSPacketRate = 1000
	}
	if c.Signature.ExfilBytes == 0 {
		c.Signature.ExfilBytes = 10 << 20
	}
	if c.Anomaly.MinSamples == 0 {
		c.Anomaly.MinSamples = 100
	}
	if c.Anomaly.Threshold == 0 {
		c.Anomaly.Threshold = 0.5
	}
	if c.Anomaly.RetrainInterval == "" {
		c.Anomaly.RetrainInterval = "1h"
	}
	if c.Anomaly.MaxSamples == 0 {
		c.Anomaly.MaxSamples = 4096
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = 0.7
	}
	if c.Classifier.ReloadInterval == "" {
		c.Classifier.ReloadInterval = "30s"
	}
	if c.Alerts.DedupWindow == "" {
		c.Alerts.DedupWindow = "5m"
	}
	if c.Alerts.QueueSize == 0 {
		c.Alerts.QueueSize = 1024
	}
	if c.Alerts.PersistRetries == 0 {
		c.Alerts.PersistRetries = 3
	}
	if c.Stats.FlushInterval == "" {
		c.Stats.FlushInterval = "60s"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.PacketSubject == "" {
		c.NATS.PacketSubject = "sentry.packets.raw"
	}
	if c.NATS.AlertSubject == "" {
		c.NATS.AlertSubject = "sentry.alerts"
	}
	if c.Sensor.SnapshotLen == 0 {
		c.Sensor.SnapshotLen = 1600
	}
	if c.Sensor.Archive.Dir == "" {
		c.Sensor.Archive.Dir = "./captures"
	}
	if c.Sensor.Archive.QueueSize == 0 {
		c.Sensor.Archive.QueueSize = 10000
	}
	if c.Sensor.Archive.MaxFileBytes == 0 {
		c.Sensor.Archive.MaxFileBytes = 64 << 20
	}
	if c.ClickHouse.Host == "" {
		c.ClickHouse.Host = "127.0.0.1"
	}
	if c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = 9000
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "netsentry"
	}
	if c.ClickHouse.Username == "" {
		c.ClickHouse.Username = "default"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.RecentCap == 0 {
		c.Redis.RecentCap = 1000
	}
	if c.FileStore.Dir == "" {
		c.FileStore.Dir = "./data"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9100"
	}
	if c.Alerter.DigestInterval == "" {
		c.Alerter.DigestInterval = "15m"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
}
