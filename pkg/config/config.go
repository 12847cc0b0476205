package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration, one section per subsystem.
// Defaults cover a local single-node setup; production overrides come
// from the YAML file and, for secrets, the environment.
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Backend     BackendConfig    `yaml:"backend"`
	Ingest      IngestConfig     `yaml:"ingest"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Analysis    AnalysisConfig   `yaml:"analysis"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Queue       QueueConfig      `yaml:"queue"`
	Alerts      AlertsConfig     `yaml:"alerts"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics"`
}

// BackendConfig routes validated bars: "clickhouse" stores them,
// "kafka" republishes to the normalized topic for downstream sinks.
type BackendConfig struct {
	Type         string        `yaml:"type"`
	BatchSize    int           `yaml:"batch_size" default:"500"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
}

type IngestConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ThrottleWindow time.Duration `yaml:"throttle_window" default:"30s"`
	BufferSize     int           `yaml:"buffer_size" default:"2000"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" default:"100ms"`
}

type KafkaConfig struct {
	Brokers         []string            `yaml:"brokers"`
	BarsTopic       string              `yaml:"bars_topic" default:"vn.eod.bars"`
	NormalizedTopic string              `yaml:"normalized_topic" default:"vn.eod.bars.normalized"`
	SnapshotTopic   string              `yaml:"snapshot_topic" default:"vn.analysis.snapshots"`
	RequiredAcks    int                 `yaml:"required_acks"`
	Compression     string              `yaml:"compression" default:"gzip"`
	Producer        KafkaProducerConfig `yaml:"producer"`
	Consumer        KafkaConsumerConfig `yaml:"consumer"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	Linger       time.Duration `yaml:"linger" default:"100ms"`
	BatchBytes   int64         `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"200"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"vnflow-ingest"`
	Workers    int           `yaml:"workers" default:"4"`
	BufferSize int           `yaml:"buffer_size" default:"1000"`
	RetryMax   int           `yaml:"retry_max"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"vnflow"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AnalysisConfig struct {
	CalibrationPath string         `yaml:"calibration_path"`
	DaysBack        int            `yaml:"days_back" default:"90"`
	DeepDaysBack    int            `yaml:"deep_days_back" default:"365"`
	Workers         int            `yaml:"workers" default:"8"`
	TopN            int            `yaml:"top_n" default:"10"`
	RateLimitRPS    float64        `yaml:"rate_limit_rps" default:"5"`
	RateLimitBurst  int            `yaml:"rate_limit_burst" default:"10"`
	CacheTTL        CacheTTLConfig `yaml:"cache_ttl"`
}

type CacheTTLConfig struct {
	Analyze  time.Duration `yaml:"analyze" default:"30s"`
	Overview time.Duration `yaml:"overview" default:"60s"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Timezone     string `yaml:"timezone" default:"Asia/Ho_Chi_Minh"`
	EODSpec      string `yaml:"eod_spec" default:"30 15 * * 1-5"`
	UniverseSpec string `yaml:"universe_spec" default:"0 8 * * 1-5"`
	DeepSpec     string `yaml:"deep_spec" default:"0 20 * * 6"`
}

type QueueConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Name       string        `yaml:"name" default:"vnflow:queue"`
	Workers    int           `yaml:"workers" default:"2"`
	Retries    int           `yaml:"retries" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
}

type AlertsConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout" default:"5s"`
	Attempts   int           `yaml:"attempts" default:"3"`
}

// Load reads a YAML configuration file, fills defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads the file, then applies environment overrides. The
// file stays the source of truth for topology; the environment carries
// per-deployment values and secrets.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BARS_TOPIC"); v != "" {
		c.Kafka.BarsTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CALIBRATION_PATH"); v != "" {
		c.Analysis.CalibrationPath = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}

	return c, nil
}

// Validate catches misconfigurations that would otherwise surface as
// runtime failures long after boot.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got %q", c.Backend.Type)
	}
	if c.Analysis.CalibrationPath == "" {
		return fmt.Errorf("analysis.calibration_path is required")
	}
	if c.Ingest.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("ingest requires kafka.brokers")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis to be enabled")
	}
	return nil
}
