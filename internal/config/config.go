package config

import "time"

// IngestorConfig is the root configuration for an ingestor instance.
type IngestorConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Gamma    GammaConfig    `yaml:"gamma"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Stats    StatsConfig    `yaml:"stats"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this ingestor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// GammaConfig holds Gamma REST API settings (market metadata source).
type GammaConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	PageSize   int           `yaml:"page_size"`
}

// StreamConfig holds CLOB WebSocket settings.
type StreamConfig struct {
	URL                string        `yaml:"url"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	StableReset        time.Duration `yaml:"stable_reset"` // Streaming this long resets backoff to the floor
	SubscribeBatchSize int           `yaml:"subscribe_batch_size"`
	SubscribeRate      float64       `yaml:"subscribe_rate"` // subscribe messages per second
	EventBufferSize    int           `yaml:"event_buffer_size"`
	MaxBookDepth       int           `yaml:"max_book_depth"`
}

// DatabaseConfig holds the TimescaleDB connection for time-series data.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	Backpressure   string        `yaml:"backpressure"`  // "reject" or "block"
	BlockTimeout   time.Duration `yaml:"block_timeout"` // only for "block"
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	OnExhausted    string        `yaml:"on_exhausted"` // "spill" or "drop"
	SpillDir       string        `yaml:"spill_dir"`
}

// CatalogConfig holds market catalog poll settings.
type CatalogConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Category     string        `yaml:"category"` // empty = all categories
	MaxMarkets   int           `yaml:"max_markets"`
}

// StatsConfig holds periodic status reporting settings.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logging settings. File is optional; when set, output
// goes to a size-rotated file instead of stdout.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
