package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultGammaURL       = "https://gamma-api.polymarket.com"
	DefaultWSURL          = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultAPITimeout     = 30 * time.Second
	DefaultAPIMaxRetries  = 3
	DefaultGammaPageSize  = 500
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultPingInterval   = 20 * time.Second
	DefaultPingTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultReconnectBase  = 1 * time.Second
	DefaultReconnectMax   = 30 * time.Second
	DefaultStableReset    = 60 * time.Second
	DefaultSubBatchSize   = 200
	DefaultSubscribeRate  = 2.0
	DefaultEventBuffer    = 10000
	DefaultMaxBookDepth   = 10
	DefaultBatchSize      = 1000
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferCapacity = 50000
	DefaultBackpressure   = "reject"
	DefaultBlockTimeout   = 250 * time.Millisecond
	DefaultWriteRetries   = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 10 * time.Second
	DefaultOnExhausted    = "spill"
	DefaultSpillDir       = "spill"
	DefaultPollInterval   = 5 * time.Minute
	DefaultMaxMarkets     = 1000000
	DefaultStatsInterval  = 10 * time.Second
	DefaultHealthPort     = 8080
	DefaultLogLevel       = "info"
)

func (c *IngestorConfig) applyDefaults() {
	// Gamma defaults
	if c.Gamma.URL == "" {
		c.Gamma.URL = DefaultGammaURL
	}
	if c.Gamma.Timeout == 0 {
		c.Gamma.Timeout = DefaultAPITimeout
	}
	if c.Gamma.MaxRetries == 0 {
		c.Gamma.MaxRetries = DefaultAPIMaxRetries
	}
	if c.Gamma.PageSize == 0 {
		c.Gamma.PageSize = DefaultGammaPageSize
	}

	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultWSURL
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMax
	}
	if c.Stream.StableReset == 0 {
		c.Stream.StableReset = DefaultStableReset
	}
	if c.Stream.SubscribeBatchSize == 0 {
		c.Stream.SubscribeBatchSize = DefaultSubBatchSize
	}
	if c.Stream.SubscribeRate == 0 {
		c.Stream.SubscribeRate = DefaultSubscribeRate
	}
	if c.Stream.EventBufferSize == 0 {
		c.Stream.EventBufferSize = DefaultEventBuffer
	}
	if c.Stream.MaxBookDepth == 0 {
		c.Stream.MaxBookDepth = DefaultMaxBookDepth
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferCapacity == 0 {
		c.Writers.BufferCapacity = DefaultBufferCapacity
	}
	if c.Writers.Backpressure == "" {
		c.Writers.Backpressure = DefaultBackpressure
	}
	if c.Writers.BlockTimeout == 0 {
		c.Writers.BlockTimeout = DefaultBlockTimeout
	}
	if c.Writers.MaxRetries == 0 {
		c.Writers.MaxRetries = DefaultWriteRetries
	}
	if c.Writers.RetryBaseDelay == 0 {
		c.Writers.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Writers.RetryMaxDelay == 0 {
		c.Writers.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.Writers.OnExhausted == "" {
		c.Writers.OnExhausted = DefaultOnExhausted
	}
	if c.Writers.SpillDir == "" {
		c.Writers.SpillDir = DefaultSpillDir
	}

	// Catalog defaults
	if c.Catalog.PollInterval == 0 {
		c.Catalog.PollInterval = DefaultPollInterval
	}
	if c.Catalog.MaxMarkets == 0 {
		c.Catalog.MaxMarkets = DefaultMaxMarkets
	}

	// Stats defaults
	if c.Stats.Interval == 0 {
		c.Stats.Interval = DefaultStatsInterval
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
