package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *IngestorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Stream.SubscribeBatchSize < 1 {
		return errors.New("stream.subscribe_batch_size must be >= 1")
	}
	if c.Stream.ReconnectBaseDelay > c.Stream.ReconnectMaxDelay {
		return fmt.Errorf("stream.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Stream.ReconnectBaseDelay, c.Stream.ReconnectMaxDelay)
	}
	if c.Stream.MaxBookDepth < 1 {
		return errors.New("stream.max_book_depth must be >= 1")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferCapacity < c.Writers.BatchSize {
		return fmt.Errorf("writers.buffer_capacity (%d) must be >= batch_size (%d)",
			c.Writers.BufferCapacity, c.Writers.BatchSize)
	}
	switch c.Writers.Backpressure {
	case "reject", "block":
	default:
		return fmt.Errorf("writers.backpressure must be \"reject\" or \"block\", got %q", c.Writers.Backpressure)
	}
	switch c.Writers.OnExhausted {
	case "spill", "drop":
	default:
		return fmt.Errorf("writers.on_exhausted must be \"spill\" or \"drop\", got %q", c.Writers.OnExhausted)
	}
	if c.Writers.MaxRetries < 1 {
		return errors.New("writers.max_retries must be >= 1")
	}

	if c.Catalog.MaxMarkets < 1 {
		return errors.New("catalog.max_markets must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
