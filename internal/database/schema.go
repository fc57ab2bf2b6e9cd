package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names for the three ingestion destinations.
const (
	TableMarkets    = "markets_dim"
	TableTrades     = "trades_raw"
	TableBookLevels = "orderbook_levels"
)

// Timestamps are stored as int64 microseconds since epoch; the trade_id
// partial unique index backs the ON CONFLICT dedup on trades.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS markets_dim (
		market_id        TEXT NOT NULL,
		condition_id     TEXT NOT NULL,
		question         TEXT NOT NULL DEFAULT '',
		slug             TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL DEFAULT '',
		computed_category TEXT NOT NULL DEFAULT '',
		outcomes         TEXT[] NOT NULL DEFAULT '{}',
		token_ids        TEXT[] NOT NULL DEFAULT '{}',
		end_date         TIMESTAMPTZ,
		active           BOOLEAN NOT NULL DEFAULT FALSE,
		closed           BOOLEAN NOT NULL DEFAULT FALSE,
		volume_total     DOUBLE PRECISION NOT NULL DEFAULT 0,
		liquidity        DOUBLE PRECISION NOT NULL DEFAULT 0,
		best_bid         DOUBLE PRECISION NOT NULL DEFAULT 0,
		best_ask         DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_trade_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at       BIGINT NOT NULL,
		PRIMARY KEY (condition_id, market_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trades_raw (
		exchange_ts   BIGINT NOT NULL,
		received_at   BIGINT NOT NULL,
		market_id     TEXT NOT NULL DEFAULT '',
		condition_id  TEXT NOT NULL DEFAULT '',
		token_id      TEXT NOT NULL,
		side          TEXT NOT NULL DEFAULT 'UNKNOWN',
		price         DOUBLE PRECISION NOT NULL,
		size          DOUBLE PRECISION NOT NULL,
		outcome       TEXT NOT NULL DEFAULT '',
		outcome_index SMALLINT NOT NULL DEFAULT 0,
		trade_id      TEXT NOT NULL DEFAULT '',
		maker_address TEXT NOT NULL DEFAULT '',
		taker_address TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL DEFAULT 'ws'
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS trades_raw_trade_id_idx
		ON trades_raw (trade_id) WHERE trade_id <> ''`,
	`CREATE INDEX IF NOT EXISTS trades_raw_token_ts_idx
		ON trades_raw (token_id, exchange_ts)`,
	`CREATE TABLE IF NOT EXISTS orderbook_levels (
		exchange_ts  BIGINT NOT NULL,
		received_at  BIGINT NOT NULL,
		market_id    TEXT NOT NULL DEFAULT '',
		condition_id TEXT NOT NULL DEFAULT '',
		token_id     TEXT NOT NULL,
		level        SMALLINT NOT NULL,
		bid_px       DOUBLE PRECISION,
		bid_sz       DOUBLE PRECISION,
		ask_px       DOUBLE PRECISION,
		ask_sz       DOUBLE PRECISION,
		source       TEXT NOT NULL DEFAULT 'ws'
	)`,
	`CREATE INDEX IF NOT EXISTS orderbook_levels_token_ts_idx
		ON orderbook_levels (token_id, exchange_ts, level)`,
}

// Hypertable conversion is best-effort: the plain tables work without the
// timescaledb extension, just without chunking.
var hypertableDDL = []string{
	`SELECT create_hypertable('trades_raw', 'exchange_ts',
		chunk_time_interval => 86400000000, if_not_exists => TRUE, migrate_data => TRUE)`,
	`SELECT create_hypertable('orderbook_levels', 'exchange_ts',
		chunk_time_interval => 86400000000, if_not_exists => TRUE, migrate_data => TRUE)`,
}

// EnsureSchema creates the ingestion tables and indexes if absent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, ddl := range schemaDDL {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	for _, ddl := range hypertableDDL {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			logger.Warn("hypertable conversion skipped", "error", err)
			break
		}
	}

	return nil
}

// VerifySchema confirms all destination tables exist. Used at startup so
// the process exits non-zero instead of running against a missing schema.
func VerifySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range []string{TableMarkets, TableTrades, TableBookLevels} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("verify schema: %w", err)
		}
		if !exists {
			return fmt.Errorf("verify schema: table %q is missing", table)
		}
	}
	return nil
}
