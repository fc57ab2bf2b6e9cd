package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bademirci/prediction-markets/internal/model"
)

// Sink persists batches of rows. The production implementation writes to
// TimescaleDB; tests substitute fakes.
type Sink interface {
	// InsertTrades inserts trades, ignoring duplicate trade IDs.
	// Returns the number of rows skipped as duplicates.
	InsertTrades(ctx context.Context, rows []model.Trade) (conflicts int, err error)

	// InsertBookLevels inserts order book depth rows.
	InsertBookLevels(ctx context.Context, rows []model.BookLevel) (conflicts int, err error)

	// UpsertMarkets inserts or updates market dimension rows.
	UpsertMarkets(ctx context.Context, rows []model.Market) (conflicts int, err error)
}

// timescaleSink writes batches using pgx.Batch round trips.
type timescaleSink struct {
	db *pgxpool.Pool
}

// NewTimescaleSink creates a Sink backed by the given pool.
func NewTimescaleSink(db *pgxpool.Pool) Sink {
	return &timescaleSink{db: db}
}

func (s *timescaleSink) InsertTrades(ctx context.Context, rows []model.Trade) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trades_raw (
				exchange_ts, received_at, market_id, condition_id, token_id,
				side, price, size, outcome, outcome_index,
				trade_id, maker_address, taker_address, source
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (trade_id) WHERE trade_id <> '' DO NOTHING
		`, r.ExchangeTS, r.ReceivedAt, r.MarketID, r.ConditionID, r.TokenID,
			r.Side, r.Price, r.Size, r.Outcome, r.OutcomeIndex,
			r.TradeID, r.MakerAddress, r.TakerAddress, r.Source)
	}

	return s.sendBatch(ctx, batch, len(rows))
}

func (s *timescaleSink) InsertBookLevels(ctx context.Context, rows []model.BookLevel) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO orderbook_levels (
				exchange_ts, received_at, market_id, condition_id, token_id,
				level, bid_px, bid_sz, ask_px, ask_sz, source
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, r.ExchangeTS, r.ReceivedAt, r.MarketID, r.ConditionID, r.TokenID,
			r.Level, r.BidPrice, r.BidSize, r.AskPrice, r.AskSize, r.Source)
	}

	return s.sendBatch(ctx, batch, len(rows))
}

func (s *timescaleSink) UpsertMarkets(ctx context.Context, rows []model.Market) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var endDate any
		if !r.EndDate.IsZero() {
			endDate = r.EndDate.UTC()
		}
		batch.Queue(`
			INSERT INTO markets_dim (
				market_id, condition_id, question, slug, category, computed_category,
				outcomes, token_ids, end_date, active, closed,
				volume_total, liquidity, best_bid, best_ask, last_trade_price, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT (condition_id, market_id) DO UPDATE SET
				question          = EXCLUDED.question,
				slug              = EXCLUDED.slug,
				category          = EXCLUDED.category,
				computed_category = EXCLUDED.computed_category,
				outcomes          = EXCLUDED.outcomes,
				token_ids         = EXCLUDED.token_ids,
				end_date          = EXCLUDED.end_date,
				active            = EXCLUDED.active,
				closed            = EXCLUDED.closed,
				volume_total      = EXCLUDED.volume_total,
				liquidity         = EXCLUDED.liquidity,
				best_bid          = EXCLUDED.best_bid,
				best_ask          = EXCLUDED.best_ask,
				last_trade_price  = EXCLUDED.last_trade_price,
				updated_at        = EXCLUDED.updated_at
		`, r.ID, r.ConditionID, r.Question, r.Slug, r.Category, r.Computed,
			r.Outcomes, r.TokenIDs, endDate, r.Active, r.Closed,
			r.Volume, r.Liquidity, r.BestBid, r.BestAsk, r.LastTradePrice, r.UpdatedAt)
	}

	return s.sendBatch(ctx, batch, len(rows))
}

// sendBatch executes a queued batch and counts rows skipped by ON CONFLICT.
func (s *timescaleSink) sendBatch(ctx context.Context, batch *pgx.Batch, n int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for i := 0; i < n; i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
