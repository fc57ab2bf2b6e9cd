package writer

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bademirci/prediction-markets/internal/model"
)

// Writer fans submitted rows out to per-table batchers over one Sink.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	trades  *batcher[model.Trade]
	levels  *batcher[model.BookLevel]
	markets *batcher[model.Market]
}

// New creates a Writer over the given sink.
func New(cfg Config, sink Sink, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		cfg:     cfg,
		logger:  logger,
		trades:  newBatcher("trades_raw", cfg, sink.InsertTrades, logger),
		levels:  newBatcher("orderbook_levels", cfg, sink.InsertBookLevels, logger),
		markets: newBatcher("markets_dim", cfg, sink.UpsertMarkets, logger),
	}
}

// Start launches the flush workers.
func (w *Writer) Start(ctx context.Context) error {
	w.trades.start(ctx)
	w.levels.start(ctx)
	w.markets.start(ctx)

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_capacity", w.cfg.BufferCapacity,
	)
	return nil
}

// Stop drains all buffers and performs a final flush bounded by ctx.
// The tables flush in parallel so a slow one cannot starve the others of
// the shutdown window. Rows submitted after Stop are refused.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	var g errgroup.Group
	g.Go(func() error { w.trades.stop(ctx); return nil })
	g.Go(func() error { w.levels.stop(ctx); return nil })
	g.Go(func() error { w.markets.stop(ctx); return nil })
	g.Wait()

	w.logger.Info("writer stopped")
	return nil
}

// SubmitTrade queues one trade.
func (w *Writer) SubmitTrade(t model.Trade) error {
	return w.trades.submit([]model.Trade{t})
}

// SubmitBookLevels queues the depth rows from one book snapshot as a group.
func (w *Writer) SubmitBookLevels(levels []model.BookLevel) error {
	return w.levels.submit(levels)
}

// SubmitMarkets queues market dimension rows.
func (w *Writer) SubmitMarkets(markets []model.Market) error {
	return w.markets.submit(markets)
}

// Stats returns current per-table counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Trades:     w.trades.stats(),
		BookLevels: w.levels.stats(),
		Markets:    w.markets.stats(),
	}
}
