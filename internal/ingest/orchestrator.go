package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bademirci/prediction-markets/internal/catalog"
	"github.com/bademirci/prediction-markets/internal/model"
	"github.com/bademirci/prediction-markets/internal/stream"
	"github.com/bademirci/prediction-markets/internal/writer"
)

// Config contains orchestrator timing knobs.
type Config struct {
	// PollInterval is how often the catalog is refreshed.
	PollInterval time.Duration

	// StatsInterval is how often a stats summary line is logged.
	// Zero disables the summary.
	StatsInterval time.Duration
}

// Streamer is the stream surface the orchestrator drives.
type Streamer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Subscribe(tokenIDs []string)
	Unsubscribe(tokenIDs []string)
	Events() <-chan stream.Event
	Stats() stream.Stats
}

// EventWriter is the persistence surface the orchestrator feeds.
type EventWriter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SubmitTrade(t model.Trade) error
	SubmitBookLevels(levels []model.BookLevel) error
	SubmitMarkets(markets []model.Market) error
	Stats() writer.Stats
}

// Catalog is the market directory the orchestrator polls.
type Catalog interface {
	Poll(ctx context.Context) (catalog.Diff, error)
	TokenOwner(tokenID string) (model.Market, bool)
	ActiveCount() int
}

// Stats is a point-in-time summary of the whole pipeline.
type Stats struct {
	ActiveMarkets int
	LastEventAge  time.Duration
	PollFailures  int64
	Stream        stream.Stats
	Writer        writer.Stats
}

// Orchestrator owns pipeline lifecycle and the catalog-to-stream feedback
// loop. Components start writer-first and stop stream-first so no event
// arrives without a running writer.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	catalog Catalog
	stream  Streamer
	writer  EventWriter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastEventAt  atomic.Int64 // UnixMicro of most recent event
	pollFailures atomic.Int64
}

// New creates an Orchestrator.
func New(cfg Config, cat Catalog, st Streamer, wr EventWriter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		stream:  st,
		writer:  wr,
	}
}

// Start brings the pipeline up: writer, stream, then the initial catalog
// poll. A failed initial poll is not fatal; the poll loop retries.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	if err := o.writer.Start(o.ctx); err != nil {
		return err
	}
	if err := o.stream.Start(o.ctx); err != nil {
		o.writer.Stop(ctx)
		return err
	}

	if diff, err := o.catalog.Poll(o.ctx); err != nil {
		o.pollFailures.Add(1)
		o.logger.Warn("initial catalog poll failed, continuing", "error", err)
	} else {
		o.applyDiff(diff)
	}

	o.wg.Add(2)
	go o.pollLoop()
	go o.routeLoop()

	if o.cfg.StatsInterval > 0 {
		o.wg.Add(1)
		go o.statsLoop()
	}

	o.logger.Info("orchestrator started",
		"poll_interval", o.cfg.PollInterval,
		"active_markets", o.catalog.ActiveCount(),
	)
	return nil
}

// Stop tears the pipeline down. The stream stops first so the writer can
// flush everything already received before it closes.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.logger.Info("stopping orchestrator")

	if o.cancel != nil {
		o.cancel()
	}

	streamErr := o.stream.Stop(ctx)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("orchestrator shutdown timeout")
	}

	writerErr := o.writer.Stop(ctx)

	o.logger.Info("orchestrator stopped")
	return errors.Join(streamErr, writerErr)
}

// Stats returns a pipeline summary.
func (o *Orchestrator) Stats() Stats {
	var age time.Duration
	if last := o.lastEventAt.Load(); last > 0 {
		age = time.Since(time.UnixMicro(last))
	}
	return Stats{
		ActiveMarkets: o.catalog.ActiveCount(),
		LastEventAge:  age,
		PollFailures:  o.pollFailures.Load(),
		Stream:        o.stream.Stats(),
		Writer:        o.writer.Stats(),
	}
}

// pollLoop refreshes the catalog on the configured interval.
func (o *Orchestrator) pollLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			diff, err := o.catalog.Poll(o.ctx)
			if err != nil {
				o.pollFailures.Add(1)
				o.logger.Warn("catalog poll failed", "error", err)
				continue
			}
			o.applyDiff(diff)
		}
	}
}

// applyDiff converges the stream subscription set and records dimension
// changes. Removed markets keep their dimension row, marked inactive.
func (o *Orchestrator) applyDiff(diff catalog.Diff) {
	if diff.Empty() {
		return
	}

	var subscribe, unsubscribe []string
	var dims []model.Market

	for _, m := range diff.Added {
		subscribe = append(subscribe, m.TokenIDs...)
		dims = append(dims, m)
	}
	for _, m := range diff.Removed {
		unsubscribe = append(unsubscribe, m.TokenIDs...)
		dims = append(dims, m)
	}
	for _, m := range diff.Updated {
		dims = append(dims, m)
	}

	if len(subscribe) > 0 {
		o.stream.Subscribe(subscribe)
	}
	if len(unsubscribe) > 0 {
		o.stream.Unsubscribe(unsubscribe)
	}
	if len(dims) > 0 {
		if err := o.writer.SubmitMarkets(dims); err != nil {
			o.logger.Warn("market dimension submit failed", "count", len(dims), "error", err)
		}
	}

	o.logger.Info("catalog diff applied",
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"updated", len(diff.Updated),
		"subscribed_tokens", len(subscribe),
		"unsubscribed_tokens", len(unsubscribe),
	)
}

// routeLoop moves events from the stream into the writer until the
// stream's event channel closes.
func (o *Orchestrator) routeLoop() {
	defer o.wg.Done()

	for ev := range o.stream.Events() {
		o.lastEventAt.Store(time.Now().UnixMicro())

		switch {
		case ev.Trade != nil:
			trade := *ev.Trade
			o.enrichTrade(&trade)
			if err := o.writer.SubmitTrade(trade); err != nil {
				o.logger.Warn("trade submit failed", "token", trade.TokenID, "error", err)
			}

		case len(ev.Levels) > 0:
			levels := make([]model.BookLevel, len(ev.Levels))
			copy(levels, ev.Levels)
			o.enrichLevels(levels)
			if err := o.writer.SubmitBookLevels(levels); err != nil {
				o.logger.Warn("book submit failed", "token", levels[0].TokenID, "error", err)
			}
		}
	}
}

// enrichTrade fills identity fields the feed does not carry.
func (o *Orchestrator) enrichTrade(t *model.Trade) {
	m, ok := o.catalog.TokenOwner(t.TokenID)
	if !ok {
		return
	}
	t.MarketID = m.ID
	if t.ConditionID == "" {
		t.ConditionID = m.ConditionID
	}
	if t.Outcome == "" {
		for i, id := range m.TokenIDs {
			if id == t.TokenID && i < len(m.Outcomes) {
				t.Outcome = m.Outcomes[i]
				t.OutcomeIndex = i
				break
			}
		}
	}
}

func (o *Orchestrator) enrichLevels(levels []model.BookLevel) {
	if len(levels) == 0 {
		return
	}
	m, ok := o.catalog.TokenOwner(levels[0].TokenID)
	if !ok {
		return
	}
	for i := range levels {
		levels[i].MarketID = m.ID
		if levels[i].ConditionID == "" {
			levels[i].ConditionID = m.ConditionID
		}
	}
}

// statsLoop logs a periodic pipeline summary.
func (o *Orchestrator) statsLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			st := o.Stats()
			o.logger.Info("pipeline stats",
				"active_markets", st.ActiveMarkets,
				"stream_state", st.Stream.State,
				"subscribed", st.Stream.Subscribed,
				"trades", st.Stream.TradesReceived,
				"books", st.Stream.BooksReceived,
				"dropped", st.Stream.Dropped,
				"recv_dropped", st.Stream.ReceiveDropped,
				"reconnects", st.Stream.Reconnects,
				"trades_inserted", st.Writer.Trades.Inserted,
				"levels_inserted", st.Writer.BookLevels.Inserted,
				"last_event_age", st.LastEventAge.Round(time.Second),
				"poll_failures", st.PollFailures,
			)
		}
	}
}
