package ingest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bademirci/prediction-markets/internal/catalog"
	"github.com/bademirci/prediction-markets/internal/model"
	"github.com/bademirci/prediction-markets/internal/stream"
	"github.com/bademirci/prediction-markets/internal/writer"
)

// fakeCatalog serves scripted diffs and a fixed token index.
type fakeCatalog struct {
	mu      sync.Mutex
	diffs   []catalog.Diff
	errs    []error
	markets map[string]model.Market // by token ID
	polls   int
}

func (f *fakeCatalog) Poll(ctx context.Context) (catalog.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i < len(f.errs) && f.errs[i] != nil {
		return catalog.Diff{}, f.errs[i]
	}
	if i < len(f.diffs) {
		return f.diffs[i], nil
	}
	return catalog.Diff{}, nil
}

func (f *fakeCatalog) TokenOwner(tokenID string) (model.Market, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[tokenID]
	return m, ok
}

func (f *fakeCatalog) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markets)
}

func (f *fakeCatalog) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeStream records subscription changes and exposes a pushable
// events channel.
type fakeStream struct {
	mu           sync.Mutex
	subscribed   map[string]int
	unsubscribed map[string]int
	events       chan stream.Event
	started      bool
	stopped      bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		subscribed:   make(map[string]int),
		unsubscribed: make(map[string]int),
		events:       make(chan stream.Event, 100),
	}
}

func (f *fakeStream) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeStream) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.events)
	}
	return nil
}

func (f *fakeStream) Subscribe(tokenIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range tokenIDs {
		f.subscribed[id]++
	}
}

func (f *fakeStream) Unsubscribe(tokenIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range tokenIDs {
		f.unsubscribed[id]++
	}
}

func (f *fakeStream) Events() <-chan stream.Event { return f.events }

func (f *fakeStream) Stats() stream.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return stream.Stats{Subscribed: len(f.subscribed)}
}

func (f *fakeStream) subscribedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// fakeWriter records submitted rows.
type fakeWriter struct {
	mu      sync.Mutex
	trades  []model.Trade
	levels  []model.BookLevel
	markets []model.Market
	stopped bool
}

func (f *fakeWriter) Start(ctx context.Context) error { return nil }

func (f *fakeWriter) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeWriter) SubmitTrade(t model.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeWriter) SubmitBookLevels(levels []model.BookLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, levels...)
	return nil
}

func (f *fakeWriter) SubmitMarkets(markets []model.Market) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, markets...)
	return nil
}

func (f *fakeWriter) Stats() writer.Stats { return writer.Stats{} }

func (f *fakeWriter) tradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

func (f *fakeWriter) marketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markets)
}

func waitForCond(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func twoTokenMarket() model.Market {
	return model.Market{
		ID:          "101",
		ConditionID: "0xabc",
		Question:    "Will it rain tomorrow?",
		Outcomes:    []string{"Yes", "No"},
		TokenIDs:    []string{"tok-yes", "tok-no"},
		Active:      true,
	}
}

func TestOrchestrator_InitialPollSubscribes(t *testing.T) {
	m := twoTokenMarket()
	cat := &fakeCatalog{
		diffs:   []catalog.Diff{{Added: []model.Market{m}}},
		markets: map[string]model.Market{"tok-yes": m, "tok-no": m},
	}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: time.Hour}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	got := st.subscribedTokens()
	if len(got) != 2 || got[0] != "tok-no" || got[1] != "tok-yes" {
		t.Errorf("subscribed tokens = %v, want both outcome tokens", got)
	}

	// The new market's dimension row goes to the writer.
	if wr.marketCount() != 1 {
		t.Errorf("market rows = %d, want 1", wr.marketCount())
	}
}

func TestOrchestrator_InitialPollFailureIsNotFatal(t *testing.T) {
	cat := &fakeCatalog{
		errs:    []error{context.DeadlineExceeded},
		markets: map[string]model.Market{},
	}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: 20 * time.Millisecond}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	if o.Stats().PollFailures != 1 {
		t.Errorf("PollFailures = %d, want 1", o.Stats().PollFailures)
	}

	// The poll loop keeps retrying after the failed initial poll.
	waitForCond(t, time.Second, func() bool {
		return cat.pollCount() >= 2
	}, "poll loop never retried")
}

func TestOrchestrator_RemovalUnsubscribes(t *testing.T) {
	m := twoTokenMarket()
	removed := m
	removed.Active = false

	cat := &fakeCatalog{
		diffs: []catalog.Diff{
			{Added: []model.Market{m}},
			{Removed: []model.Market{removed}},
		},
		markets: map[string]model.Market{"tok-yes": m, "tok-no": m},
	}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: 20 * time.Millisecond}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	waitForCond(t, time.Second, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.unsubscribed) == 2
	}, "removed market's tokens never unsubscribed")

	// Removal still produces a dimension row (marked inactive upstream).
	waitForCond(t, time.Second, func() bool {
		return wr.marketCount() >= 2
	}, "removed market dimension row never submitted")
}

func TestOrchestrator_RoutesAndEnrichesTrade(t *testing.T) {
	m := twoTokenMarket()
	cat := &fakeCatalog{
		markets: map[string]model.Market{"tok-yes": m, "tok-no": m},
	}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: time.Hour}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	st.events <- stream.Event{Trade: &model.Trade{
		TokenID: "tok-no",
		Price:   0.4,
		Size:    12,
		Side:    "SELL",
	}}

	waitForCond(t, time.Second, func() bool {
		return wr.tradeCount() == 1
	}, "trade never reached writer")

	wr.mu.Lock()
	trade := wr.trades[0]
	wr.mu.Unlock()

	if trade.MarketID != "101" {
		t.Errorf("MarketID = %q, want 101", trade.MarketID)
	}
	if trade.ConditionID != "0xabc" {
		t.Errorf("ConditionID = %q, want 0xabc", trade.ConditionID)
	}
	if trade.Outcome != "No" || trade.OutcomeIndex != 1 {
		t.Errorf("Outcome = %q/%d, want No/1", trade.Outcome, trade.OutcomeIndex)
	}
}

func TestOrchestrator_RoutesBookLevels(t *testing.T) {
	m := twoTokenMarket()
	cat := &fakeCatalog{
		markets: map[string]model.Market{"tok-yes": m},
	}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: time.Hour}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	px := 0.55
	st.events <- stream.Event{Levels: []model.BookLevel{
		{TokenID: "tok-yes", Level: 1, BidPrice: &px},
		{TokenID: "tok-yes", Level: 2},
	}}

	waitForCond(t, time.Second, func() bool {
		wr.mu.Lock()
		defer wr.mu.Unlock()
		return len(wr.levels) == 2
	}, "book levels never reached writer")

	wr.mu.Lock()
	defer wr.mu.Unlock()
	for i, lvl := range wr.levels {
		if lvl.MarketID != "101" || lvl.ConditionID != "0xabc" {
			t.Errorf("levels[%d] identity = %q/%q, want 101/0xabc", i, lvl.MarketID, lvl.ConditionID)
		}
	}
}

func TestOrchestrator_UnknownTokenPassesThrough(t *testing.T) {
	cat := &fakeCatalog{markets: map[string]model.Market{}}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: time.Hour}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	// Events for tokens the catalog does not know are persisted as-is.
	st.events <- stream.Event{Trade: &model.Trade{TokenID: "mystery", Price: 0.1}}

	waitForCond(t, time.Second, func() bool {
		return wr.tradeCount() == 1
	}, "trade for unknown token never reached writer")

	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.trades[0].MarketID != "" {
		t.Errorf("MarketID = %q, want empty for unknown token", wr.trades[0].MarketID)
	}
}

func TestOrchestrator_StopOrder(t *testing.T) {
	cat := &fakeCatalog{markets: map[string]model.Market{}}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: time.Hour}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Events in flight at shutdown still reach the writer because the
	// stream closes its channel before the writer stops.
	st.events <- stream.Event{Trade: &model.Trade{TokenID: "tok", Price: 0.2}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if wr.tradeCount() != 1 {
		t.Errorf("trades persisted = %d, want 1", wr.tradeCount())
	}

	wr.mu.Lock()
	stopped := wr.stopped
	wr.mu.Unlock()
	if !stopped {
		t.Error("writer was never stopped")
	}
}

func TestOrchestrator_LastEventAge(t *testing.T) {
	cat := &fakeCatalog{markets: map[string]model.Market{}}
	st := newFakeStream()
	wr := &fakeWriter{}

	o := New(Config{PollInterval: time.Hour}, cat, st, wr, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop(context.Background())

	if o.Stats().LastEventAge != 0 {
		t.Error("LastEventAge should be zero before any event")
	}

	st.events <- stream.Event{Trade: &model.Trade{TokenID: "tok"}}

	waitForCond(t, time.Second, func() bool {
		return wr.tradeCount() == 1
	}, "event never routed")

	age := o.Stats().LastEventAge
	if age <= 0 || age > time.Second {
		t.Errorf("LastEventAge = %v, want a small positive duration", age)
	}
}
