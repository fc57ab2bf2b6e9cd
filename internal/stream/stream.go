package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

// Stream maintains one market-channel connection and its subscription set.
//
// Subscribe and Unsubscribe mutate the desired set and return immediately;
// the run loop keeps the live connection converged on that set, re-asserting
// the full set after every reconnect.
type Stream struct {
	cfg    Config
	logger *slog.Logger

	events chan Event

	state atomic.Int32

	mu     sync.Mutex
	want   map[string]struct{}
	client Client

	limiter *rate.Limiter
	backoff *backoff.Backoff

	// newClient builds a connection. Overridable in tests.
	newClient func() Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tradesReceived atomic.Int64
	booksReceived  atomic.Int64
	levelsEmitted  atomic.Int64
	parseErrors    atomic.Int64
	skipped        atomic.Int64
	dropped        atomic.Int64
	recvDropped    atomic.Int64
	reconnects     atomic.Int64
}

// New creates a Stream. Start must be called before events flow.
func New(cfg Config, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscribeBatchSize <= 0 {
		cfg.SubscribeBatchSize = 200
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 10000
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.StableReset <= 0 {
		cfg.StableReset = 60 * time.Second
	}

	subRate := cfg.SubscribeRate
	if subRate <= 0 {
		subRate = 5
	}

	s := &Stream{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, cfg.EventBufferSize),
		want:    make(map[string]struct{}),
		limiter: rate.NewLimiter(rate.Limit(subRate), 1),
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectBaseDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: 2,
			Jitter: true,
		},
	}
	s.newClient = func() Client {
		return NewClient(ClientConfig{
			URL:          cfg.URL,
			PingInterval: cfg.PingInterval,
			PingTimeout:  cfg.PingTimeout,
			WriteTimeout: cfg.WriteTimeout,
			BufferSize:   cfg.EventBufferSize,
		}, logger)
	}
	return s
}

// Start begins the connection run loop.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("stream started", "url", s.cfg.URL)
	return nil
}

// Stop tears down the connection and closes the events channel.
func (s *Stream) Stop(ctx context.Context) error {
	s.logger.Info("stopping stream")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("stream shutdown timeout")
	}

	close(s.events)

	s.logger.Info("stream stopped")
	return nil
}

// Events returns the channel of normalized feed events. The channel is
// closed by Stop after the run loop exits.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// Subscribe adds tokens to the desired set. Tokens already in the set are
// ignored. When streaming, new tokens are pushed to the live connection;
// otherwise they are picked up by the next reconnect.
func (s *Stream) Subscribe(tokenIDs []string) {
	s.mu.Lock()
	var fresh []string
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if _, ok := s.want[id]; !ok {
			s.want[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	client := s.client
	s.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	if s.State() == StateStreaming && client != nil {
		if err := s.sendControl(client, "subscribe", fresh); err != nil {
			// The transport error also surfaces in the run loop, which
			// will re-assert the full set on reconnect.
			s.logger.Warn("subscribe send failed", "tokens", len(fresh), "error", err)
		}
	}
}

// Unsubscribe removes tokens from the desired set. Unknown tokens are ignored.
func (s *Stream) Unsubscribe(tokenIDs []string) {
	s.mu.Lock()
	var gone []string
	for _, id := range tokenIDs {
		if _, ok := s.want[id]; ok {
			delete(s.want, id)
			gone = append(gone, id)
		}
	}
	client := s.client
	s.mu.Unlock()

	if len(gone) == 0 {
		return
	}

	if s.State() == StateStreaming && client != nil {
		if err := s.sendControl(client, "unsubscribe", gone); err != nil {
			s.logger.Warn("unsubscribe send failed", "tokens", len(gone), "error", err)
		}
	}
}

// Subscribed returns the desired token set, sorted.
func (s *Stream) Subscribed() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.want))
	for id := range s.want {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Stats returns current counters.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	subscribed := len(s.want)
	recvDropped := s.recvDropped.Load()
	if s.client != nil {
		recvDropped += s.client.Dropped()
	}
	s.mu.Unlock()

	return Stats{
		State:          s.State().String(),
		Subscribed:     subscribed,
		TradesReceived: s.tradesReceived.Load(),
		BooksReceived:  s.booksReceived.Load(),
		LevelsEmitted:  s.levelsEmitted.Load(),
		ParseErrors:    s.parseErrors.Load(),
		Skipped:        s.skipped.Load(),
		Dropped:        s.dropped.Load(),
		ReceiveDropped: recvDropped,
		Reconnects:     s.reconnects.Load(),
	}
}

// run drives the connection lifecycle until the context is cancelled.
func (s *Stream) run() {
	defer s.wg.Done()
	defer s.setState(StateDisconnected)

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		client := s.newClient()

		if err := client.Connect(s.ctx); err != nil {
			s.logger.Warn("connect failed", "error", err)
			client.Close()
			if !s.awaitReconnect() {
				return
			}
			continue
		}

		s.setState(StateSubscribing)
		asserted, err := s.assertSubscriptions(client)
		if err != nil {
			s.logger.Warn("subscription assert failed", "error", err)
			client.Close()
			if !s.awaitReconnect() {
				return
			}
			continue
		}

		s.attach(client)
		s.setState(StateStreaming)
		streamingSince := time.Now()

		if err := s.reconcile(client, asserted); err != nil {
			// The transport error also surfaces in consume, which
			// triggers a reconnect and a fresh full assert.
			s.logger.Warn("subscription reconcile failed", "error", err)
		}

		err = s.consume(client)

		s.detach()
		client.Close()

		if s.ctx.Err() != nil {
			return
		}

		if time.Since(streamingSince) >= s.cfg.StableReset {
			s.backoff.Reset()
		}

		s.logger.Warn("stream disconnected", "error", err,
			"streamed_for", time.Since(streamingSince).Round(time.Second),
		)
		if !s.awaitReconnect() {
			return
		}
	}
}

// awaitReconnect sleeps for the next backoff interval. Returns false when
// the context was cancelled during the wait.
func (s *Stream) awaitReconnect() bool {
	s.setState(StateReconnectPending)
	s.reconnects.Add(1)

	wait := s.backoff.Duration()
	s.logger.Info("reconnecting", "wait", wait.Round(time.Millisecond))

	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// assertSubscriptions pushes the full desired set to a fresh connection and
// returns the snapshot it sent.
func (s *Stream) assertSubscriptions(client Client) (map[string]struct{}, error) {
	s.mu.Lock()
	asserted := make(map[string]struct{}, len(s.want))
	tokens := make([]string, 0, len(s.want))
	for id := range s.want {
		asserted[id] = struct{}{}
		tokens = append(tokens, id)
	}
	s.mu.Unlock()

	if len(tokens) == 0 {
		return asserted, nil
	}

	sort.Strings(tokens)
	if err := s.sendControl(client, "subscribe", tokens); err != nil {
		return nil, err
	}
	return asserted, nil
}

// reconcile sends the difference between the desired set and the snapshot
// asserted during the subscribe phase. Subscribe and Unsubscribe calls that
// land while the snapshot is in flight mutate the desired set but cannot
// reach the wire before the streaming transition, so the residual is flushed
// here. A token mutated just after the transition can go out twice; the feed
// treats duplicate control messages as no-ops.
func (s *Stream) reconcile(client Client, asserted map[string]struct{}) error {
	s.mu.Lock()
	var fresh, gone []string
	for id := range s.want {
		if _, ok := asserted[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	for id := range asserted {
		if _, ok := s.want[id]; !ok {
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(fresh)
	sort.Strings(gone)

	if len(fresh) > 0 {
		if err := s.sendControl(client, "subscribe", fresh); err != nil {
			return err
		}
	}
	if len(gone) > 0 {
		return s.sendControl(client, "unsubscribe", gone)
	}
	return nil
}

// sendControl writes subscribe/unsubscribe messages in rate-limited batches.
func (s *Stream) sendControl(client Client, msgType string, tokens []string) error {
	batchSize := s.cfg.SubscribeBatchSize

	for i := 0; i < len(tokens); i += batchSize {
		end := i + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[i:end]

		if err := s.limiter.Wait(s.ctx); err != nil {
			return err
		}

		data, err := json.Marshal(subscribeMsg{
			Type:     msgType,
			Channel:  "market",
			AssetIDs: batch,
		})
		if err != nil {
			return err
		}

		if err := client.Send(data); err != nil {
			return err
		}

		s.logger.Debug("control message sent",
			"type", msgType,
			"tokens", len(batch),
		)
	}

	return nil
}

// consume drains one connection until it errors or the context ends.
func (s *Stream) consume(client Client) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil

		case err := <-client.Errors():
			return err

		case msg, ok := <-client.Messages():
			if !ok {
				return ErrConnectionClosed
			}
			s.handleMessage(msg)
		}
	}
}

func (s *Stream) handleMessage(msg TimestampedMessage) {
	res := parseMessage(msg.Data, msg.ReceivedAt, s.cfg.MaxBookDepth)

	s.parseErrors.Add(int64(res.parseErrors))
	s.skipped.Add(int64(res.skipped))

	for _, ev := range res.events {
		if ev.Trade != nil {
			s.tradesReceived.Add(1)
		} else {
			s.booksReceived.Add(1)
			s.levelsEmitted.Add(int64(len(ev.Levels)))
		}

		select {
		case s.events <- ev:
		default:
			s.dropped.Add(1)
			s.logger.Warn("event buffer full, dropping event")
		}
	}
}

func (s *Stream) attach(client Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

func (s *Stream) detach() {
	s.mu.Lock()
	if s.client != nil {
		s.recvDropped.Add(s.client.Dropped())
	}
	s.client = nil
	s.mu.Unlock()
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}
