package stream

import (
	"encoding/json"
	"errors"
	"time"
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("client already closed")
	ErrStaleConnection  = errors.New("connection stale, no traffic received")
	ErrConnectionClosed = errors.New("connection closed")
	ErrForcedDisconnect = errors.New("forced disconnect for testing")
)

// State describes where the stream is in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnectPending:
		return "reconnect_pending"
	default:
		return "unknown"
	}
}

// Config configures the stream and its reconnection behavior.
type Config struct {
	URL string

	PingInterval time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// StableReset is how long a connection must stream before the
	// reconnect backoff resets to its base delay.
	StableReset time.Duration

	SubscribeBatchSize int
	// SubscribeRate caps outbound subscribe batches per second.
	SubscribeRate float64

	EventBufferSize int
	MaxBookDepth    int
}

// Stats is a point-in-time snapshot of stream counters.
type Stats struct {
	State          string
	Subscribed     int
	TradesReceived int64
	BooksReceived  int64
	LevelsEmitted  int64
	ParseErrors    int64
	Skipped        int64
	Dropped        int64 // normalized events lost to a full events buffer
	ReceiveDropped int64 // raw messages lost to a full read buffer
	Reconnects     int64
}

// subscribeMsg is the outbound control message for the market channel.
// The same shape with type "unsubscribe" removes tokens.
type subscribeMsg struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	AssetIDs []string `json:"assets_ids"`
}

// envelope carries just enough of a feed message to route it.
// Some feed versions use "event_type", older ones use "type".
type envelope struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
}

// flexString accepts a JSON string or number and stores it as a string.
// The feed is inconsistent about quoting numeric fields.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// tradeWire is a trade or last_trade_price event as sent by the feed.
type tradeWire struct {
	AssetID      string     `json:"asset_id"`
	Market       string     `json:"market"`
	Price        flexString `json:"price"`
	Size         flexString `json:"size"`
	Side         string     `json:"side"`
	Outcome      string     `json:"outcome"`
	OutcomeIndex int        `json:"outcome_index"`
	TradeID      string     `json:"id"`
	Maker        string     `json:"maker_address"`
	Taker        string     `json:"taker_address"`
	Timestamp    flexString `json:"timestamp"`
	FeeRateBps   flexString `json:"fee_rate_bps"`
}

// levelWire is a single price level inside a book event.
type levelWire struct {
	Price flexString `json:"price"`
	Size  flexString `json:"size"`
}

// bookWire is a full order book snapshot event.
type bookWire struct {
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []levelWire `json:"bids"`
	Asks      []levelWire `json:"asks"`
	Buys      []levelWire `json:"buys"`
	Sells     []levelWire `json:"sells"`
	Timestamp flexString  `json:"timestamp"`
	Hash      string      `json:"hash"`
}
