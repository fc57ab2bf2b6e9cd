package stream

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bademirci/prediction-markets/internal/model"
)

// Event is a normalized feed event. Exactly one of Trade or Levels is set.
type Event struct {
	Trade  *model.Trade
	Levels []model.BookLevel
}

// parseResult accumulates counters across one raw message, which may
// contain a single event or an array of events.
type parseResult struct {
	events      []Event
	skipped     int
	parseErrors int
}

// parseMessage normalizes one raw feed message. The feed delivers both
// bare objects and arrays of objects on the same connection.
func parseMessage(data []byte, receivedAt time.Time, maxDepth int) parseResult {
	var res parseResult

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return res
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			res.parseErrors++
			return res
		}
		for _, item := range items {
			parseOne(item, receivedAt, maxDepth, &res)
		}
		return res
	}

	parseOne(trimmed, receivedAt, maxDepth, &res)
	return res
}

func parseOne(raw json.RawMessage, receivedAt time.Time, maxDepth int, res *parseResult) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		res.parseErrors++
		return
	}

	eventType := env.EventType
	if eventType == "" {
		eventType = env.Type
	}

	switch eventType {
	case "trade", "last_trade_price":
		trade, err := parseTrade(raw, receivedAt)
		if err != nil {
			res.parseErrors++
			return
		}
		res.events = append(res.events, Event{Trade: trade})

	case "book":
		levels, err := parseBook(raw, receivedAt, maxDepth)
		if err != nil {
			res.parseErrors++
			return
		}
		if len(levels) == 0 {
			res.skipped++
			return
		}
		res.events = append(res.events, Event{Levels: levels})

	case "":
		// No event type marker. Probe the shape before giving up.
		var probe bookWire
		if err := json.Unmarshal(raw, &probe); err == nil &&
			(len(probe.Bids) > 0 || len(probe.Asks) > 0 || len(probe.Buys) > 0 || len(probe.Sells) > 0) {
			levels, err := parseBook(raw, receivedAt, maxDepth)
			if err != nil {
				res.parseErrors++
				return
			}
			res.events = append(res.events, Event{Levels: levels})
			return
		}
		res.skipped++

	default:
		// price_change, tick_size_change and any future event types
		// are intentionally not persisted.
		res.skipped++
	}
}

func parseTrade(raw json.RawMessage, receivedAt time.Time) (*model.Trade, error) {
	var w tradeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(string(w.Price), 64)
	if err != nil {
		return nil, err
	}
	size, err := parseFloatOrZero(string(w.Size))
	if err != nil {
		return nil, err
	}

	side := strings.ToUpper(w.Side)
	if side == "" {
		side = "UNKNOWN"
	}

	exchangeTS := parseMillis(string(w.Timestamp))
	if exchangeTS == 0 {
		exchangeTS = receivedAt.UnixMicro()
	}

	return &model.Trade{
		ExchangeTS:   exchangeTS,
		ReceivedAt:   receivedAt.UnixMicro(),
		ConditionID:  w.Market,
		TokenID:      w.AssetID,
		Side:         side,
		Price:        price,
		Size:         size,
		Outcome:      w.Outcome,
		OutcomeIndex: w.OutcomeIndex,
		TradeID:      w.TradeID,
		MakerAddress: w.Maker,
		TakerAddress: w.Taker,
		Source:       "ws",
	}, nil
}

func parseBook(raw json.RawMessage, receivedAt time.Time, maxDepth int) ([]model.BookLevel, error) {
	var w bookWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	bids := w.Bids
	if len(bids) == 0 {
		bids = w.Buys
	}
	asks := w.Asks
	if len(asks) == 0 {
		asks = w.Sells
	}

	bidLevels := sortedLevels(bids, true)
	askLevels := sortedLevels(asks, false)

	exchangeTS := parseMillis(string(w.Timestamp))
	if exchangeTS == 0 {
		exchangeTS = receivedAt.UnixMicro()
	}

	depth := len(bidLevels)
	if len(askLevels) > depth {
		depth = len(askLevels)
	}
	if maxDepth > 0 && depth > maxDepth {
		depth = maxDepth
	}

	levels := make([]model.BookLevel, 0, depth)
	for i := 0; i < depth; i++ {
		lvl := model.BookLevel{
			ExchangeTS:  exchangeTS,
			ReceivedAt:  receivedAt.UnixMicro(),
			ConditionID: w.Market,
			TokenID:     w.AssetID,
			Level:       i + 1,
			Source:      "ws",
		}
		if i < len(bidLevels) {
			lvl.BidPrice = ptr(bidLevels[i].price)
			lvl.BidSize = ptr(bidLevels[i].size)
		}
		if i < len(askLevels) {
			lvl.AskPrice = ptr(askLevels[i].price)
			lvl.AskSize = ptr(askLevels[i].size)
		}
		levels = append(levels, lvl)
	}

	return levels, nil
}

type priceLevel struct {
	price float64
	size  float64
}

// sortedLevels parses raw levels and orders them best-first: bids by
// descending price, asks by ascending price. Unparseable levels are skipped.
func sortedLevels(raw []levelWire, descending bool) []priceLevel {
	out := make([]priceLevel, 0, len(raw))
	for _, lw := range raw {
		price, err := strconv.ParseFloat(string(lw.Price), 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(string(lw.Size), 64)
		if err != nil {
			continue
		}
		out = append(out, priceLevel{price: price, size: size})
	}

	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].price > out[j].price
		}
		return out[i].price < out[j].price
	})

	return out
}

// parseMillis converts a millisecond epoch string to microseconds.
// Returns 0 when the value is missing or unparseable.
func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some events carry fractional millisecond timestamps.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f * 1000)
	}
	return ms * 1000
}

func parseFloatOrZero(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func ptr(f float64) *float64 {
	return &f
}
