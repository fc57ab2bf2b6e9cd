package model

import "time"

// -----------------------------------------------------------------------------
// Dimension Types
// -----------------------------------------------------------------------------

// Market represents a tradeable prediction market (one question with one
// outcome token per tradable leg).
type Market struct {
	ID          string // Gamma market ID
	ConditionID string // CLOB condition ID (primary key on the wire)
	Question    string // Display question
	Slug        string // URL slug
	Category    string // Category reported by the API
	Computed    string // Computed category (API category + keyword heuristic)

	Outcomes []string // Outcome labels (e.g., ["Yes", "No"])
	TokenIDs []string // CLOB token IDs, parallel to Outcomes

	EndDate time.Time // Market end date, zero if unknown
	Active  bool      // Market accepts orders
	Closed  bool      // Market has resolved

	Volume         float64 // Total volume (USD)
	Liquidity      float64 // Current liquidity (USD)
	BestBid        float64 // Best bid at fetch time
	BestAsk        float64 // Best ask at fetch time
	LastTradePrice float64 // Last traded price at fetch time

	UpdatedAt int64 // Last catalog update (µs since epoch)
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Trade represents an executed trade. Immutable once constructed.
type Trade struct {
	ExchangeTS   int64  // Exchange-reported timestamp (µs since epoch)
	ReceivedAt   int64  // Local receipt timestamp (µs since epoch)
	MarketID     string // Gamma market ID (filled from the catalog)
	ConditionID  string // CLOB condition ID
	TokenID      string // Outcome token the trade executed on
	Side         string // "BUY", "SELL" or "UNKNOWN" (taker side)
	Price        float64
	Size         float64
	Outcome      string // Outcome label, if reported
	OutcomeIndex int    // Outcome leg index
	TradeID      string // Exchange trade ID, "" if not reported
	MakerAddress string
	TakerAddress string
	Source       string // "ws" or "rest"
}

// BookLevel represents one price level of an order-book snapshot.
// Pointer fields are nil when that side has no liquidity at the level.
type BookLevel struct {
	ExchangeTS  int64  // Exchange-reported timestamp (µs since epoch)
	ReceivedAt  int64  // Local receipt timestamp (µs since epoch)
	MarketID    string // Gamma market ID (filled from the catalog)
	ConditionID string // CLOB condition ID
	TokenID     string // Outcome token this book belongs to
	Level       int    // Depth index, 1 = top of book
	BidPrice    *float64
	BidSize     *float64
	AskPrice    *float64
	AskSize     *float64
	Source      string // "ws" or "rest"
}

// TokenCount returns the number of outcome tokens on the market.
func (m Market) TokenCount() int {
	return len(m.TokenIDs)
}

// SameTokens reports whether both markets carry the same token set in order.
func (m Market) SameTokens(other Market) bool {
	if len(m.TokenIDs) != len(other.TokenIDs) {
		return false
	}
	for i, id := range m.TokenIDs {
		if other.TokenIDs[i] != id {
			return false
		}
	}
	return true
}
