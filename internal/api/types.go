package api

import "encoding/json"

// GammaMarket represents one market from GET /markets on the Gamma API.
//
// Outcomes and ClobTokenIDs arrive as JSON-encoded strings inside the JSON
// document (e.g. "[\"Yes\", \"No\"]"); convert.go decodes them.
type GammaMarket struct {
	ID           json.Number `json:"id"`
	ConditionID  string      `json:"conditionId"`
	Question     string      `json:"question"`
	Slug         string      `json:"slug"`
	Category     string      `json:"category"`
	Outcomes     string      `json:"outcomes"`
	ClobTokenIDs string      `json:"clobTokenIds"`
	EndDate      string      `json:"endDate"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`

	VolumeNum      float64 `json:"volumeNum"`
	LiquidityNum   float64 `json:"liquidityNum"`
	BestBid        float64 `json:"bestBid"`
	BestAsk        float64 `json:"bestAsk"`
	LastTradePrice float64 `json:"lastTradePrice"`
}

// ListMarketsOptions configures a GetMarkets request.
type ListMarketsOptions struct {
	Limit    int
	Offset   int
	Active   bool // only active markets
	Closed   bool // include closed markets
	Category string
}
