package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bademirci/prediction-markets/internal/model"
)

// ToModel converts a Gamma wire market to the domain model.
func (gm GammaMarket) ToModel() (model.Market, error) {
	if gm.ConditionID == "" {
		return model.Market{}, fmt.Errorf("market %s has no condition id", gm.ID.String())
	}

	outcomes, err := decodeStringArray(gm.Outcomes)
	if err != nil {
		return model.Market{}, fmt.Errorf("decode outcomes: %w", err)
	}

	tokenIDs, err := decodeStringArray(gm.ClobTokenIDs)
	if err != nil {
		return model.Market{}, fmt.Errorf("decode clob token ids: %w", err)
	}

	return model.Market{
		ID:             gm.ID.String(),
		ConditionID:    gm.ConditionID,
		Question:       gm.Question,
		Slug:           gm.Slug,
		Category:       gm.Category,
		Outcomes:       outcomes,
		TokenIDs:       tokenIDs,
		EndDate:        parseEndDate(gm.EndDate),
		Active:         gm.Active,
		Closed:         gm.Closed,
		Volume:         gm.VolumeNum,
		Liquidity:      gm.LiquidityNum,
		BestBid:        gm.BestBid,
		BestAsk:        gm.BestAsk,
		LastTradePrice: gm.LastTradePrice,
		UpdatedAt:      time.Now().UnixMicro(),
	}, nil
}

// decodeStringArray decodes a JSON-encoded string array field like
// "[\"Yes\", \"No\"]". Empty input yields an empty slice.
func decodeStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseEndDate parses an ISO 8601 end date. Returns zero time on failure;
// a missing end date is not an error.
func parseEndDate(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return time.Time{}
	}
	return t
}
