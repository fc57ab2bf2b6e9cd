package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bademirci/prediction-markets/internal/model"
)

// GetMarkets fetches a single page of markets.
func (c *Client) GetMarkets(ctx context.Context, opts ListMarketsOptions) ([]GammaMarket, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Active {
		query.Set("active", "true")
	}
	query.Set("closed", strconv.FormatBool(opts.Closed))
	if opts.Category != "" {
		query.Set("category", opts.Category)
	}

	var page []GammaMarket
	if err := c.get(ctx, "/markets", query, &page); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	return page, nil
}

// FetchActiveMarkets fetches all active, non-closed markets up to max
// (max <= 0 means no cap), paginating by offset, and converts them to
// the domain model.
func (c *Client) FetchActiveMarkets(ctx context.Context, max int) ([]model.Market, error) {
	var raw []GammaMarket
	offset := 0

	for max <= 0 || len(raw) < max {
		pageSize := c.pageSize
		if max > 0 {
			if remaining := max - len(raw); remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := c.GetMarkets(ctx, ListMarketsOptions{
			Limit:  pageSize,
			Offset: offset,
			Active: true,
			Closed: false,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		raw = append(raw, page...)
		offset += len(page)

		if len(page) < pageSize {
			break // last page
		}
	}

	markets := make([]model.Market, 0, len(raw))
	for _, gm := range raw {
		m, err := gm.ToModel()
		if err != nil {
			c.logger.Warn("skipping malformed market",
				"market_id", gm.ID.String(),
				"error", err,
			)
			continue
		}
		markets = append(markets, m)
	}

	return markets, nil
}
