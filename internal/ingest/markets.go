// Package ingest provides the Polymarket data sources: Gamma market
// listings, Data-API trades and wallet history, and the optional live
// WebSocket trade tap.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// gammaMarket is the Gamma API market payload, reduced to what the
// pipeline needs.
type gammaMarket struct {
	ID           string  `json:"id"`
	Question     string  `json:"question"`
	Slug         string  `json:"slug"`
	Active       bool    `json:"active"`
	Closed       bool    `json:"closed"`
	VolumeNum    float64 `json:"volumeNum"`
	ClobTokenIDs string  `json:"clobTokenIds"` // JSON array as string
}

// MarketsClient fetches active markets ranked by volume from the Gamma API.
type MarketsClient struct {
	baseURL string
	client  *http.Client
}

// NewMarketsClient creates a markets client with a bounded request timeout.
func NewMarketsClient(baseURL string, timeout time.Duration) *MarketsClient {
	return &MarketsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchTopMarkets returns up to limit active markets, descending by
// volume. Any failure here wraps ErrSourceUnavailable: without a market
// list the whole cycle aborts.
func (c *MarketsClient) FetchTopMarkets(ctx context.Context, limit int) ([]store.Market, error) {
	url := fmt.Sprintf("%s/markets?active=true&closed=false&order=volumeNum&ascending=false&limit=%d",
		c.baseURL, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", store.ErrSourceUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", store.ErrSourceUnavailable, resp.StatusCode)
	}

	var raw []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", store.ErrSourceUnavailable, err)
	}

	markets := make([]store.Market, 0, len(raw))
	for _, m := range raw {
		if m.ID == "" || !m.Active || m.Closed {
			continue
		}
		markets = append(markets, store.Market{
			ID:        m.ID,
			Question:  m.Question,
			VolumeUSD: m.VolumeNum,
			URL:       marketURL(m.Slug),
		})
	}

	// The API honors the order parameter, but the ranking is a contract
	// downstream relies on, so enforce it.
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].VolumeUSD > markets[j].VolumeUSD
	})

	if len(markets) > limit {
		markets = markets[:limit]
	}

	return markets, nil
}

// FetchAssetIndex maps outcome token IDs to their market IDs for the top
// markets. The live feed subscribes by token ID but aggregation keys by
// market, so the feed needs this index to route events.
func (c *MarketsClient) FetchAssetIndex(ctx context.Context, limit int) (map[string]string, error) {
	url := fmt.Sprintf("%s/markets?active=true&closed=false&order=volumeNum&ascending=false&limit=%d",
		c.baseURL, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", store.ErrSourceUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", store.ErrSourceUnavailable, resp.StatusCode)
	}

	var raw []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", store.ErrSourceUnavailable, err)
	}

	index := make(map[string]string)
	for _, m := range raw {
		if m.ID == "" || m.ClobTokenIDs == "" {
			continue
		}

		var tokenIDs []string
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
			continue
		}
		for _, id := range tokenIDs {
			index[id] = m.ID
		}
	}

	return index, nil
}

// marketURL builds the public market page link.
func marketURL(slug string) string {
	if slug == "" {
		return "https://polymarket.com"
	}
	return "https://polymarket.com/market/" + slug
}
