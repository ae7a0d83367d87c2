package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/polywatch/engine/internal/store"
	"github.com/shopspring/decimal"
)

// dataAPITrade is the Data-API trade payload. Sizes and prices arrive as
// loosely typed values; usdcSize is often absent.
type dataAPITrade struct {
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"`
	Outcome         string          `json:"outcome"`
	ConditionID     string          `json:"conditionId"`
	Size            json.RawMessage `json:"size"`
	Price           json.RawMessage `json:"price"`
	USDCSize        json.RawMessage `json:"usdcSize"`
	Timestamp       int64           `json:"timestamp"`
	TransactionHash string          `json:"transactionHash"`
}

// TradesClient fetches recent trades for one market from the Data-API.
type TradesClient struct {
	baseURL string
	client  *http.Client
}

// NewTradesClient creates a trades client with a bounded request timeout.
func NewTradesClient(baseURL string, timeout time.Duration) *TradesClient {
	return &TradesClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchRecentTrades returns up to limit recent trades for the market,
// newest first as the API serves them. Records missing required fields
// are dropped and counted in the second return value, never silently.
// Failures wrap ErrTradeFetchFailed so the pipeline can skip the market
// and continue the cycle.
func (c *TradesClient) FetchRecentTrades(ctx context.Context, marketID string, limit int) ([]store.Trade, int, error) {
	url := fmt.Sprintf("%s/trades?market=%s&limit=%d", c.baseURL, marketID, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: create request: %v", store.ErrTradeFetchFailed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: market %s: %v", store.ErrTradeFetchFailed, marketID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: market %s: status %d", store.ErrTradeFetchFailed, marketID, resp.StatusCode)
	}

	var raw []dataAPITrade
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("%w: market %s: decode: %v", store.ErrTradeFetchFailed, marketID, err)
	}

	trades := make([]store.Trade, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		trade, err := convertTrade(marketID, r)
		if err != nil {
			dropped++
			continue
		}
		trades = append(trades, trade)
	}

	return trades, dropped, nil
}

// convertTrade maps a Data-API record to the domain trade. The USD value
// prefers the explicit usdcSize field; otherwise it is size*price, since
// shares on a binary market cost size*price USDC.
func convertTrade(marketID string, r dataAPITrade) (store.Trade, error) {
	if r.ProxyWallet == "" || r.Timestamp <= 0 {
		return store.Trade{}, store.ErrMalformedRecord
	}

	// The feed mixes in non-trade operations (splits, merges); only
	// BUY/SELL records describe a fill.
	switch strings.ToUpper(r.Side) {
	case "", "BUY", "SELL":
	default:
		return store.Trade{}, store.ErrMalformedRecord
	}

	side, err := parseSide(r.Outcome)
	if err != nil {
		return store.Trade{}, err
	}

	sizeUSD := tradeValueUSD(r)
	if sizeUSD.IsZero() || sizeUSD.IsNegative() {
		return store.Trade{}, store.ErrMalformedRecord
	}

	value, _ := sizeUSD.Float64()

	return store.Trade{
		ID:        tradeID(r),
		MarketID:  marketID,
		Wallet:    r.ProxyWallet,
		Side:      side,
		SizeUSD:   value,
		Timestamp: parseTimestamp(r.Timestamp),
	}, nil
}

// tradeValueUSD computes a trade's USDC value with decimal precision
// before the float64 handoff to scoring.
func tradeValueUSD(r dataAPITrade) decimal.Decimal {
	if usdc, err := decimalField(r.USDCSize); err == nil && usdc.IsPositive() {
		return usdc
	}

	size, err := decimalField(r.Size)
	if err != nil {
		return decimal.Zero
	}
	price, err := decimalField(r.Price)
	if err != nil {
		return decimal.Zero
	}

	return size.Mul(price)
}

// decimalField parses a JSON value that may arrive as a number or a
// quoted string.
func decimalField(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, store.ErrMalformedRecord
	}
	return decimal.NewFromString(s)
}

// parseSide maps the outcome field to a trade side.
func parseSide(outcome string) (store.Side, error) {
	switch strings.ToUpper(outcome) {
	case "YES":
		return store.SideYes, nil
	case "NO":
		return store.SideNo, nil
	default:
		return "", store.ErrMalformedRecord
	}
}

// parseTimestamp handles both second and millisecond epoch values.
func parseTimestamp(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// tradeID builds a stable dedup key for a trade record.
func tradeID(r dataAPITrade) string {
	if r.TransactionHash != "" {
		return r.TransactionHash
	}
	return fmt.Sprintf("%s-%s-%d", r.ConditionID, r.ProxyWallet, r.Timestamp)
}
