// Package store provides the domain model shared across the engine.
package store

import "time"

// Side is the outcome a trade backs.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Severity is the alert tier derived from a suspicion score.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Market is one prediction question, refreshed every cycle.
type Market struct {
	// ID is the Gamma market/condition ID
	ID string `json:"id"`

	// Question is the market's headline question
	Question string `json:"question"`

	// VolumeUSD is aggregate traded volume, used for top-N ranking
	VolumeUSD float64 `json:"volume_usd"`

	// URL links to the market page
	URL string `json:"url"`
}

// Trade is a single observed wallet trade on one market.
type Trade struct {
	// ID is a unique identifier for this trade record
	ID string

	// MarketID is the market/condition ID the trade executed on
	MarketID string

	// Wallet is the proxy wallet address that originated the trade
	Wallet string

	// Side is the outcome the trade backs (YES or NO)
	Side Side

	// SizeUSD is the USDC value of the trade
	SizeUSD float64

	// Timestamp is the execution time in UTC
	Timestamp time.Time
}

// WalletProfile is a read-only snapshot of a wallet's trading history,
// fetched fresh each cycle.
type WalletProfile struct {
	Address         string
	FirstSeen       time.Time
	TotalTrades     int
	DistinctMarkets int
}

// WalletActivity is one wallet's aggregated trading on one market within
// the trailing window. Trades are kept time-ascending.
type WalletActivity struct {
	Wallet   string
	MarketID string
	Trades   []Trade

	// TotalSizeUSD is the summed trade value within the window
	TotalSizeUSD float64

	// MarketsTouched counts distinct markets the wallet traded across the
	// current scan. Filled in by the cross-market merge, not by per-market
	// aggregation.
	MarketsTouched int
}

// ScoreBreakdown is the scorer's output for one (wallet, market) pair.
// Total is always the exact sum of Components.
type ScoreBreakdown struct {
	Wallet   string
	MarketID string

	Total      int
	Components map[string]int

	// Reasons are human-readable descriptions of the signals that fired,
	// in signal-table order.
	Reasons []string

	RecommendedSide Side
	TotalSizeUSD    float64
	LargestTradeUSD float64
	IsFirstTrade    bool

	// TradeTimestamp is when the largest trade in the window executed.
	TradeTimestamp time.Time
}

// AlertKey identifies a (wallet, market) pair in the dedup ledger.
type AlertKey struct {
	Wallet   string
	MarketID string
}

// AlertEvent is the decision engine's sole output: one triggered alert,
// handed to the notification sinks.
type AlertEvent struct {
	ID              string    `json:"id"`
	Market          Market    `json:"market"`
	Wallet          string    `json:"wallet"`
	Score           int       `json:"score"`
	Severity        Severity  `json:"severity"`
	RecommendedSide Side      `json:"recommended_side"`
	SizeUSD         float64   `json:"size_usd"`
	LargestTradeUSD float64   `json:"largest_trade_usd"`
	IsFirstTrade    bool      `json:"is_first_trade"`
	TradeTimestamp  time.Time `json:"trade_timestamp"`
	Reasons         []string  `json:"reasons"`
	EmittedAt       time.Time `json:"emitted_at"`
}
