package ingest

import (
	"sync"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// TradeBuffer holds a rolling window of live trades per market. The
// pipeline merges these with REST results at cycle time, so the buffer
// only needs to cover one window plus slack.
type TradeBuffer struct {
	mu       sync.Mutex
	byMarket map[string][]store.Trade
	keep     time.Duration
}

// NewTradeBuffer creates a buffer retaining trades for keep.
func NewTradeBuffer(keep time.Duration) *TradeBuffer {
	return &TradeBuffer{
		byMarket: make(map[string][]store.Trade),
		keep:     keep,
	}
}

// Add appends a trade and prunes that market's slice past the retention
// horizon. Live trades can arrive out of chronological order, so pruning
// checks every entry rather than trimming a sorted prefix.
func (b *TradeBuffer) Add(trade store.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trades := append(b.byMarket[trade.MarketID], trade)

	cutoff := time.Now().Add(-b.keep)
	kept := trades[:0]
	for _, t := range trades {
		if !t.Timestamp.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	b.byMarket[trade.MarketID] = kept
}

// Recent returns a copy of the market's buffered trades at or after since.
func (b *TradeBuffer) Recent(marketID string, since time.Time) []store.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	var recent []store.Trade
	for _, trade := range b.byMarket[marketID] {
		if !trade.Timestamp.Before(since) {
			recent = append(recent, trade)
		}
	}
	return recent
}

// Cleanup drops markets whose newest buffered trade is past retention.
func (b *TradeBuffer) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-b.keep)
	for marketID, trades := range b.byMarket {
		if len(trades) == 0 || trades[len(trades)-1].Timestamp.Before(cutoff) {
			delete(b.byMarket, marketID)
		}
	}
}
