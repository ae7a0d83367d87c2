// Package detector contains the analysis core: per-wallet trade
// aggregation, insider scoring, and the alert decision engine.
package detector

import (
	"sort"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// Aggregate groups one market's trades by wallet within the trailing
// window. Trades older than windowStart are discarded. Input order is
// arbitrary; output trade sequences are time-ascending.
//
// MarketsTouched is NOT set here. A single call sees one market, so the
// cross-scan merge (MergeScan) owns that count.
func Aggregate(marketID string, trades []store.Trade, windowStart time.Time) map[string]*store.WalletActivity {
	byWallet := make(map[string]*store.WalletActivity)

	for _, trade := range trades {
		if trade.Timestamp.Before(windowStart) {
			continue
		}
		if trade.Wallet == "" {
			continue
		}

		activity, exists := byWallet[trade.Wallet]
		if !exists {
			activity = &store.WalletActivity{
				Wallet:   trade.Wallet,
				MarketID: marketID,
			}
			byWallet[trade.Wallet] = activity
		}

		activity.Trades = append(activity.Trades, trade)
		activity.TotalSizeUSD += trade.SizeUSD
	}

	for _, activity := range byWallet {
		sort.Slice(activity.Trades, func(i, j int) bool {
			return activity.Trades[i].Timestamp.Before(activity.Trades[j].Timestamp)
		})
	}

	return byWallet
}

// MergeScan flattens per-market aggregation results into one activity per
// (wallet, market) pair and fills in MarketsTouched: the number of
// distinct scanned markets each wallet traded this window. The count is
// scan-scoped on purpose; activity outside the scanned markets is not
// visible here.
func MergeScan(perMarket []map[string]*store.WalletActivity) []*store.WalletActivity {
	marketsByWallet := make(map[string]map[string]struct{})

	var merged []*store.WalletActivity
	for _, byWallet := range perMarket {
		for wallet, activity := range byWallet {
			if len(activity.Trades) == 0 {
				continue
			}

			touched, exists := marketsByWallet[wallet]
			if !exists {
				touched = make(map[string]struct{})
				marketsByWallet[wallet] = touched
			}
			touched[activity.MarketID] = struct{}{}

			merged = append(merged, activity)
		}
	}

	for _, activity := range merged {
		activity.MarketsTouched = len(marketsByWallet[activity.Wallet])
	}

	// Deterministic output order for stable downstream iteration.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Wallet != merged[j].Wallet {
			return merged[i].Wallet < merged[j].Wallet
		}
		return merged[i].MarketID < merged[j].MarketID
	})

	return merged
}
