package detector

import (
	"time"

	"github.com/google/uuid"
	"github.com/polywatch/engine/internal/store"
)

// DecisionEngine filters scored activity against the alert threshold and
// the dedup ledger, emitting at most one AlertEvent per (wallet, market)
// pair per cooldown interval.
type DecisionEngine struct {
	threshold int
	cooldown  time.Duration
	ledger    *Ledger
}

// NewDecisionEngine creates an engine around an injected ledger. Tests
// substitute a fresh ledger to get deterministic behavior.
func NewDecisionEngine(threshold int, cooldown time.Duration, ledger *Ledger) *DecisionEngine {
	return &DecisionEngine{
		threshold: threshold,
		cooldown:  cooldown,
		ledger:    ledger,
	}
}

// Decide walks the cycle's breakdowns and returns the alerts to emit.
// markets maps market ID to the cycle's market snapshot for event
// enrichment. Ledger mutation is the only side effect.
func (e *DecisionEngine) Decide(breakdowns []store.ScoreBreakdown, markets map[string]store.Market, now time.Time) []store.AlertEvent {
	var events []store.AlertEvent

	for _, b := range breakdowns {
		if b.Total < e.threshold {
			continue
		}

		key := store.AlertKey{Wallet: b.Wallet, MarketID: b.MarketID}
		if !e.ledger.ShouldAlert(key, now, e.cooldown) {
			continue
		}

		severity, ok := severityFor(b.Total)
		if !ok {
			continue
		}

		e.ledger.Record(key, now)

		events = append(events, store.AlertEvent{
			ID:              uuid.NewString(),
			Market:          markets[b.MarketID],
			Wallet:          b.Wallet,
			Score:           b.Total,
			Severity:        severity,
			RecommendedSide: b.RecommendedSide,
			SizeUSD:         b.TotalSizeUSD,
			LargestTradeUSD: b.LargestTradeUSD,
			IsFirstTrade:    b.IsFirstTrade,
			TradeTimestamp:  b.TradeTimestamp,
			Reasons:         b.Reasons,
			EmittedAt:       now,
		})
	}

	return events
}

// severityFor maps a score to its alert tier. Scores below the MEDIUM
// floor produce no event at all.
func severityFor(score int) (store.Severity, bool) {
	switch {
	case score >= 80:
		return store.SeverityCritical, true
	case score >= 65:
		return store.SeverityHigh, true
	case score >= 50:
		return store.SeverityMedium, true
	default:
		return "", false
	}
}
