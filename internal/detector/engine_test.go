package detector

import (
	"testing"
	"time"

	"github.com/polywatch/engine/internal/store"
)

func breakdown(wallet, marketID string, total int) store.ScoreBreakdown {
	return store.ScoreBreakdown{
		Wallet:          wallet,
		MarketID:        marketID,
		Total:           total,
		Components:      map[string]int{SignalBetSize: total},
		Reasons:         []string{"test reason"},
		RecommendedSide: store.SideYes,
		TotalSizeUSD:    12000,
	}
}

func TestDecideThresholdAndSeverity(t *testing.T) {
	engine := NewDecisionEngine(50, 5*time.Minute, NewLedger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	markets := map[string]store.Market{"m1": {ID: "m1", Question: "Will it?"}}

	cases := []struct {
		total    int
		emit     bool
		severity store.Severity
	}{
		{100, true, store.SeverityCritical},
		{80, true, store.SeverityCritical},
		{79, true, store.SeverityHigh},
		{65, true, store.SeverityHigh},
		{64, true, store.SeverityMedium},
		{50, true, store.SeverityMedium},
		{49, false, ""},
		{10, false, ""},
	}

	for i, tc := range cases {
		wallet := string(rune('A' + i))
		events := engine.Decide([]store.ScoreBreakdown{breakdown(wallet, "m1", tc.total)}, markets, now)

		if !tc.emit {
			if len(events) != 0 {
				t.Errorf("score %d: expected no event, got %d", tc.total, len(events))
			}
			continue
		}

		if len(events) != 1 {
			t.Fatalf("score %d: expected 1 event, got %d", tc.total, len(events))
		}
		if events[0].Severity != tc.severity {
			t.Errorf("score %d: expected %s, got %s", tc.total, tc.severity, events[0].Severity)
		}
		if events[0].Market.Question != "Will it?" {
			t.Errorf("score %d: market not attached to event", tc.total)
		}
		if events[0].ID == "" {
			t.Errorf("score %d: expected event ID", tc.total)
		}
	}
}

func TestDecideDedupAcrossCycles(t *testing.T) {
	ledger := NewLedger()
	engine := NewDecisionEngine(50, 10*time.Minute, ledger)
	markets := map[string]store.Market{"m1": {ID: "m1"}}
	b := []store.ScoreBreakdown{breakdown("0xA", "m1", 90)}

	cycle1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if events := engine.Decide(b, markets, cycle1); len(events) != 1 {
		t.Fatalf("cycle 1: expected 1 event, got %d", len(events))
	}

	// Next cycle, cooldown not elapsed: same key stays quiet.
	cycle2 := cycle1.Add(5 * time.Minute)
	if events := engine.Decide(b, markets, cycle2); len(events) != 0 {
		t.Errorf("cycle 2: expected dedup, got %d events", len(events))
	}

	// Cooldown elapsed: the key may alert again.
	cycle3 := cycle1.Add(10 * time.Minute)
	if events := engine.Decide(b, markets, cycle3); len(events) != 1 {
		t.Errorf("cycle 3: expected re-alert after cooldown, got %d events", len(events))
	}
}

func TestDecideDedupIsPerKey(t *testing.T) {
	engine := NewDecisionEngine(50, time.Hour, NewLedger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	markets := map[string]store.Market{"m1": {ID: "m1"}, "m2": {ID: "m2"}}

	events := engine.Decide([]store.ScoreBreakdown{
		breakdown("0xA", "m1", 90),
		breakdown("0xA", "m2", 90), // same wallet, different market
		breakdown("0xB", "m1", 90), // different wallet, same market
	}, markets, now)

	if len(events) != 3 {
		t.Errorf("expected 3 events for 3 distinct keys, got %d", len(events))
	}
}

func TestDecideSubThresholdNotRecorded(t *testing.T) {
	ledger := NewLedger()
	engine := NewDecisionEngine(50, time.Hour, ledger)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	markets := map[string]store.Market{"m1": {ID: "m1"}}

	engine.Decide([]store.ScoreBreakdown{breakdown("0xA", "m1", 40)}, markets, now)
	if ledger.Len() != 0 {
		t.Errorf("expected empty ledger after sub-threshold score, got %d entries", ledger.Len())
	}

	// The same key alerts freely once it crosses the threshold.
	events := engine.Decide([]store.ScoreBreakdown{breakdown("0xA", "m1", 60)}, markets, now)
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
	if ledger.Len() != 1 {
		t.Errorf("expected 1 ledger entry after emit, got %d", ledger.Len())
	}
}

func TestLedgerCleanup(t *testing.T) {
	ledger := NewLedger()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ledger.Record(store.AlertKey{Wallet: "0xOld", MarketID: "m1"}, now.Add(-2*time.Hour))
	ledger.Record(store.AlertKey{Wallet: "0xNew", MarketID: "m1"}, now.Add(-time.Minute))

	ledger.Cleanup(now, time.Hour)

	if ledger.Len() != 1 {
		t.Fatalf("expected 1 entry after cleanup, got %d", ledger.Len())
	}
	if ledger.ShouldAlert(store.AlertKey{Wallet: "0xNew", MarketID: "m1"}, now, time.Hour) {
		t.Error("expected recent entry to survive cleanup")
	}
}
