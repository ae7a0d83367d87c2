package detector

import (
	"errors"
	"testing"
	"time"

	"github.com/polywatch/engine/internal/config"
	"github.com/polywatch/engine/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		MinBetSizeUSD: 5000,
		NewWalletDays: 30,
	}
}

func activityWith(total float64, marketsTouched int, hourUTC int) *store.WalletActivity {
	ts := time.Date(2025, 6, 1, hourUTC, 30, 0, 0, time.UTC)
	return &store.WalletActivity{
		Wallet:   "0xSuspect",
		MarketID: "m1",
		Trades: []store.Trade{
			{MarketID: "m1", Wallet: "0xSuspect", Side: store.SideNo, SizeUSD: total, Timestamp: ts},
		},
		TotalSizeUSD:   total,
		MarketsTouched: marketsTouched,
	}
}

func TestScoreMaximallySuspicious(t *testing.T) {
	// Brand new wallet, >50k position, single market, 03:00 UTC.
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC)

	profile := &store.WalletProfile{Address: "0xSuspect", TotalTrades: 0}
	b, err := s.Score(activityWith(60000, 1, 3), profile, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.Total != 100 {
		t.Fatalf("expected score 100, got %d (%v)", b.Total, b.Components)
	}
	if b.Components[SignalNovelty] != 40 || b.Components[SignalBetSize] != 30 ||
		b.Components[SignalFocus] != 20 || b.Components[SignalTiming] != 10 {
		t.Errorf("unexpected components: %v", b.Components)
	}
	if !b.IsFirstTrade {
		t.Error("expected IsFirstTrade for zero prior trades")
	}
	if b.RecommendedSide != store.SideNo {
		t.Errorf("expected recommended side NO, got %s", b.RecommendedSide)
	}
	if sev, ok := severityFor(b.Total); !ok || sev != store.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", sev)
	}
}

func TestScoreBenignWallet(t *testing.T) {
	// Established wallet, modest size, diversified, daytime: 0+10+0+0.
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	profile := &store.WalletProfile{
		Address:     "0xSuspect",
		TotalTrades: 10,
		FirstSeen:   now.Add(-90 * 24 * time.Hour),
	}
	b, err := s.Score(activityWith(6000, 4, 14), profile, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.Total != 10 {
		t.Fatalf("expected score 10, got %d (%v)", b.Total, b.Components)
	}
	if _, ok := severityFor(b.Total); ok {
		t.Error("expected no severity below MEDIUM floor")
	}
}

func TestScoreTotalEqualsComponentSum(t *testing.T) {
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		trades    int
		ageDays   int
		sizeUSD   float64
		markets   int
		hourUTC   int
		wantTotal int
	}{
		{0, 0, 60000, 1, 3, 100},
		{3, 10, 25000, 2, 23, 25 + 20 + 10 + 10},
		{50, 10, 12000, 1, 12, 20 + 15 + 20 + 0},
		{50, 365, 4000, 5, 12, 0},
		{4, 400, 5000.01, 3, 22, 25 + 10 + 10 + 10},
	}

	for i, tc := range cases {
		profile := &store.WalletProfile{
			Address:     "0xSuspect",
			TotalTrades: tc.trades,
			FirstSeen:   now.Add(-time.Duration(tc.ageDays) * 24 * time.Hour),
		}
		b, err := s.Score(activityWith(tc.sizeUSD, tc.markets, tc.hourUTC), profile, now)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}

		sum := 0
		for _, points := range b.Components {
			sum += points
		}
		if b.Total != sum {
			t.Errorf("case %d: total %d != component sum %d", i, b.Total, sum)
		}
		if b.Total != tc.wantTotal {
			t.Errorf("case %d: expected total %d, got %d (%v)", i, tc.wantTotal, b.Total, b.Components)
		}
		if b.Total > MaxScore {
			t.Errorf("case %d: total %d exceeds cap", i, b.Total)
		}
	}
}

func TestScoreBetSizeBoundaries(t *testing.T) {
	// Breakpoints are strict greater-than.
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	profile := &store.WalletProfile{
		Address:     "0xSuspect",
		TotalTrades: 100,
		FirstSeen:   now.Add(-365 * 24 * time.Hour),
	}

	cases := []struct {
		sizeUSD float64
		want    int
	}{
		{5000, 0},
		{5000.01, 10},
		{10000, 10},
		{10000.01, 15},
		{20000, 15},
		{20000.01, 20},
		{50000, 20},
		{50000.01, 30},
	}

	for _, tc := range cases {
		b, err := s.Score(activityWith(tc.sizeUSD, 10, 12), profile, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := b.Components[SignalBetSize]; got != tc.want {
			t.Errorf("size %v: expected %d points, got %d", tc.sizeUSD, tc.want, got)
		}
	}
}

func TestScoreNoveltyPriorityOrder(t *testing.T) {
	// A wallet that is both young and low-count takes the higher-priority
	// low-count rule, not both.
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	profile := &store.WalletProfile{
		Address:     "0xSuspect",
		TotalTrades: 2,
		FirstSeen:   now.Add(-24 * time.Hour),
	}
	b, err := s.Score(activityWith(100, 10, 12), profile, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Components[SignalNovelty] != 25 {
		t.Errorf("expected 25 novelty points, got %d", b.Components[SignalNovelty])
	}
}

func TestScoreRecommendedSideFollowsLargestTrade(t *testing.T) {
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	profile := &store.WalletProfile{Address: "0xSuspect", TotalTrades: 20,
		FirstSeen: now.Add(-365 * 24 * time.Hour)}

	activity := &store.WalletActivity{
		Wallet:   "0xSuspect",
		MarketID: "m1",
		Trades: []store.Trade{
			{Side: store.SideYes, SizeUSD: 1000, Timestamp: now.Add(-30 * time.Minute)},
			{Side: store.SideNo, SizeUSD: 9000, Timestamp: now.Add(-10 * time.Minute)},
			{Side: store.SideYes, SizeUSD: 2000, Timestamp: now.Add(-5 * time.Minute)},
		},
		TotalSizeUSD:   12000,
		MarketsTouched: 5,
	}

	b, err := s.Score(activity, profile, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.RecommendedSide != store.SideNo {
		t.Errorf("expected NO from the $9000 trade, got %s", b.RecommendedSide)
	}
	if b.LargestTradeUSD != 9000 {
		t.Errorf("expected largest trade 9000, got %v", b.LargestTradeUSD)
	}
	if !b.TradeTimestamp.Equal(now.Add(-10 * time.Minute)) {
		t.Errorf("expected timestamp of largest trade, got %v", b.TradeTimestamp)
	}
}

func TestScoreMissingProfileFails(t *testing.T) {
	s := NewScorer(testConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Score(activityWith(60000, 1, 3), nil, now)
	if !errors.Is(err, store.ErrProfileUnavailable) {
		t.Errorf("expected ErrProfileUnavailable, got %v", err)
	}
}
