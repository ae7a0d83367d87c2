package detector

import (
	"fmt"
	"time"

	"github.com/polywatch/engine/internal/config"
	"github.com/polywatch/engine/internal/store"
)

// Signal component names, in table order.
const (
	SignalNovelty = "wallet_novelty"
	SignalBetSize = "bet_size"
	SignalFocus   = "focus"
	SignalTiming  = "timing"
)

// MaxScore caps the total. The component maxima sum to exactly 100, so
// the cap is an invariant guard rather than behavior.
const MaxScore = 100

// deadHours are the UTC hours considered off-hours trading (22:00-06:00).
var deadHours = map[int]bool{
	0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 22: true, 23: true,
}

// noveltyRule is one row of the wallet-novelty table. Rules are evaluated
// in order; the first match wins.
type noveltyRule struct {
	match  func(p *store.WalletProfile, now time.Time) bool
	points int
	reason func(p *store.WalletProfile) string
}

// sizeTier is one row of the bet-size table. The comparison is a strict
// greater-than, so a trade exactly at a breakpoint falls to the next tier.
type sizeTier struct {
	minExclusiveUSD float64
	points          int
}

// Scorer computes a 0-100 suspicion score for one wallet's activity on
// one market. It is a pure function of its inputs: no I/O, no shared
// state.
type Scorer struct {
	newWalletAge time.Duration
	noveltyRules []noveltyRule
	sizeTiers    []sizeTier
}

// NewScorer builds a scorer from configuration. Bet-size breakpoints are
// derived from MinBetSizeUSD (10x, 4x, 2x, 1x); the default 5000 yields
// the 50000/20000/10000/5000 ladder.
func NewScorer(cfg *config.Config) *Scorer {
	s := &Scorer{
		newWalletAge: time.Duration(cfg.NewWalletDays) * 24 * time.Hour,
	}

	s.noveltyRules = []noveltyRule{
		{
			match:  func(p *store.WalletProfile, _ time.Time) bool { return p.TotalTrades == 0 },
			points: 40,
			reason: func(_ *store.WalletProfile) string {
				return "brand new wallet: no prior trades on record"
			},
		},
		{
			match:  func(p *store.WalletProfile, _ time.Time) bool { return p.TotalTrades < 5 },
			points: 25,
			reason: func(p *store.WalletProfile) string {
				return fmt.Sprintf("nearly new wallet: only %d prior trades", p.TotalTrades)
			},
		},
		{
			match: func(p *store.WalletProfile, now time.Time) bool {
				return !p.FirstSeen.IsZero() && now.Sub(p.FirstSeen) < s.newWalletAge
			},
			points: 20,
			reason: func(p *store.WalletProfile) string {
				return fmt.Sprintf("young wallet: first seen %s", p.FirstSeen.UTC().Format("2006-01-02"))
			},
		},
	}

	min := cfg.MinBetSizeUSD
	s.sizeTiers = []sizeTier{
		{minExclusiveUSD: 10 * min, points: 30},
		{minExclusiveUSD: 4 * min, points: 20},
		{minExclusiveUSD: 2 * min, points: 15},
		{minExclusiveUSD: min, points: 10},
	}

	return s
}

// Score evaluates one wallet's aggregated activity against its profile.
// now is the cycle start time, passed in so scoring stays deterministic.
// A nil profile fails with ErrProfileUnavailable: an unknown wallet must
// be skipped, never treated as maximally novel.
func (s *Scorer) Score(activity *store.WalletActivity, profile *store.WalletProfile, now time.Time) (store.ScoreBreakdown, error) {
	if profile == nil {
		return store.ScoreBreakdown{}, fmt.Errorf("scoring %s on %s: %w",
			activity.Wallet, activity.MarketID, store.ErrProfileUnavailable)
	}

	breakdown := store.ScoreBreakdown{
		Wallet:       activity.Wallet,
		MarketID:     activity.MarketID,
		Components:   make(map[string]int, 4),
		TotalSizeUSD: activity.TotalSizeUSD,
		IsFirstTrade: profile.TotalTrades == 0,
	}

	// Wallet novelty: first matching rule wins.
	noveltyPoints := 0
	for _, rule := range s.noveltyRules {
		if rule.match(profile, now) {
			noveltyPoints = rule.points
			breakdown.Reasons = append(breakdown.Reasons, rule.reason(profile))
			break
		}
	}
	breakdown.Components[SignalNovelty] = noveltyPoints

	// Bet size: strict greater-than per tier.
	sizePoints := 0
	for _, tier := range s.sizeTiers {
		if activity.TotalSizeUSD > tier.minExclusiveUSD {
			sizePoints = tier.points
			breakdown.Reasons = append(breakdown.Reasons,
				fmt.Sprintf("large position: $%.0f traded in window", activity.TotalSizeUSD))
			break
		}
	}
	breakdown.Components[SignalBetSize] = sizePoints

	// Focus: distinct markets touched across the whole scan.
	focusPoints := 0
	switch {
	case activity.MarketsTouched == 1:
		focusPoints = 20
		breakdown.Reasons = append(breakdown.Reasons, "focused on a single market this scan")
	case activity.MarketsTouched <= 3:
		focusPoints = 10
		breakdown.Reasons = append(breakdown.Reasons,
			fmt.Sprintf("narrow focus: %d markets this scan", activity.MarketsTouched))
	}
	breakdown.Components[SignalFocus] = focusPoints

	// Timing: any trade landing in the UTC dead hours.
	timingPoints := 0
	for _, trade := range activity.Trades {
		if deadHours[trade.Timestamp.UTC().Hour()] {
			timingPoints = 10
			breakdown.Reasons = append(breakdown.Reasons,
				fmt.Sprintf("off-hours trade at %02d:00 UTC", trade.Timestamp.UTC().Hour()))
			break
		}
	}
	breakdown.Components[SignalTiming] = timingPoints

	total := noveltyPoints + sizePoints + focusPoints + timingPoints
	if total > MaxScore {
		total = MaxScore
	}
	breakdown.Total = total

	// Recommended side follows the largest trade on this market.
	var largest store.Trade
	for _, trade := range activity.Trades {
		if trade.SizeUSD > largest.SizeUSD {
			largest = trade
		}
	}
	breakdown.RecommendedSide = largest.Side
	breakdown.LargestTradeUSD = largest.SizeUSD
	breakdown.TradeTimestamp = largest.Timestamp

	return breakdown, nil
}
