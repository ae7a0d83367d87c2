// Package pipeline orchestrates one polling cycle: fetch markets, fetch
// trades, aggregate, score, decide, emit.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polywatch/engine/internal/config"
	"github.com/polywatch/engine/internal/detector"
	"github.com/polywatch/engine/internal/metrics"
	"github.com/polywatch/engine/internal/store"
)

// MarketSource supplies the ranked market list.
type MarketSource interface {
	FetchTopMarkets(ctx context.Context, limit int) ([]store.Market, error)
}

// TradeSource supplies recent trades for one market. The int return is
// the count of malformed records the source dropped.
type TradeSource interface {
	FetchRecentTrades(ctx context.Context, marketID string, limit int) ([]store.Trade, int, error)
}

// ProfileSource supplies a wallet's history snapshot.
type ProfileSource interface {
	FetchProfile(ctx context.Context, address string) (*store.WalletProfile, error)
}

// LiveSource supplies buffered live trades for a market. Optional.
type LiveSource interface {
	Recent(marketID string, since time.Time) []store.Trade
}

// Publisher receives the cycle's emitted alerts.
type Publisher interface {
	Publish(ctx context.Context, events []store.AlertEvent)
}

// Pipeline runs polling cycles. A cycle is strictly sequential with the
// previous one; only the fetch fan-out inside a cycle is concurrent.
type Pipeline struct {
	cfg       *config.Config
	markets   MarketSource
	trades    TradeSource
	profiles  ProfileSource
	live      LiveSource // nil when the live feed is disabled
	scorer    *detector.Scorer
	engine    *detector.DecisionEngine
	ledger    *detector.Ledger
	tracker   *metrics.Tracker
	publisher Publisher

	running atomic.Bool
}

// New wires a pipeline. live may be nil.
func New(cfg *config.Config, markets MarketSource, trades TradeSource, profiles ProfileSource,
	live LiveSource, scorer *detector.Scorer, engine *detector.DecisionEngine,
	ledger *detector.Ledger, tracker *metrics.Tracker, publisher Publisher) *Pipeline {

	return &Pipeline{
		cfg:       cfg,
		markets:   markets,
		trades:    trades,
		profiles:  profiles,
		live:      live,
		scorer:    scorer,
		engine:    engine,
		ledger:    ledger,
		tracker:   tracker,
		publisher: publisher,
	}
}

// RunCycle executes exactly one cycle. It refuses to overlap a running
// cycle, aborts on market-list failure, and tolerates per-market and
// per-wallet failures. A cancelled context discards the cycle's partial
// state; nothing carries over except the ledger.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return store.ErrCycleRunning
	}
	defer p.running.Store(false)

	cycleStart := time.Now().UTC()
	windowStart := cycleStart.Add(-p.cfg.WindowDuration)

	markets, err := p.fetchMarkets(ctx)
	if err != nil {
		p.tracker.CycleFinished(true, time.Since(cycleStart), 0)
		return err
	}

	slog.Info("cycle_started", "markets", len(markets), "window_start", windowStart)
	p.tracker.SetTopMarkets(markets)

	perMarket := p.fetchAndAggregate(ctx, markets, windowStart)
	if ctx.Err() != nil {
		p.tracker.CycleFinished(true, time.Since(cycleStart), 0)
		return ctx.Err()
	}

	activities := detector.MergeScan(perMarket)
	profiles := p.fetchProfiles(ctx, activities)
	if ctx.Err() != nil {
		p.tracker.CycleFinished(true, time.Since(cycleStart), 0)
		return ctx.Err()
	}

	breakdowns := p.score(activities, profiles, cycleStart)

	marketIndex := make(map[string]store.Market, len(markets))
	for _, market := range markets {
		marketIndex[market.ID] = market
	}

	events := p.engine.Decide(breakdowns, marketIndex, cycleStart)
	for _, event := range events {
		p.tracker.AlertEmitted(event.Severity)
	}
	p.tracker.SetLedgerSize(p.ledger.Len())

	if len(events) > 0 {
		p.publisher.Publish(ctx, events)
	}

	p.tracker.CycleFinished(false, time.Since(cycleStart), len(events))
	slog.Info("cycle_finished",
		"duration", time.Since(cycleStart),
		"wallets_scored", len(breakdowns),
		"alerts", len(events),
	)

	return nil
}

// fetchMarkets pulls the top-N market list. Failure here aborts the
// cycle; the next tick retries from scratch.
func (p *Pipeline) fetchMarkets(ctx context.Context) ([]store.Market, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	markets, err := p.markets.FetchTopMarkets(fetchCtx, p.cfg.MarketLimit)
	if err != nil {
		slog.Error("market_list_fetch_failed", "error", err)
		return nil, fmt.Errorf("cycle aborted: %w", err)
	}
	return markets, nil
}

// fetchAndAggregate fans out per-market trade fetches over a bounded
// worker pool and aggregates each market's window. A failed market is
// skipped and counted, not fatal.
func (p *Pipeline) fetchAndAggregate(ctx context.Context, markets []store.Market, windowStart time.Time) []map[string]*store.WalletActivity {
	var (
		mu        sync.Mutex
		perMarket []map[string]*store.WalletActivity
		wg        sync.WaitGroup
	)

	sem := make(chan struct{}, p.cfg.FetchConcurrency)

	for _, market := range markets {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(market store.Market) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
			defer cancel()

			trades, dropped, err := p.trades.FetchRecentTrades(fetchCtx, market.ID, p.cfg.TradeLimit)
			if err != nil {
				p.tracker.MarketSkipped()
				slog.Warn("market_skipped", "market", market.ID, "error", err)
				return
			}

			if dropped > 0 {
				p.tracker.AddMalformed(dropped)
				slog.Warn("malformed_trades_dropped", "market", market.ID, "count", dropped)
			}

			if p.live != nil {
				trades = mergeLive(trades, p.live.Recent(market.ID, windowStart))
			}

			p.tracker.MarketScanned()
			p.tracker.AddTrades(len(trades))

			byWallet := detector.Aggregate(market.ID, trades, windowStart)
			if len(byWallet) == 0 {
				return
			}

			mu.Lock()
			perMarket = append(perMarket, byWallet)
			mu.Unlock()
		}(market)
	}

	wg.Wait()
	return perMarket
}

// fetchProfiles pulls one profile per distinct wallet over the bounded
// pool. A failed lookup leaves a nil entry; scoring skips that wallet.
func (p *Pipeline) fetchProfiles(ctx context.Context, activities []*store.WalletActivity) map[string]*store.WalletProfile {
	wallets := make(map[string]struct{})
	for _, activity := range activities {
		wallets[activity.Wallet] = struct{}{}
	}

	var (
		mu       sync.Mutex
		profiles = make(map[string]*store.WalletProfile, len(wallets))
		wg       sync.WaitGroup
	)

	sem := make(chan struct{}, p.cfg.FetchConcurrency)

	for wallet := range wallets {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(wallet string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
			defer cancel()

			profile, err := p.profiles.FetchProfile(fetchCtx, wallet)
			if err != nil {
				p.tracker.ProfileFailure()
				slog.Warn("profile_skipped", "wallet", wallet, "error", err)
				return
			}

			mu.Lock()
			profiles[wallet] = profile
			mu.Unlock()
		}(wallet)
	}

	wg.Wait()
	return profiles
}

// score runs the scorer over every activity with a resolved profile.
// Scoring itself is single-threaded; it is pure computation.
func (p *Pipeline) score(activities []*store.WalletActivity, profiles map[string]*store.WalletProfile, cycleStart time.Time) []store.ScoreBreakdown {
	breakdowns := make([]store.ScoreBreakdown, 0, len(activities))

	for _, activity := range activities {
		profile := profiles[activity.Wallet]
		if profile == nil {
			// Already counted by fetchProfiles; nothing to score.
			continue
		}

		breakdown, err := p.scorer.Score(activity, profile, cycleStart)
		if err != nil {
			p.tracker.ProfileFailure()
			slog.Warn("scoring_skipped", "wallet", activity.Wallet, "market", activity.MarketID, "error", err)
			continue
		}

		p.tracker.WalletScored()
		breakdowns = append(breakdowns, breakdown)
	}

	return breakdowns
}

// mergeLive merges buffered live trades into the REST result, preferring
// the REST record when both describe the same fill. Record IDs differ
// between the two channels, so dedup keys on the fill itself.
func mergeLive(trades, live []store.Trade) []store.Trade {
	if len(live) == 0 {
		return trades
	}

	seen := make(map[string]struct{}, len(trades))
	for _, trade := range trades {
		seen[fillKey(trade)] = struct{}{}
	}

	for _, trade := range live {
		if _, dup := seen[fillKey(trade)]; dup {
			continue
		}
		trades = append(trades, trade)
	}

	return trades
}

// fillKey identifies a fill independently of which channel observed it.
// Timestamps are second-truncated; the live feed reports milliseconds.
func fillKey(trade store.Trade) string {
	return fmt.Sprintf("%s|%s|%s|%.2f|%d",
		trade.Wallet, trade.MarketID, trade.Side, trade.SizeUSD, trade.Timestamp.Unix())
}
