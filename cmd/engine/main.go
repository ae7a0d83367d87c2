// Package main is the entry point for the Polywatch insider-activity engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/polywatch/engine/internal/config"
	"github.com/polywatch/engine/internal/detector"
	"github.com/polywatch/engine/internal/ingest"
	"github.com/polywatch/engine/internal/metrics"
	"github.com/polywatch/engine/internal/notify"
	"github.com/polywatch/engine/internal/pipeline"
	"github.com/polywatch/engine/internal/server"
	"github.com/polywatch/engine/internal/store"
	"github.com/polywatch/engine/internal/ui"
	"github.com/redis/go-redis/v9"
)

const (
	// AlertChannelBuffer is the size of the TUI alert feed channel
	AlertChannelBuffer = 100
	// LedgerMaxAge bounds dedup ledger retention between cleanups
	LedgerMaxAge = 24 * time.Hour
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("polywatch starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"gamma_api_url", cfg.GammaAPIURL,
		"data_api_url", cfg.DataAPIURL,
		"market_limit", cfg.MarketLimit,
		"trade_limit", cfg.TradeLimit,
		"window", cfg.WindowDuration,
		"cycle_interval", cfg.CycleInterval,
		"alert_threshold", cfg.AlertThreshold,
		"alert_cooldown", cfg.AlertCooldown,
		"min_bet_size_usd", cfg.MinBetSizeUSD,
		"new_wallet_days", cfg.NewWalletDays,
		"fetch_concurrency", cfg.FetchConcurrency,
		"live_feed", cfg.EnableLiveFeed,
		"discord_webhook", cfg.MaskedDiscordWebhook(),
		"redis_addr", cfg.RedisAddr,
		"ops_port", cfg.OpsPort,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Data sources
	marketsClient := ingest.NewMarketsClient(cfg.GammaAPIURL, cfg.FetchTimeout)
	tradesClient := ingest.NewTradesClient(cfg.DataAPIURL, cfg.FetchTimeout)
	profilesClient := ingest.NewProfilesClient(cfg.DataAPIURL, cfg.FetchTimeout)

	// Optional live trade tap
	var live pipeline.LiveSource
	var feed *ingest.LiveFeed
	if cfg.EnableLiveFeed {
		buffer := ingest.NewTradeBuffer(cfg.WindowDuration + cfg.CycleInterval)
		feed = ingest.NewLiveFeed(cfg.PolymarketWSURL, buffer)

		indexCtx, indexCancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		index, err := marketsClient.FetchAssetIndex(indexCtx, cfg.MarketLimit)
		indexCancel()
		if err != nil {
			slog.Warn("asset_index_fetch_failed, live feed starts unsubscribed", "error", err)
		} else {
			feed.SetAssetIndex(index)
		}

		feed.Start(ctx)
		live = buffer
		slog.Info("live_feed_started", "url", cfg.PolymarketWSURL)

		go func() {
			ticker := time.NewTicker(cfg.CycleInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					buffer.Cleanup()
				}
			}
		}()
	}

	// Metrics and core
	tracker := metrics.NewTracker()
	ledger := detector.NewLedger()
	scorer := detector.NewScorer(cfg)
	engine := detector.NewDecisionEngine(cfg.AlertThreshold, cfg.AlertCooldown, ledger)

	// Ledger cleanup keeps long uptimes bounded
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ledger.Cleanup(time.Now().UTC(), LedgerMaxAge)
			}
		}
	}()

	// Notification sinks
	sinks := []notify.Sink{notify.LogSink{}}

	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, notify.NewDiscordSink(cfg.DiscordWebhookURL))
		slog.Info("discord_sink_enabled")
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis_unreachable, sink still wired", "error", err)
		}
		sinks = append(sinks, notify.NewRedisSink(redisClient, cfg.RedisAlertChannel))
		slog.Info("redis_sink_enabled", "channel", cfg.RedisAlertChannel)
	}

	var alertChan chan store.AlertEvent
	if cfg.EnableTUI {
		alertChan = make(chan store.AlertEvent, AlertChannelBuffer)
		sinks = append(sinks, notify.NewChannelSink(alertChan))
	}

	publisher := notify.NewFanout(tracker, sinks...)

	// Pipeline
	pipe := pipeline.New(cfg, marketsClient, tradesClient, profilesClient, live,
		scorer, engine, ledger, tracker, publisher)

	// Ops endpoints
	ops := server.New(cfg, tracker)
	ops.Start(ctx)

	// Cycle loop: immediate first cycle, then fixed interval. Cycles
	// never overlap; the loop is strictly sequential.
	go func() {
		runCycle(ctx, pipe)

		ticker := time.NewTicker(cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCycle(ctx, pipe)
			}
		}
	}()

	slog.Info("engine_started",
		"status", "scanning on interval",
		"interval", cfg.CycleInterval,
	)

	// Run TUI or wait for signal
	if cfg.EnableTUI {
		app := ui.NewApp(alertChan, tracker, cfg.UIRefreshRate)

		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-ctx.Done():
			app.Stop()
		}
	} else {
		sig := <-sigChan
		slog.Info("shutdown_signal_received", "signal", sig.String())
	}

	cancel()

	if feed != nil {
		slog.Info("shutting_down", "status", "stopping live feed")
		feed.Stop()
	}

	slog.Info("shutdown_complete")
}

// runCycle executes one cycle and logs the outcome. All cycle-level
// failures are retried at the next tick, never accumulated.
func runCycle(ctx context.Context, pipe *pipeline.Pipeline) {
	if err := pipe.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("cycle_failed", "error", err)
	}
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
