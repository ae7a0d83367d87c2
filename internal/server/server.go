// Package server exposes the engine's operational HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/polywatch/engine/internal/config"
	"github.com/polywatch/engine/internal/metrics"
)

// Server serves /healthz and /status for liveness checks and cycle
// observability.
type Server struct {
	httpServer *http.Server
}

// New builds the ops server on the configured port.
func New(cfg *config.Config, tracker *metrics.Tracker) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/status", handleStatus(cfg, tracker))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.OpsPort),
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) {
	go func() {
		slog.Info("ops_server_started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops_server_failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops_server_shutdown_error", "error", err)
		}
	}()
}

// handleHealth reports process liveness.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the metrics snapshot plus the effective scan
// configuration, secrets masked.
func handleStatus(cfg *config.Config, tracker *metrics.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics": tracker.Snapshot(),
			"config": map[string]any{
				"market_limit":       cfg.MarketLimit,
				"trade_limit":        cfg.TradeLimit,
				"window":             cfg.WindowDuration.String(),
				"cycle_interval":     cfg.CycleInterval.String(),
				"alert_threshold":    cfg.AlertThreshold,
				"alert_cooldown":     cfg.AlertCooldown.String(),
				"min_bet_size_usd":   cfg.MinBetSizeUSD,
				"new_wallet_days":    cfg.NewWalletDays,
				"live_feed":          cfg.EnableLiveFeed,
				"discord_webhook":    cfg.MaskedDiscordWebhook(),
				"redis_alert_stream": cfg.RedisAddr != "",
			},
		})
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("status_encode_failed", "error", err)
	}
}
