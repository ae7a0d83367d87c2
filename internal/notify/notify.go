// Package notify delivers alert events to the configured sinks: the log,
// a Discord webhook, a Redis channel, and the TUI feed.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/polywatch/engine/internal/metrics"
	"github.com/polywatch/engine/internal/store"
)

// Sink delivers one alert event somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, event store.AlertEvent) error
}

// Fanout delivers each event to every sink. A failing sink is logged and
// counted but never fails the cycle or blocks the other sinks.
type Fanout struct {
	sinks   []Sink
	tracker *metrics.Tracker
}

// NewFanout creates a fan-out over the given sinks.
func NewFanout(tracker *metrics.Tracker, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, tracker: tracker}
}

// Publish delivers all events to all sinks.
func (f *Fanout) Publish(ctx context.Context, events []store.AlertEvent) {
	for _, event := range events {
		for _, sink := range f.sinks {
			if err := sink.Send(ctx, event); err != nil {
				f.tracker.SinkFailure()
				slog.Warn("alert_sink_failed",
					"sink", sink.Name(),
					"alert_id", event.ID,
					"error", err,
				)
			}
		}
	}
}

// LogSink writes every alert to the structured log. It is always wired,
// so an alert is observable even with no external sink configured.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Send implements Sink.
func (LogSink) Send(_ context.Context, event store.AlertEvent) error {
	slog.Info("insider_alert",
		"severity", event.Severity,
		"score", event.Score,
		"market", event.Market.Question,
		"wallet", truncateWallet(event.Wallet),
		"side", event.RecommendedSide,
		"size_usd", event.SizeUSD,
		"first_trade", event.IsFirstTrade,
		"reasons", strings.Join(event.Reasons, "; "),
	)
	return nil
}

// ChannelSink feeds alerts into a channel, used to drive the TUI alert
// panel. Sends never block; a full channel drops the event for display
// purposes only.
type ChannelSink struct {
	ch chan<- store.AlertEvent
}

// NewChannelSink creates a channel sink.
func NewChannelSink(ch chan<- store.AlertEvent) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// Name implements Sink.
func (s *ChannelSink) Name() string { return "channel" }

// Send implements Sink.
func (s *ChannelSink) Send(_ context.Context, event store.AlertEvent) error {
	select {
	case s.ch <- event:
	default:
		slog.Warn("alert_channel_full", "alert_id", event.ID)
	}
	return nil
}

// truncateWallet shortens an address for logging.
func truncateWallet(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
