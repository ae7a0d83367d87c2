package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// Embed colors per severity (Discord decimal RGB).
const (
	colorCritical = 0xE74C3C // red
	colorHigh     = 0xE67E22 // orange
	colorMedium   = 0xF1C40F // yellow
)

// discordEmbed is the webhook embed payload.
type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordSink posts alerts as webhook embeds.
type DiscordSink struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSink creates a Discord webhook sink.
func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Sink.
func (s *DiscordSink) Name() string { return "discord" }

// Send implements Sink.
func (s *DiscordSink) Send(ctx context.Context, event store.AlertEvent) error {
	payload := discordPayload{Embeds: []discordEmbed{s.buildEmbed(event)}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// buildEmbed renders an alert as a Discord embed.
func (s *DiscordSink) buildEmbed(event store.AlertEvent) discordEmbed {
	question := event.Market.Question
	if len(question) > 60 {
		question = question[:57] + "..."
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("🚨 INSIDER SUSPECT — %d%% %s", event.Score, event.Severity),
		Description: fmt.Sprintf("**%s**\n→ %s", question, event.RecommendedSide),
		URL:         event.Market.URL,
		Color:       severityColor(event.Severity),
		Timestamp:   event.EmittedAt.UTC().Format(time.RFC3339),
	}

	embed.Fields = append(embed.Fields,
		discordField{Name: "💰 Position", Value: fmt.Sprintf("$%.0f", event.SizeUSD), Inline: true},
		discordField{Name: "📈 Largest Trade", Value: fmt.Sprintf("$%.0f", event.LargestTradeUSD), Inline: true},
		discordField{Name: "👤 Wallet", Value: fmt.Sprintf("`%s`", truncateWallet(event.Wallet)), Inline: true},
	)

	if event.IsFirstTrade {
		embed.Fields = append(embed.Fields,
			discordField{Name: "🆕 First Trade", Value: "Account created by this trade", Inline: false})
	}

	if len(event.Reasons) > 0 {
		var sb strings.Builder
		for _, reason := range event.Reasons {
			sb.WriteString("• ")
			sb.WriteString(reason)
			sb.WriteString("\n")
		}
		embed.Fields = append(embed.Fields,
			discordField{Name: "🔍 Signals", Value: strings.TrimRight(sb.String(), "\n"), Inline: false})
	}

	return embed
}

// severityColor maps a severity to its embed color.
func severityColor(severity store.Severity) int {
	switch severity {
	case store.SeverityCritical:
		return colorCritical
	case store.SeverityHigh:
		return colorHigh
	default:
		return colorMedium
	}
}
