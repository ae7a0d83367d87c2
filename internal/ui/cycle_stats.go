package ui

import (
	"fmt"
	"time"

	"github.com/polywatch/engine/internal/metrics"
	"github.com/polywatch/engine/internal/store"
	"github.com/rivo/tview"
)

// CycleStatsView shows pipeline health and cycle counters.
type CycleStatsView struct {
	textView *tview.TextView
}

// NewCycleStatsView creates the stats panel.
func NewCycleStatsView() *CycleStatsView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Cycle Stats ").SetBorder(true)

	return &CycleStatsView{textView: textView}
}

// Widget returns the tview primitive.
func (v *CycleStatsView) Widget() tview.Primitive {
	return v.textView
}

// Update redraws the stats from a snapshot.
func (v *CycleStatsView) Update(snapshot metrics.Snapshot) {
	v.textView.Clear()

	lastCycle := "never"
	if !snapshot.LastCycleAt.IsZero() {
		lastCycle = fmt.Sprintf("%s (%s)",
			formatTimeAgo(snapshot.LastCycleAt), snapshot.LastCycleDuration.Round(time.Millisecond))
	}

	text := fmt.Sprintf(`[yellow]Engine[-]
Uptime: %s
Last Cycle: %s
Cycles: %d (%d aborted)

[yellow]Scan[-]
Markets: %d scanned, %d skipped
Trades: %d (%d malformed dropped)
Wallets Scored: %d
Profile Failures: %d

[yellow]Alerts[-]
Total: %d
Critical: %d  High: %d  Medium: %d
Ledger Keys: %d
Sink Failures: %d
`,
		formatDuration(snapshot.Uptime),
		lastCycle,
		snapshot.CyclesRun, snapshot.CyclesAborted,
		snapshot.MarketsScanned, snapshot.MarketsSkipped,
		snapshot.TradesSeen, snapshot.MalformedDropped,
		snapshot.WalletsScored,
		snapshot.ProfileFailures,
		snapshot.AlertsTotal,
		snapshot.AlertsBySeverity[store.SeverityCritical],
		snapshot.AlertsBySeverity[store.SeverityHigh],
		snapshot.AlertsBySeverity[store.SeverityMedium],
		snapshot.LedgerSize,
		snapshot.SinkFailures,
	)

	fmt.Fprint(v.textView, text)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)
	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	return fmt.Sprintf("%.0fh ago", elapsed.Hours())
}
