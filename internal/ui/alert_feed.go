package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/polywatch/engine/internal/store"
	"github.com/rivo/tview"
)

// AlertFeedView shows the most recent alerts, newest first.
type AlertFeedView struct {
	list     *tview.List
	alerts   []store.AlertEvent
	maxItems int
}

// NewAlertFeedView creates the alert feed panel.
func NewAlertFeedView() *AlertFeedView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🚨 Insider Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	return &AlertFeedView{
		list:     list,
		alerts:   make([]store.AlertEvent, 0, 50),
		maxItems: 50,
	}
}

// Widget returns the tview primitive.
func (v *AlertFeedView) Widget() tview.Primitive {
	return v.list
}

// AddAlert prepends an alert and redraws the list.
func (v *AlertFeedView) AddAlert(event store.AlertEvent) {
	v.alerts = append([]store.AlertEvent{event}, v.alerts...)
	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}
	v.rebuildList()
}

// rebuildList redraws the whole feed.
func (v *AlertFeedView) rebuildList() {
	v.list.Clear()

	for _, event := range v.alerts {
		question := event.Market.Question
		if len(question) > 50 {
			question = question[:47] + "..."
		}

		main := fmt.Sprintf("[%s]%s %d%%[-] %s → %s",
			severityTint(event.Severity), event.Severity, event.Score, question, event.RecommendedSide)
		secondary := fmt.Sprintf("   $%.0f | %s | %s",
			event.SizeUSD, shortWallet(event.Wallet), event.EmittedAt.Format("15:04:05"))

		v.list.AddItem(main, secondary, 0, nil)
	}
}

// severityTint maps a severity to a tview color tag.
func severityTint(severity store.Severity) string {
	switch severity {
	case store.SeverityCritical:
		return "red"
	case store.SeverityHigh:
		return "orange"
	default:
		return "yellow"
	}
}

// shortWallet truncates an address for display.
func shortWallet(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
