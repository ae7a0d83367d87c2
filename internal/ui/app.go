// Package ui provides the optional terminal dashboard.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/polywatch/engine/internal/metrics"
	"github.com/polywatch/engine/internal/store"
	"github.com/rivo/tview"
)

// App is the dashboard application: alert feed on top, cycle stats and
// scanned markets below.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	alertFeed  *AlertFeedView
	cycleStats *CycleStatsView
	markets    *MarketListView

	alertChan <-chan store.AlertEvent
	tracker   *metrics.Tracker
	refresh   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the dashboard over the alert feed channel and tracker.
func NewApp(alertChan <-chan store.AlertEvent, tracker *metrics.Tracker, refresh time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:        tview.NewApplication(),
		alertFeed:  NewAlertFeedView(),
		cycleStats: NewCycleStatsView(),
		markets:    NewMarketListView(),
		alertChan:  alertChan,
		tracker:    tracker,
		refresh:    refresh,
		ctx:        ctx,
		cancel:     cancel,
	}

	a.setupLayout()
	a.setupKeyboard()

	return a
}

// setupLayout arranges the panels: alerts on top, stats and markets side
// by side below.
func (a *App) setupLayout() {
	bottomRow := tview.NewFlex().
		AddItem(a.cycleStats.Widget(), 0, 1, false).
		AddItem(a.markets.Widget(), 0, 2, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.alertFeed.Widget(), 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			}
		}
		return event
	})
}

// Run starts the dashboard (blocking).
func (a *App) Run() error {
	go a.processAlerts()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop tears the dashboard down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// processAlerts feeds incoming alerts into the feed panel.
func (a *App) processAlerts() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.alertChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.alertFeed.AddAlert(event)
			})
		}
	}
}

// updateLoop refreshes the stats panels on the configured interval.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.tracker.Snapshot()
			a.app.QueueUpdateDraw(func() {
				a.cycleStats.Update(snapshot)
				a.markets.Update(snapshot)
			})
		}
	}
}
