// Package metrics provides thread-safe observability counters for the
// polling pipeline. Every skip and drop decision the pipeline makes is
// counted here so silent data loss stays detectable.
package metrics

import (
	"sync"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// Snapshot is a point-in-time view of the tracker, served on /status and
// rendered by the TUI.
type Snapshot struct {
	Uptime time.Duration `json:"uptime"`

	CyclesRun     int64 `json:"cycles_run"`
	CyclesAborted int64 `json:"cycles_aborted"`

	MarketsScanned int64 `json:"markets_scanned"`
	MarketsSkipped int64 `json:"markets_skipped"`

	TradesSeen       int64 `json:"trades_seen"`
	MalformedDropped int64 `json:"malformed_dropped"`

	WalletsScored   int64 `json:"wallets_scored"`
	ProfileFailures int64 `json:"profile_failures"`

	AlertsTotal      int64                    `json:"alerts_total"`
	AlertsBySeverity map[store.Severity]int64 `json:"alerts_by_severity"`
	SinkFailures     int64                    `json:"sink_failures"`

	LedgerSize        int           `json:"ledger_size"`
	LastCycleAt       time.Time     `json:"last_cycle_at"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	LastCycleAlerts   int           `json:"last_cycle_alerts"`

	// TopMarkets is the most recent cycle's scanned market list.
	TopMarkets []store.Market `json:"top_markets"`
}

// Tracker accumulates counters across cycles.
type Tracker struct {
	mu sync.RWMutex

	startTime time.Time

	cyclesRun     int64
	cyclesAborted int64

	marketsScanned int64
	marketsSkipped int64

	tradesSeen       int64
	malformedDropped int64

	walletsScored   int64
	profileFailures int64

	alertsTotal      int64
	alertsBySeverity map[store.Severity]int64
	sinkFailures     int64

	ledgerSize        int
	lastCycleAt       time.Time
	lastCycleDuration time.Duration
	lastCycleAlerts   int

	topMarkets []store.Market
}

// NewTracker creates a tracker with the clock started.
func NewTracker() *Tracker {
	return &Tracker{
		startTime:        time.Now(),
		alertsBySeverity: make(map[store.Severity]int64),
	}
}

// CycleFinished records the outcome of one cycle.
func (t *Tracker) CycleFinished(aborted bool, duration time.Duration, alerts int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cyclesRun++
	if aborted {
		t.cyclesAborted++
	}
	t.lastCycleAt = time.Now()
	t.lastCycleDuration = duration
	t.lastCycleAlerts = alerts
}

// MarketScanned counts a market whose trades were fetched successfully.
func (t *Tracker) MarketScanned() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marketsScanned++
}

// MarketSkipped counts a per-market trade fetch failure.
func (t *Tracker) MarketSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marketsSkipped++
}

// AddTrades counts trades accepted into aggregation.
func (t *Tracker) AddTrades(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tradesSeen += int64(n)
}

// AddMalformed counts dropped records missing required fields.
func (t *Tracker) AddMalformed(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.malformedDropped += int64(n)
}

// WalletScored counts a successfully scored (wallet, market) pair.
func (t *Tracker) WalletScored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.walletsScored++
}

// ProfileFailure counts a wallet skipped because its profile fetch failed.
func (t *Tracker) ProfileFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profileFailures++
}

// AlertEmitted counts an emitted alert by severity.
func (t *Tracker) AlertEmitted(severity store.Severity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alertsTotal++
	t.alertsBySeverity[severity]++
}

// SinkFailure counts a notification sink delivery failure.
func (t *Tracker) SinkFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinkFailures++
}

// SetTopMarkets records the market list of the most recent cycle.
func (t *Tracker) SetTopMarkets(markets []store.Market) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topMarkets = append(t.topMarkets[:0], markets...)
}

// SetLedgerSize records the dedup ledger's current key count.
func (t *Tracker) SetLedgerSize(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledgerSize = n
}

// Snapshot returns a copy of all counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	severityCopy := make(map[store.Severity]int64, len(t.alertsBySeverity))
	for severity, count := range t.alertsBySeverity {
		severityCopy[severity] = count
	}

	marketsCopy := make([]store.Market, len(t.topMarkets))
	copy(marketsCopy, t.topMarkets)

	return Snapshot{
		Uptime:            time.Since(t.startTime),
		CyclesRun:         t.cyclesRun,
		CyclesAborted:     t.cyclesAborted,
		MarketsScanned:    t.marketsScanned,
		MarketsSkipped:    t.marketsSkipped,
		TradesSeen:        t.tradesSeen,
		MalformedDropped:  t.malformedDropped,
		WalletsScored:     t.walletsScored,
		ProfileFailures:   t.profileFailures,
		AlertsTotal:       t.alertsTotal,
		AlertsBySeverity:  severityCopy,
		SinkFailures:      t.sinkFailures,
		LedgerSize:        t.ledgerSize,
		LastCycleAt:       t.lastCycleAt,
		LastCycleDuration: t.lastCycleDuration,
		LastCycleAlerts:   t.lastCycleAlerts,
		TopMarkets:        marketsCopy,
	}
}
