package detector

import (
	"sync"
	"time"

	"github.com/polywatch/engine/internal/store"
)

// Ledger tracks the last alert time per (wallet, market) pair. It lives
// for the process lifetime and is never persisted; a restart starts
// clean. The mutex matters because profile fetches may run concurrently
// with decision checks.
type Ledger struct {
	mu        sync.Mutex
	lastAlert map[store.AlertKey]time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		lastAlert: make(map[store.AlertKey]time.Time),
	}
}

// ShouldAlert reports whether the key may alert at now: either it has
// never alerted, or the cooldown has elapsed since its last alert.
func (l *Ledger) ShouldAlert(key store.AlertKey, now time.Time, cooldown time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, exists := l.lastAlert[key]
	if !exists {
		return true
	}
	return now.Sub(last) >= cooldown
}

// Record marks the key as alerted at now. Only emitted alerts are
// recorded; sub-threshold scores never occupy ledger space.
func (l *Ledger) Record(key store.AlertKey, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAlert[key] = now
}

// Len returns the number of keys currently held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastAlert)
}

// Cleanup drops entries older than maxAge. Should be called periodically
// to keep the ledger bounded on long uptimes.
func (l *Ledger) Cleanup(now time.Time, maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-maxAge)
	for key, last := range l.lastAlert {
		if last.Before(cutoff) {
			delete(l.lastAlert, key)
		}
	}
}
