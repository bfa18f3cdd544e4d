package reentry

import (
	"sync"
	"time"

	"github.com/dhkwon/talos/internal/contracts"
)

// Tracker is the stateful registry of stopped-out symbols. A symbol
// with a live StopRecord may only be repurchased once its current
// fundamentals score exceeds the configured threshold; records expire
// after the lookback window.
type Tracker struct {
	threshold float64 // re-entry fundamentals threshold
	lookback  int     // days a StopRecord stays live

	mu      sync.RWMutex
	records map[string]contracts.StopRecord
}

// NewTracker creates a Tracker. threshold is the fundamentals score a
// stopped symbol must exceed to become eligible again; lookbackDays is
// how long a StopRecord stays live.
func NewTracker(threshold float64, lookbackDays int) *Tracker {
	return &Tracker{
		threshold: threshold,
		lookback:  lookbackDays,
		records:   make(map[string]contracts.StopRecord),
	}
}

// RecordStop registers a risk-driven exit. A newer stop replaces any
// existing record for the symbol.
func (t *Tracker) RecordStop(symbol string, date time.Time, fundamentals float64, reason contracts.ExitReason) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[symbol] = contracts.StopRecord{
		Symbol:       symbol,
		Date:         date,
		Fundamentals: fundamentals,
		Reason:       reason,
	}
}

// CanRebuy reports whether the symbol may be bought as of asOf.
// Symbols with no record, or whose record has expired, are always
// eligible. A live record requires fundamentals above the threshold.
func (t *Tracker) CanRebuy(symbol string, fundamentals float64, asOf time.Time) bool {
	t.mu.RLock()
	rec, exists := t.records[symbol]
	t.mu.RUnlock()

	if !exists {
		return true
	}
	if t.expired(rec, asOf) {
		return true
	}
	return fundamentals > t.threshold
}

// Active returns the live (non-expired) records as of asOf.
func (t *Tracker) Active(asOf time.Time) []contracts.StopRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]contracts.StopRecord, 0, len(t.records))
	for _, rec := range t.records {
		if !t.expired(rec, asOf) {
			out = append(out, rec)
		}
	}
	return out
}

// Prune drops expired records. The orchestrator calls this once per
// rebalance date to keep the registry bounded on long runs.
func (t *Tracker) Prune(asOf time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for symbol, rec := range t.records {
		if t.expired(rec, asOf) {
			delete(t.records, symbol)
		}
	}
}

func (t *Tracker) expired(rec contracts.StopRecord, asOf time.Time) bool {
	return asOf.After(rec.Date.AddDate(0, 0, t.lookback))
}
