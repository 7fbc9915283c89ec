package engine

import (
	"fmt"

	"github.com/pithecene-io/assay/types"
)

// windowKey buckets a counter by customer and time key.
type windowKey struct {
	customer string
	key      string
}

// WindowStore holds the mutable velocity counters for one scenario:
// per-customer daily attempts, daily and weekly accepted amounts, and
// the global per-day gate counters.
//
// Missing keys read as zero; commits are additive and non-negative,
// so every counter is monotonically non-decreasing. The store is
// unbounded: no eviction, because any key may be referenced by a
// later event still present in the stream.
//
// The store is not safe for concurrent use. The driver owns it and
// serializes access by seq.
type WindowStore struct {
	dailyAttempts map[windowKey]int64
	dailyAmounts  map[windowKey]types.Money
	weeklyAmounts map[windowKey]types.Money
	// gateAccepts counts accepted events per UTC day per gate name,
	// across all customers.
	gateAccepts map[string]map[string]int64
}

// NewWindowStore creates an empty store.
func NewWindowStore() *WindowStore {
	return &WindowStore{
		dailyAttempts: make(map[windowKey]int64),
		dailyAmounts:  make(map[windowKey]types.Money),
		weeklyAmounts: make(map[windowKey]types.Money),
		gateAccepts:   make(map[string]map[string]int64),
	}
}

// Snapshot reads the counters relevant to one event atomically.
// The returned value is immutable: later commits never alter it.
func (w *WindowStore) Snapshot(customer string, keys types.TimeKeys, gates []Gate) types.WindowSnapshot {
	snap := types.WindowSnapshot{
		DailyAttempts: w.dailyAttempts[windowKey{customer, keys.Day}],
		DailyAmount:   w.dailyAmounts[windowKey{customer, keys.Day}],
		WeeklyAmount:  w.weeklyAmounts[windowKey{customer, keys.Week}],
	}
	if len(gates) > 0 {
		snap.GateAccepts = make(map[string]int64, len(gates))
		day := w.gateAccepts[keys.Day]
		for _, g := range gates {
			snap.GateAccepts[g.Name] = day[g.Name]
		}
	}
	return snap
}

// Commit applies a delta atomically. Deltas are validated
// non-negative; a negative delta is an invariant breach and the
// caller must fail fast.
func (w *WindowStore) Commit(customer string, keys types.TimeKeys, delta CommitDelta) error {
	if delta.Attempts < 0 {
		return fmt.Errorf("negative attempt delta %d for customer %s", delta.Attempts, customer)
	}
	if delta.DailyAmount.Cmp(types.Money{}) < 0 || delta.WeeklyAmount.Cmp(types.Money{}) < 0 {
		return fmt.Errorf("negative amount delta %s/%s for customer %s", delta.DailyAmount, delta.WeeklyAmount, customer)
	}

	w.dailyAttempts[windowKey{customer, keys.Day}] += delta.Attempts
	if !delta.DailyAmount.IsZero() {
		k := windowKey{customer, keys.Day}
		w.dailyAmounts[k] = w.dailyAmounts[k].Add(delta.DailyAmount)
	}
	if !delta.WeeklyAmount.IsZero() {
		k := windowKey{customer, keys.Week}
		w.weeklyAmounts[k] = w.weeklyAmounts[k].Add(delta.WeeklyAmount)
	}
	for _, name := range delta.GateAccepts {
		day := w.gateAccepts[keys.Day]
		if day == nil {
			day = make(map[string]int64)
			w.gateAccepts[keys.Day] = day
		}
		day[name]++
	}
	return nil
}
