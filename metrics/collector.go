// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single scenario run.
// It is a leaf package with no internal dependencies. Adjudication
// totals are absorbed from the driver report at run completion rather
// than recorded live, avoiding double-counting.
package metrics

import "sync"

// RunTotals are the adjudication counters absorbed from the driver at
// run completion.
type RunTotals struct {
	Records          int64
	Malformed        int64
	FirstOccurrences int64
	Replays          int64
	Conflicts        int64
	Accepted         int64
	Declined         int64
	DeclinedByReason map[string]int64
}

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsAborted   int64

	// Adjudication (absorbed from the driver at run completion)
	Records          int64
	Malformed        int64
	FirstOccurrences int64
	Replays          int64
	Conflicts        int64
	Accepted         int64
	Declined         int64
	DeclinedByReason map[string]int64

	// Audit sink
	AuditWriteSuccess int64
	AuditWriteFailure int64

	// Adapter
	PublishSuccess int64
	PublishFailure int64

	// Dimensions (informational, set at construction)
	Scenario       string
	Evaluation     string
	StorageBackend string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver
// safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsAborted   int64

	totals RunTotals

	auditWriteSuccess int64
	auditWriteFailure int64

	publishSuccess int64
	publishFailure int64

	scenario       string
	evaluation     string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(scenario, evaluation, storageBackend, runID string) *Collector {
	return &Collector{
		scenario:       scenario,
		evaluation:     evaluation,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a run that drained its stream.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunAborted records a run that stopped early.
func (c *Collector) IncRunAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsAborted++
	c.mu.Unlock()
}

// IncAuditWriteSuccess records a successful audit sink write.
func (c *Collector) IncAuditWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.auditWriteSuccess++
	c.mu.Unlock()
}

// IncAuditWriteFailure records a failed audit sink write.
func (c *Collector) IncAuditWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.auditWriteFailure++
	c.mu.Unlock()
}

// IncPublishSuccess records a successful adapter notification.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a failed adapter notification.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// AbsorbRunTotals copies the driver's counters into the collector at
// run completion. Called once per run.
func (c *Collector) AbsorbRunTotals(totals RunTotals) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totals = totals
	c.totals.DeclinedByReason = make(map[string]int64, len(totals.DeclinedByReason))
	for k, v := range totals.DeclinedByReason {
		c.totals.DeclinedByReason[k] = v
	}
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsAborted:   c.runsAborted,

		Records:          c.totals.Records,
		Malformed:        c.totals.Malformed,
		FirstOccurrences: c.totals.FirstOccurrences,
		Replays:          c.totals.Replays,
		Conflicts:        c.totals.Conflicts,
		Accepted:         c.totals.Accepted,
		Declined:         c.totals.Declined,

		AuditWriteSuccess: c.auditWriteSuccess,
		AuditWriteFailure: c.auditWriteFailure,
		PublishSuccess:    c.publishSuccess,
		PublishFailure:    c.publishFailure,

		Scenario:       c.scenario,
		Evaluation:     c.evaluation,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
	snap.DeclinedByReason = make(map[string]int64, len(c.totals.DeclinedByReason))
	for k, v := range c.totals.DeclinedByReason {
		snap.DeclinedByReason[k] = v
	}
	return snap
}
