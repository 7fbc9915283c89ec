package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/pithecene-io/assay/ingest"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/types"
)

// Emitter receives finished decisions in seq order.
// Emission is effect-only: it must not influence engine state.
type Emitter interface {
	Emit(d *types.Decision) error
}

// Outcome summarizes how a run ended.
type Outcome string

// Run outcomes.
const (
	// OutcomeComplete means the stream drained and every record got a
	// decision.
	OutcomeComplete Outcome = "complete"
	// OutcomeAborted means the run stopped early (cancellation,
	// transport failure, or invariant breach). Decisions already
	// emitted are retained.
	OutcomeAborted Outcome = "aborted"
)

// Stats are the driver's per-run counters.
type Stats struct {
	Records          int64
	Malformed        int64
	FirstOccurrences int64
	Replays          int64
	Conflicts        int64
	Accepted         int64
	Declined         int64
	// DeclinedByReason counts declines by their first reason code.
	DeclinedByReason map[string]int64
}

// Report is the result of one driver run.
type Report struct {
	Outcome Outcome
	Stats   Stats
}

// Config configures a Driver.
type Config struct {
	// Scenario is the validated scenario binding (required).
	Scenario *Scenario
	// Emitter receives decisions in seq order (required).
	Emitter Emitter
	// Logger is optional; nil disables driver logging.
	Logger *log.Logger
}

// Driver orchestrates the pipeline per input record, in input order.
// It owns the window store and the idempotency table; no other
// component holds a writable handle to either.
type Driver struct {
	scenario *Scenario
	emitter  Emitter
	logger   *log.Logger

	windows *WindowStore
	idem    *IdempotencyTable
	stats   Stats
}

// NewDriver creates a Driver with fresh state.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Scenario == nil {
		return nil, errors.New("driver requires a scenario")
	}
	if cfg.Emitter == nil {
		return nil, errors.New("driver requires an emitter")
	}
	return &Driver{
		scenario: cfg.Scenario,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
		windows:  NewWindowStore(),
		idem:     NewIdempotencyTable(),
		stats:    Stats{DeclinedByReason: make(map[string]int64)},
	}, nil
}

// Run consumes the source until exhaustion, adjudicating one record
// at a time. The i-th emitted decision corresponds to the i-th input
// record; the commit for seq k is visible to the snapshot for seq
// k+1.
//
// Cancellation is honored between records only: a record that entered
// the pipeline is fully committed and emitted, or neither.
func (d *Driver) Run(ctx context.Context, src ingest.Source) (*Report, error) {
	for {
		if err := ctx.Err(); err != nil {
			return d.report(OutcomeAborted), fmt.Errorf("run cancelled: %w", err)
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return d.report(OutcomeAborted), fmt.Errorf("ingress failed at seq %d: %w", d.stats.Records+1, err)
		}

		d.stats.Records++
		decision, err := d.adjudicate(rec)
		if err != nil {
			d.logError("invariant breach, aborting stream", rec.Seq, err)
			return d.report(OutcomeAborted), err
		}

		d.count(decision)
		if err := d.emitter.Emit(decision); err != nil {
			d.logError("emit failed, aborting stream", rec.Seq, err)
			return d.report(OutcomeAborted), fmt.Errorf("emit decision at seq %d: %w", rec.Seq, err)
		}
	}

	return d.report(OutcomeComplete), nil
}

// adjudicate produces the single decision for one raw record.
// A non-nil error is an invariant breach; per-record problems become
// decline decisions instead.
func (d *Driver) adjudicate(rec types.RawRecord) (*types.Decision, error) {
	ev, err := ingest.Parse(rec)
	if err != nil {
		var perr *ingest.ParseError
		if !errors.As(err, &perr) {
			return nil, fmt.Errorf("parse at seq %d: %w", rec.Seq, err)
		}
		// Malformed records bypass all state: no keys, no gate, no
		// commit.
		return &types.Decision{
			Seq:          rec.Seq,
			LoadID:       perr.LoadID,
			CustomerID:   perr.CustomerID,
			Status:       types.StatusDeclined,
			Reasons:      []types.ReasonCode{types.ReasonMalformedInput},
			CanonicalSeq: rec.Seq,
		}, nil
	}

	keys := types.DeriveTimeKeys(ev.Time)
	fp := ComputeFingerprint(ev)

	class, canonical := d.idem.Classify(ev.LoadID, fp)
	switch class {
	case ClassFirstOccurrence:
		return d.adjudicateFirst(ev, keys, fp)
	case ClassReplay:
		// Mirror the canonical decision; annotate; commit nothing.
		snap := d.windows.Snapshot(ev.CustomerID, keys, d.scenario.gates)
		reasons := append(slices.Clone(canonical.Reasons), types.ReasonDuplicateReplay)
		return &types.Decision{
			Seq:            ev.Seq,
			LoadID:         ev.LoadID,
			CustomerID:     ev.CustomerID,
			Status:         canonical.Status,
			Reasons:        reasons,
			SnapshotBefore: snap,
			SnapshotAfter:  snap,
			CanonicalSeq:   canonical.Seq,
		}, nil
	default: // ClassConflict
		snap := d.windows.Snapshot(ev.CustomerID, keys, d.scenario.gates)
		return &types.Decision{
			Seq:            ev.Seq,
			LoadID:         ev.LoadID,
			CustomerID:     ev.CustomerID,
			Status:         types.StatusDeclined,
			Reasons:        []types.ReasonCode{types.ReasonDuplicateConflict},
			SnapshotBefore: snap,
			SnapshotAfter:  snap,
			CanonicalSeq:   canonical.Seq,
		}, nil
	}
}

// adjudicateFirst runs the read-evaluate-commit sequence for a
// first-occurrence event. The strict ordering (snapshot first,
// evaluate second, commit last) breaks the state/decision cycle.
func (d *Driver) adjudicateFirst(ev *types.Event, keys types.TimeKeys, fp Fingerprint) (*types.Decision, error) {
	features := d.scenario.DeriveFeatures(ev)
	before := d.windows.Snapshot(ev.CustomerID, keys, d.scenario.gates)
	verdict := d.scenario.Evaluate(features, before)
	delta := d.scenario.BuildDelta(features, verdict)

	if err := d.windows.Commit(ev.CustomerID, keys, delta); err != nil {
		return nil, fmt.Errorf("commit at seq %d: %w", ev.Seq, err)
	}
	after := d.windows.Snapshot(ev.CustomerID, keys, d.scenario.gates)

	if after.DailyAttempts != before.DailyAttempts+1 {
		return nil, fmt.Errorf("attempt counter moved %d -> %d at seq %d",
			before.DailyAttempts, after.DailyAttempts, ev.Seq)
	}

	if err := d.idem.Install(ev.LoadID, &CanonicalRecord{
		Fingerprint: fp,
		Status:      verdict.Status,
		Reasons:     verdict.Reasons,
		Seq:         ev.Seq,
	}); err != nil {
		return nil, fmt.Errorf("install canonical record at seq %d: %w", ev.Seq, err)
	}

	return &types.Decision{
		Seq:             ev.Seq,
		LoadID:          ev.LoadID,
		CustomerID:      ev.CustomerID,
		Status:          verdict.Status,
		Reasons:         verdict.Reasons,
		EffectiveAmount: features.EffectiveAmount,
		SnapshotBefore:  before,
		SnapshotAfter:   after,
		CanonicalSeq:    ev.Seq,
	}, nil
}

// count updates the run counters for one finished decision.
func (d *Driver) count(decision *types.Decision) {
	switch {
	case len(decision.Reasons) > 0 && decision.Reasons[0] == types.ReasonMalformedInput:
		d.stats.Malformed++
	case decision.CanonicalSeq == decision.Seq:
		d.stats.FirstOccurrences++
	case len(decision.Reasons) > 0 && decision.Reasons[len(decision.Reasons)-1] == types.ReasonDuplicateReplay:
		d.stats.Replays++
	default:
		d.stats.Conflicts++
	}

	if decision.Accepted() {
		d.stats.Accepted++
		return
	}
	d.stats.Declined++
	if len(decision.Reasons) > 0 {
		d.stats.DeclinedByReason[string(decision.Reasons[0])]++
	}
}

// report snapshots the stats into a Report.
func (d *Driver) report(outcome Outcome) *Report {
	stats := d.stats
	stats.DeclinedByReason = make(map[string]int64, len(d.stats.DeclinedByReason))
	for k, v := range d.stats.DeclinedByReason {
		stats.DeclinedByReason[k] = v
	}
	return &Report{Outcome: outcome, Stats: stats}
}

func (d *Driver) logError(message string, seq int64, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Error(message, map[string]any{
		"seq":   seq,
		"error": err.Error(),
	})
}
