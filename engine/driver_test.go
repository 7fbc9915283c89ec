package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pithecene-io/assay/ingest"
	"github.com/pithecene-io/assay/types"
)

// collectEmitter records emitted decisions for assertions.
type collectEmitter struct {
	decisions []*types.Decision
	failAt    int64 // seq to fail on; 0 disables
}

func (e *collectEmitter) Emit(d *types.Decision) error {
	if e.failAt != 0 && d.Seq == e.failAt {
		return errors.New("emitter failure")
	}
	e.decisions = append(e.decisions, d)
	return nil
}

func line(id, customer, amount, ts string) string {
	return fmt.Sprintf(`{"id":%q,"customer_id":%q,"load_amount":%q,"time":%q}`, id, customer, amount, ts)
}

func runDriver(t *testing.T, spec Spec, lines ...string) ([]*types.Decision, *Report) {
	t.Helper()
	sc := mustScenario(t, spec)
	emitter := &collectEmitter{}
	d, err := NewDriver(Config{Scenario: sc, Emitter: emitter})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	report, err := d.Run(t.Context(), ingest.NewSliceSource(lines...))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return emitter.decisions, report
}

func assertStatuses(t *testing.T, decisions []*types.Decision, want ...bool) {
	t.Helper()
	if len(decisions) != len(want) {
		t.Fatalf("expected %d decisions, got %d", len(want), len(decisions))
	}
	for i, accepted := range want {
		if decisions[i].Accepted() != accepted {
			t.Errorf("decision %d: expected accepted=%v, got %+v", i+1, accepted, decisions[i])
		}
	}
}

func TestDriver_OneDecisionPerRecordInOrder(t *testing.T) {
	decisions, report := runDriver(t, baselineSpec(),
		line("1", "c1", "$10.00", "2024-01-01T10:00:00Z"),
		"garbage line",
		line("2", "c1", "$20.00", "2024-01-01T11:00:00Z"),
	)

	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	for i, d := range decisions {
		if d.Seq != int64(i+1) {
			t.Errorf("decision %d has seq %d; output order must equal input order", i, d.Seq)
		}
	}
	if report.Outcome != OutcomeComplete {
		t.Errorf("expected complete outcome, got %s", report.Outcome)
	}
	if report.Stats.Records != 3 || report.Stats.Malformed != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
}

func TestDriver_Replay(t *testing.T) {
	// Same payload, same id: the second decision mirrors the first and
	// state is mutated once.
	decisions, report := runDriver(t, baselineSpec(),
		line("A", "1", "$100.00", "2024-01-01T10:00:00Z"),
		line("A", "1", "$100.00", "2024-01-01T10:00:00Z"),
	)

	assertStatuses(t, decisions, true, true)

	replay := decisions[1]
	if replay.CanonicalSeq != 1 {
		t.Errorf("replay must point at the canonical seq, got %d", replay.CanonicalSeq)
	}
	if replay.Reasons[len(replay.Reasons)-1] != types.ReasonDuplicateReplay {
		t.Errorf("replay marker missing: %v", replay.Reasons)
	}
	// State after both inputs equals state after the first.
	after := replay.SnapshotAfter
	if after.DailyAttempts != 1 || after.DailyAmount.String() != "100.00" {
		t.Errorf("replay mutated state: %+v", after)
	}
	if report.Stats.Replays != 1 || report.Stats.FirstOccurrences != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
}

func TestDriver_Conflict(t *testing.T) {
	decisions, report := runDriver(t, baselineSpec(),
		line("B", "1", "USD100.00", "2024-01-01T11:00:00Z"),
		line("B", "1", "USD200.00", "2024-01-01T11:05:00Z"),
	)

	assertStatuses(t, decisions, true, false)

	conflict := decisions[1]
	if conflict.Reasons[0] != types.ReasonDuplicateConflict {
		t.Errorf("expected DUPLICATE_ID_CONFLICT, got %v", conflict.Reasons)
	}
	if conflict.CanonicalSeq != 1 {
		t.Errorf("conflict must reference the canonical event, got %d", conflict.CanonicalSeq)
	}
	// Only the canonical event contributed.
	if conflict.SnapshotAfter.DailyAmount.String() != "100.00" {
		t.Errorf("conflict mutated state: %+v", conflict.SnapshotAfter)
	}
	if report.Stats.Conflicts != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
}

func TestDriver_DailyAttemptCap(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("a1", "1", "$10.00", "2024-01-01T01:00:00Z"),
		line("a2", "1", "$10.00", "2024-01-01T02:00:00Z"),
		line("a3", "1", "$10.00", "2024-01-01T03:00:00Z"),
		line("a4", "1", "$10.00", "2024-01-01T04:00:00Z"),
	)

	assertStatuses(t, decisions, true, true, true, false)
	if decisions[3].Reasons[0] != types.ReasonDailyAttemptLimit {
		t.Errorf("expected DAILY_ATTEMPT_LIMIT, got %v", decisions[3].Reasons)
	}
}

func TestDriver_DeclinedAttemptStillCounts(t *testing.T) {
	// A decline consumes an attempt: three declines exhaust the day
	// even though nothing was accepted.
	decisions, _ := runDriver(t, baselineSpec(),
		line("d1", "1", "$6000.00", "2024-01-01T01:00:00Z"), // over daily amount
		line("d2", "1", "$6000.00", "2024-01-01T02:00:00Z"),
		line("d3", "1", "$6000.00", "2024-01-01T03:00:00Z"),
		line("d4", "1", "$1.00", "2024-01-01T04:00:00Z"), // would fit, but attempts exhausted
	)

	assertStatuses(t, decisions, false, false, false, false)
	if decisions[3].Reasons[0] != types.ReasonDailyAttemptLimit {
		t.Errorf("expected DAILY_ATTEMPT_LIMIT on the fourth attempt, got %v", decisions[3].Reasons)
	}
}

func TestDriver_DailyAmountCapBoundary(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("X1", "1", "$4999.99", "2024-01-01T01:00:00Z"),
		line("X2", "1", "$0.02", "2024-01-01T02:00:00Z"),
		line("X3", "1", "$0.01", "2024-01-01T03:00:00Z"),
	)

	// 4999.99 accepted; +0.02 exceeds; +0.01 lands exactly on 5000.00.
	assertStatuses(t, decisions, true, false, true)
	if decisions[1].Reasons[0] != types.ReasonDailyAmountLimit {
		t.Errorf("expected DAILY_AMOUNT_LIMIT, got %v", decisions[1].Reasons)
	}
}

func TestDriver_WeekBoundary(t *testing.T) {
	// Weekly-only limits so the daily cap does not interfere.
	spec := Spec{Name: "weekly-only", Limits: Limits{WeeklyAmount: moneyp("20000.00")}}
	decisions, _ := runDriver(t, spec,
		line("W1", "1", "$20000.00", "2024-01-07T23:59:59Z"), // Sunday
		line("W2", "1", "$20000.00", "2024-01-08T00:00:00Z"), // Monday, next ISO week
	)
	assertStatuses(t, decisions, true, true)

	// Same week instead: the second is declined.
	decisions, _ = runDriver(t, spec,
		line("W1", "1", "$20000.00", "2024-01-07T23:59:59Z"),
		line("W2", "1", "$20000.00", "2024-01-07T23:59:59.5Z"),
	)
	assertStatuses(t, decisions, true, false)
	if decisions[1].Reasons[0] != types.ReasonWeeklyAmountLimit {
		t.Errorf("expected WEEKLY_AMOUNT_LIMIT, got %v", decisions[1].Reasons)
	}
}

func TestDriver_UTCDayBoundary(t *testing.T) {
	spec := Spec{Name: "daily-only", Limits: Limits{DailyAmount: moneyp("5000.00")}}
	decisions, _ := runDriver(t, spec,
		line("D1", "1", "$5000.00", "2024-01-01T23:59:59Z"),
		line("D2", "1", "$5000.00", "2024-01-02T00:00:00Z"),
	)
	assertStatuses(t, decisions, true, true)
}

func TestDriver_ZeroAmount(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("z1", "1", "$0.00", "2024-01-01T01:00:00Z"),
		line("z2", "1", "$5000.00", "2024-01-01T02:00:00Z"),
	)

	// The zero amount consumes an attempt but no amount headroom.
	assertStatuses(t, decisions, true, true)
	if got := decisions[1].SnapshotBefore.DailyAttempts; got != 1 {
		t.Errorf("zero amount must consume an attempt, got %d", got)
	}
	if !decisions[1].SnapshotBefore.DailyAmount.IsZero() {
		t.Errorf("zero amount must not consume amount headroom: %+v", decisions[1].SnapshotBefore)
	}
}

func TestDriver_UnlimitedScenarioAcceptsEverythingValid(t *testing.T) {
	decisions, _ := runDriver(t, Spec{Name: "open"},
		line("1", "c", "$999999.99", "2024-01-01T01:00:00Z"),
		line("2", "c", "$999999.99", "2024-01-01T01:00:01Z"),
		line("2", "c", "$1.00", "2024-01-01T01:00:02Z"), // conflict still declines
		"not json",                                      // malformed still declines
	)
	assertStatuses(t, decisions, true, true, false, false)
}

func TestDriver_MalformedBypassesState(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("m1", "1", "bogus", "2024-01-01T01:00:00Z"),
		line("m2", "1", "$10.00", "2024-01-01T02:00:00Z"),
	)

	assertStatuses(t, decisions, false, true)
	if decisions[0].Reasons[0] != types.ReasonMalformedInput {
		t.Errorf("expected MALFORMED_INPUT, got %v", decisions[0].Reasons)
	}
	if decisions[0].LoadID != "m1" {
		t.Errorf("malformed decision should keep the decoded id, got %q", decisions[0].LoadID)
	}
	// The malformed record consumed no attempt.
	if got := decisions[1].SnapshotBefore.DailyAttempts; got != 0 {
		t.Errorf("malformed record leaked into state: attempts=%d", got)
	}
}

func TestDriver_ReplayOfDeclinedMirrorsDecline(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("big", "1", "$6000.00", "2024-01-01T01:00:00Z"),
		line("big", "1", "$6000.00", "2024-01-01T01:00:00Z"),
	)

	assertStatuses(t, decisions, false, false)
	replay := decisions[1]
	if replay.Reasons[0] != types.ReasonDailyAmountLimit {
		t.Errorf("replay must mirror canonical reasons first: %v", replay.Reasons)
	}
	if replay.Reasons[len(replay.Reasons)-1] != types.ReasonDuplicateReplay {
		t.Errorf("replay marker missing: %v", replay.Reasons)
	}
	// Only one attempt was consumed across both records.
	if replay.SnapshotAfter.DailyAttempts != 1 {
		t.Errorf("replay consumed an attempt: %+v", replay.SnapshotAfter)
	}
}

func TestDriver_CanonicalSeqUniqueness(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("K", "1", "$10.00", "2024-01-01T01:00:00Z"),
		line("K", "1", "$10.00", "2024-01-01T01:00:00Z"),
		line("K", "1", "$20.00", "2024-01-01T01:00:00Z"),
	)

	selfCanonical := 0
	for _, d := range decisions {
		if d.CanonicalSeq == d.Seq {
			selfCanonical++
		} else if d.CanonicalSeq != 1 {
			t.Errorf("seq %d: canonical_seq should be 1, got %d", d.Seq, d.CanonicalSeq)
		}
	}
	if selfCanonical != 1 {
		t.Errorf("exactly one decision per load id is its own canonical, got %d", selfCanonical)
	}
}

func TestDriver_GateScenario(t *testing.T) {
	spec := baselineSpec()
	spec.PrimeID = true
	spec.Gates = []Gate{{Name: "prime", Tag: TagPrimeID, AmountCap: moneyp("1000.00"), DailyAcceptCap: int64p(1)}}

	decisions, _ := runDriver(t, spec,
		line("7", "c1", "$2000.00", "2024-01-01T01:00:00Z"),  // prime, over the amount cap
		line("11", "c2", "$500.00", "2024-01-01T02:00:00Z"),  // prime, first accept of the day
		line("13", "c3", "$500.00", "2024-01-01T03:00:00Z"),  // prime, global day cap reached
		line("8", "c4", "$2000.00", "2024-01-01T04:00:00Z"),  // not prime, gate does not apply
		line("17", "c5", "$500.00", "2024-01-02T01:00:00Z"),  // next day, counter reset
	)

	assertStatuses(t, decisions, false, true, false, true, true)
	if decisions[0].Reasons[0] != types.ReasonCode("PRIME_AMOUNT_CAP") {
		t.Errorf("expected PRIME_AMOUNT_CAP, got %v", decisions[0].Reasons)
	}
	if decisions[2].Reasons[0] != types.ReasonCode("PRIME_DAILY_GLOBAL_LIMIT") {
		t.Errorf("expected PRIME_DAILY_GLOBAL_LIMIT, got %v", decisions[2].Reasons)
	}
}

func TestDriver_CommitVisibleToNextSeq(t *testing.T) {
	decisions, _ := runDriver(t, baselineSpec(),
		line("s1", "1", "$100.00", "2024-01-01T01:00:00Z"),
		line("s2", "1", "$100.00", "2024-01-01T02:00:00Z"),
	)

	if decisions[0].SnapshotAfter.DailyAmount.String() != "100.00" {
		t.Fatalf("first commit not reflected: %+v", decisions[0].SnapshotAfter)
	}
	if decisions[1].SnapshotBefore.DailyAmount.String() != "100.00" {
		t.Errorf("commit at seq 1 must be visible to snapshot at seq 2: %+v", decisions[1].SnapshotBefore)
	}
}

func TestDriver_CancelledContextAborts(t *testing.T) {
	sc := mustScenario(t, baselineSpec())
	emitter := &collectEmitter{}
	d, err := NewDriver(Config{Scenario: sc, Emitter: emitter})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	report, err := d.Run(ctx, ingest.NewSliceSource(line("1", "c", "$1.00", "2024-01-01T01:00:00Z")))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if report.Outcome != OutcomeAborted {
		t.Errorf("expected aborted outcome, got %s", report.Outcome)
	}
	if len(emitter.decisions) != 0 {
		t.Errorf("cancelled run must not emit, got %d decisions", len(emitter.decisions))
	}
}

func TestDriver_EmitterFailureAborts(t *testing.T) {
	sc := mustScenario(t, baselineSpec())
	emitter := &collectEmitter{failAt: 2}
	d, err := NewDriver(Config{Scenario: sc, Emitter: emitter})
	if err != nil {
		t.Fatal(err)
	}

	report, err := d.Run(t.Context(), ingest.NewSliceSource(
		line("1", "c", "$1.00", "2024-01-01T01:00:00Z"),
		line("2", "c", "$1.00", "2024-01-01T02:00:00Z"),
	))
	if err == nil {
		t.Fatal("expected emit failure to abort the run")
	}
	if report.Outcome != OutcomeAborted {
		t.Errorf("expected aborted outcome, got %s", report.Outcome)
	}
	// The decision already emitted is retained.
	if len(emitter.decisions) != 1 {
		t.Errorf("expected 1 retained decision, got %d", len(emitter.decisions))
	}
}

func TestDriver_RequiresScenarioAndEmitter(t *testing.T) {
	if _, err := NewDriver(Config{Emitter: &collectEmitter{}}); err == nil {
		t.Error("expected error without scenario")
	}
	sc := mustScenario(t, baselineSpec())
	if _, err := NewDriver(Config{Scenario: sc}); err == nil {
		t.Error("expected error without emitter")
	}
}
