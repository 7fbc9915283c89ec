package engine

import (
	"testing"

	"github.com/pithecene-io/assay/types"
)

var testKeys = types.TimeKeys{Day: "2024-01-01", Week: "2024-01-01"}

func TestWindowStore_MissingKeysReadZero(t *testing.T) {
	w := NewWindowStore()
	snap := w.Snapshot("unknown", testKeys, nil)

	if snap.DailyAttempts != 0 {
		t.Errorf("expected 0 attempts, got %d", snap.DailyAttempts)
	}
	if !snap.DailyAmount.IsZero() || !snap.WeeklyAmount.IsZero() {
		t.Errorf("expected zero amounts, got %s / %s", snap.DailyAmount, snap.WeeklyAmount)
	}
	if snap.GateAccepts != nil {
		t.Error("no gates configured: GateAccepts must be nil")
	}
}

func TestWindowStore_CommitsAreAdditive(t *testing.T) {
	w := NewWindowStore()
	delta := CommitDelta{
		Attempts:     1,
		DailyAmount:  types.MustMoney("100.00"),
		WeeklyAmount: types.MustMoney("100.00"),
	}

	for range 3 {
		if err := w.Commit("c1", testKeys, delta); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	snap := w.Snapshot("c1", testKeys, nil)
	if snap.DailyAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", snap.DailyAttempts)
	}
	if snap.DailyAmount.String() != "300.00" {
		t.Errorf("expected 300.00 daily, got %s", snap.DailyAmount)
	}
	if snap.WeeklyAmount.String() != "300.00" {
		t.Errorf("expected 300.00 weekly, got %s", snap.WeeklyAmount)
	}
}

func TestWindowStore_KeysAreIndependent(t *testing.T) {
	w := NewWindowStore()
	delta := CommitDelta{Attempts: 1, DailyAmount: types.MustMoney("10.00"), WeeklyAmount: types.MustMoney("10.00")}

	if err := w.Commit("c1", testKeys, delta); err != nil {
		t.Fatal(err)
	}
	otherDay := types.TimeKeys{Day: "2024-01-02", Week: "2024-01-01"}
	if err := w.Commit("c1", otherDay, delta); err != nil {
		t.Fatal(err)
	}

	if snap := w.Snapshot("c1", testKeys, nil); snap.DailyAttempts != 1 || snap.DailyAmount.String() != "10.00" {
		t.Errorf("day one polluted: %+v", snap)
	}
	// Both commits share the week.
	if snap := w.Snapshot("c1", otherDay, nil); snap.WeeklyAmount.String() != "20.00" {
		t.Errorf("expected shared weekly 20.00, got %s", snap.WeeklyAmount)
	}
	// Customers are isolated.
	if snap := w.Snapshot("c2", testKeys, nil); snap.DailyAttempts != 0 {
		t.Errorf("customer isolation broken: %+v", snap)
	}
}

func TestWindowStore_GateCounters(t *testing.T) {
	w := NewWindowStore()
	gates := []Gate{{Name: "prime", DailyAcceptCap: int64p(2)}}

	if err := w.Commit("c1", testKeys, CommitDelta{Attempts: 1, GateAccepts: []string{"prime"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit("c2", testKeys, CommitDelta{Attempts: 1, GateAccepts: []string{"prime"}}); err != nil {
		t.Fatal(err)
	}

	// The gate counter is global per day, not per customer.
	snap := w.Snapshot("c3", testKeys, gates)
	if snap.GateAccepts["prime"] != 2 {
		t.Errorf("expected global gate count 2, got %d", snap.GateAccepts["prime"])
	}

	// A different day reads zero.
	otherDay := types.TimeKeys{Day: "2024-01-02", Week: "2024-01-01"}
	if snap := w.Snapshot("c3", otherDay, gates); snap.GateAccepts["prime"] != 0 {
		t.Errorf("expected 0 on a fresh day, got %d", snap.GateAccepts["prime"])
	}
}

func TestWindowStore_SnapshotIsImmutable(t *testing.T) {
	w := NewWindowStore()
	gates := []Gate{{Name: "prime", DailyAcceptCap: int64p(5)}}

	before := w.Snapshot("c1", testKeys, gates)
	if err := w.Commit("c1", testKeys, CommitDelta{Attempts: 1, DailyAmount: types.MustMoney("50.00"), WeeklyAmount: types.MustMoney("50.00"), GateAccepts: []string{"prime"}}); err != nil {
		t.Fatal(err)
	}

	if before.DailyAttempts != 0 || !before.DailyAmount.IsZero() || before.GateAccepts["prime"] != 0 {
		t.Errorf("snapshot mutated by a later commit: %+v", before)
	}
}

func TestWindowStore_NegativeAttemptDeltaRejected(t *testing.T) {
	w := NewWindowStore()
	if err := w.Commit("c1", testKeys, CommitDelta{Attempts: -1}); err == nil {
		t.Fatal("negative attempt delta must be rejected")
	}
}
