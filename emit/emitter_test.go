package emit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pithecene-io/assay/types"
)

func testDecision(seq int64, accepted bool) *types.Decision {
	status := types.StatusDeclined
	var reasons []types.ReasonCode
	if accepted {
		status = types.StatusAccepted
	} else {
		reasons = []types.ReasonCode{types.ReasonDailyAmountLimit}
	}
	return &types.Decision{
		Seq:             seq,
		LoadID:          "15887",
		CustomerID:      "528",
		Status:          status,
		Reasons:         reasons,
		EffectiveAmount: types.MustMoney("3318.47"),
		SnapshotBefore:  types.WindowSnapshot{DailyAttempts: 1, DailyAmount: types.MustMoney("100.00")},
		SnapshotAfter:   types.WindowSnapshot{DailyAttempts: 2, DailyAmount: types.MustMoney("3418.47")},
		CanonicalSeq:    seq,
	}
}

func TestDecisionWriter_MinimalContract(t *testing.T) {
	var out bytes.Buffer
	w := NewDecisionWriter(&out)

	if err := w.Emit(testDecision(1, true)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := w.Emit(testDecision(2, false)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	// Field order is part of the contract.
	if lines[0] != `{"id":"15887","customer_id":"528","accepted":true}` {
		t.Errorf("unexpected accepted line: %s", lines[0])
	}
	if lines[1] != `{"id":"15887","customer_id":"528","accepted":false}` {
		t.Errorf("unexpected declined line: %s", lines[1])
	}
}

// seqRecorder records the order in which it sees decisions.
type seqRecorder struct {
	name string
	log  *[]string
	err  error
}

func (r *seqRecorder) Emit(d *types.Decision) error {
	if r.err != nil {
		return r.err
	}
	*r.log = append(*r.log, r.name)
	return nil
}

func TestTee_FansOutInOrder(t *testing.T) {
	var order []string
	first := &seqRecorder{name: "first", log: &order}
	second := &seqRecorder{name: "second", log: &order}

	tee := Tee(first, second)
	if err := tee.Emit(testDecision(1, true)); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected fan-out order: %v", order)
	}
}

func TestTee_StopsAtFirstFailure(t *testing.T) {
	var order []string
	failing := &seqRecorder{name: "failing", log: &order, err: errors.New("boom")}
	after := &seqRecorder{name: "after", log: &order}

	tee := Tee(failing, after)
	if err := tee.Emit(testDecision(1, true)); err == nil {
		t.Fatal("expected propagated failure")
	}
	if len(order) != 0 {
		t.Errorf("downstream emitter ran after a failure: %v", order)
	}
}
