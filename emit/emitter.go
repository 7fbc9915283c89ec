// Package emit serializes decisions for downstream collaborators.
//
// The minimal contract is one JSON line per input record, in seq
// order: {"id":...,"customer_id":...,"accepted":...}. Richer audit
// emitters (JSONL via a sink, length-prefixed msgpack frames) are
// optional and deterministic when enabled.
//
// Emission is effect-only: nothing in this package feeds back into
// engine state.
package emit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pithecene-io/assay/engine"
	"github.com/pithecene-io/assay/types"
)

// outputRecord is the minimal external decision shape.
// Field order is part of the contract.
type outputRecord struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Accepted   bool   `json:"accepted"`
}

// DecisionWriter emits the minimal decision stream as JSON lines.
type DecisionWriter struct {
	w *bufio.Writer
}

// NewDecisionWriter creates a DecisionWriter over w.
// Call Flush after the run drains; the writer buffers.
func NewDecisionWriter(w io.Writer) *DecisionWriter {
	return &DecisionWriter{w: bufio.NewWriter(w)}
}

// Emit writes one decision line.
func (e *DecisionWriter) Emit(d *types.Decision) error {
	rec := outputRecord{
		ID:         d.LoadID,
		CustomerID: d.CustomerID,
		Accepted:   d.Accepted(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision at seq %d: %w", d.Seq, err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write decision at seq %d: %w", d.Seq, err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write decision at seq %d: %w", d.Seq, err)
	}
	return nil
}

// Flush drains the buffer to the underlying writer.
func (e *DecisionWriter) Flush() error {
	return e.w.Flush()
}

// Verify DecisionWriter implements engine.Emitter.
var _ engine.Emitter = (*DecisionWriter)(nil)

// tee fans each decision out to several emitters in order.
type tee struct {
	emitters []engine.Emitter
}

// Tee combines emitters; each decision is handed to all of them in
// argument order, stopping at the first failure.
func Tee(emitters ...engine.Emitter) engine.Emitter {
	return &tee{emitters: emitters}
}

// Emit implements engine.Emitter.
func (t *tee) Emit(d *types.Decision) error {
	for _, e := range t.emitters {
		if err := e.Emit(d); err != nil {
			return err
		}
	}
	return nil
}
