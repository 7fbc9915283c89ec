package emit

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/assay/sink"
)

func TestSinkEmitter_BatchesBySizeAndFlushesRemainder(t *testing.T) {
	stub := sink.NewStub()
	e := NewSinkEmitter(t.Context(), stub, 2)

	for seq := int64(1); seq <= 5; seq++ {
		if err := e.Emit(testDecision(seq, true)); err != nil {
			t.Fatalf("emit %d: %v", seq, err)
		}
	}
	// 5 records with flush count 2: two full batches written, one
	// buffered.
	if stub.Len() != 4 || stub.Batches != 2 {
		t.Fatalf("expected 4 records in 2 batches, got %d in %d", stub.Len(), stub.Batches)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if stub.Len() != 5 {
		t.Fatalf("expected 5 records after close, got %d", stub.Len())
	}

	// Order is preserved across batches.
	for i, rec := range stub.Records {
		if rec.Seq != int64(i+1) {
			t.Errorf("record %d has seq %d", i, rec.Seq)
		}
	}
}

func TestSinkEmitter_FailedFlushPreservesBatch(t *testing.T) {
	stub := sink.NewStub()
	stub.ErrorOnWrite = errors.New("sink down")
	e := NewSinkEmitter(t.Context(), stub, 1)

	if err := e.Emit(testDecision(1, true)); err == nil {
		t.Fatal("expected flush failure")
	}

	// Recovery: the buffered record flushes once the sink heals.
	stub.ErrorOnWrite = nil
	if err := e.Flush(); err != nil {
		t.Fatalf("flush after recovery: %v", err)
	}
	if stub.Len() != 1 {
		t.Fatalf("expected the record to survive the failed flush, got %d", stub.Len())
	}
}

func TestFrameEmitter_RoundTrip(t *testing.T) {
	var out bytes.Buffer
	e := NewFrameEmitter(&out)

	accepted := testDecision(1, true)
	declined := testDecision(2, false)
	if err := e.Emit(accepted); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := e.Emit(declined); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	dec := NewFrameDecoder(&out)

	first, err := dec.Next()
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if first.Seq != 1 || first.Status != "ACCEPTED" || first.LoadID != "15887" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.EffectiveAmount != "3318.47" {
		t.Errorf("money lost canonical form: %q", first.EffectiveAmount)
	}
	if first.SnapshotAfter.DailyAmount.String() != "3418.47" {
		t.Errorf("snapshot money mangled: %+v", first.SnapshotAfter)
	}

	second, err := dec.Next()
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if second.Status != "DECLINED" || len(second.Reasons) != 1 || second.Reasons[0] != "DAILY_AMOUNT_LIMIT" {
		t.Errorf("unexpected second record: %+v", second)
	}

	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_PartialFrameIsFatal(t *testing.T) {
	var out bytes.Buffer
	e := NewFrameEmitter(&out)
	if err := e.Emit(testDecision(1, true)); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}

	truncated := out.Bytes()[:out.Len()-3]
	dec := NewFrameDecoder(bytes.NewReader(truncated))

	_, err := dec.Next()
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
}

func TestFrameDecoder_OversizedFrameRejected(t *testing.T) {
	// Length prefix claiming more than the payload cap.
	frame := []byte{0xff, 0xff, 0xff, 0xff}
	dec := NewFrameDecoder(bytes.NewReader(frame))

	_, err := dec.Next()
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected oversized frame error, got %v", err)
	}
}
