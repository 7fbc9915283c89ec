package emit

import (
	"bufio"
	"context"
	"io"

	"github.com/pithecene-io/assay/engine"
	"github.com/pithecene-io/assay/sink"
	"github.com/pithecene-io/assay/types"
)

// DefaultFlushCount is the audit batch size before a sink write.
const DefaultFlushCount = 256

// SinkEmitter converts decisions into audit records and persists
// them through a sink in batches. Batching amortizes sink latency
// without reordering: records flush in seq order.
type SinkEmitter struct {
	ctx        context.Context
	sink       sink.Sink
	flushCount int
	buf        []*types.AuditRecord
}

// NewSinkEmitter creates a SinkEmitter. flushCount <= 0 selects
// DefaultFlushCount. The context bounds sink writes for the whole
// run.
func NewSinkEmitter(ctx context.Context, s sink.Sink, flushCount int) *SinkEmitter {
	if flushCount <= 0 {
		flushCount = DefaultFlushCount
	}
	return &SinkEmitter{
		ctx:        ctx,
		sink:       s,
		flushCount: flushCount,
		buf:        make([]*types.AuditRecord, 0, flushCount),
	}
}

// Emit buffers the decision's audit record, flushing when the batch
// fills.
func (e *SinkEmitter) Emit(d *types.Decision) error {
	e.buf = append(e.buf, d.Audit())
	if len(e.buf) >= e.flushCount {
		return e.Flush()
	}
	return nil
}

// Flush writes any buffered records to the sink.
func (e *SinkEmitter) Flush() error {
	if len(e.buf) == 0 {
		return nil
	}
	batch := e.buf
	e.buf = make([]*types.AuditRecord, 0, e.flushCount)
	if err := e.sink.WriteAudit(e.ctx, batch); err != nil {
		// Restore so a retried Flush does not lose the batch.
		e.buf = append(batch, e.buf...)
		return err
	}
	return nil
}

// Close flushes the final batch. The sink itself is owned and closed
// by the caller that opened it.
func (e *SinkEmitter) Close() error {
	return e.Flush()
}

// Verify SinkEmitter implements engine.Emitter.
var _ engine.Emitter = (*SinkEmitter)(nil)

// FrameEmitter writes the audit stream as length-prefixed msgpack
// frames for machine ingestion.
type FrameEmitter struct {
	w *bufio.Writer
}

// NewFrameEmitter creates a FrameEmitter over w.
func NewFrameEmitter(w io.Writer) *FrameEmitter {
	return &FrameEmitter{w: bufio.NewWriter(w)}
}

// Emit writes one framed audit record.
func (e *FrameEmitter) Emit(d *types.Decision) error {
	frame, err := EncodeAuditRecord(d.Audit())
	if err != nil {
		return err
	}
	_, err = e.w.Write(frame)
	return err
}

// Flush drains the frame buffer.
func (e *FrameEmitter) Flush() error {
	return e.w.Flush()
}

// Verify FrameEmitter implements engine.Emitter.
var _ engine.Emitter = (*FrameEmitter)(nil)
