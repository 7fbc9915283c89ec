// Package ingest provides the ingress boundary of the adjudication
// pipeline: a line-oriented record source that assigns transport
// sequence numbers, and the parser/normalizer that turns raw records
// into events.
//
// The reader is the sole ordering authority: the seq it assigns
// defines output order and audit identity for the whole run.
package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/assay/types"
)

// MaxLineSize is the maximum accepted input line length in bytes.
// Lines beyond this are a stream error, not a malformed record: the
// scanner cannot resynchronize past them.
const MaxLineSize = 1 << 20

// Source yields raw records in arrival order.
// Next returns io.EOF when the stream is exhausted.
type Source interface {
	Next() (types.RawRecord, error)
}

// Reader is a Source over a line-delimited byte stream.
// Each non-blank line becomes one RawRecord with a monotonic seq
// starting at 1. Blank lines are skipped without consuming a seq.
type Reader struct {
	scanner *bufio.Scanner
	seq     int64
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineSize)
	return &Reader{scanner: sc}
}

// Next returns the next raw record.
// Returns io.EOF at end of stream; any other error is a transport
// failure and aborts the run.
func (r *Reader) Next() (types.RawRecord, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r.seq++
		// Scanner reuses its buffer; the record owns its bytes.
		owned := make([]byte, len(line))
		copy(owned, line)
		return types.RawRecord{Seq: r.seq, Line: owned}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return types.RawRecord{}, fmt.Errorf("read input: %w", err)
	}
	return types.RawRecord{}, io.EOF
}

// Verify Reader implements Source.
var _ Source = (*Reader)(nil)

// SliceSource is a Source over pre-built records, for tests and for
// callers that buffer input themselves.
type SliceSource struct {
	records []types.RawRecord
	next    int
}

// NewSliceSource builds a SliceSource that assigns seq 1..n to the
// given lines.
func NewSliceSource(lines ...string) *SliceSource {
	records := make([]types.RawRecord, len(lines))
	for i, line := range lines {
		records[i] = types.RawRecord{Seq: int64(i + 1), Line: []byte(line)}
	}
	return &SliceSource{records: records}
}

// Next implements Source.
func (s *SliceSource) Next() (types.RawRecord, error) {
	if s.next >= len(s.records) {
		return types.RawRecord{}, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

// Verify SliceSource implements Source.
var _ Source = (*SliceSource)(nil)

// IsOversizedLine reports whether err is an oversized-line failure.
func IsOversizedLine(err error) bool {
	return errors.Is(err, bufio.ErrTooLong)
}
