// Package sink abstracts persistence for the audit stream.
//
// Implementations write to the local filesystem, to S3-compatible
// object storage, or stub for testing. Batches preserve order; the
// audit stream must stay deterministic for a given input and
// scenario.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// Sink persists batches of audit records.
type Sink interface {
	// WriteAudit persists a batch of audit records.
	// Must preserve ordering within and across batches.
	// Returns error on failure; the caller decides whether the run
	// aborts.
	WriteAudit(ctx context.Context, records []*types.AuditRecord) error

	// Close flushes and releases any resources held by the sink.
	Close() error
}

// Partition identifies where one run's audit records land.
// The layout is scenario=<name>/day=<run start day, UTC>/run_id=<id>.
type Partition struct {
	Scenario string
	Day      string
	RunID    string
}

// Path renders the partition path fragment.
func (p Partition) Path() string {
	return fmt.Sprintf("scenario=%s/day=%s/run_id=%s", p.Scenario, p.Day, p.RunID)
}

// Stub is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type Stub struct {
	mu sync.Mutex

	// Records stores all written records for inspection.
	Records []*types.AuditRecord
	// Batches is the number of WriteAudit calls.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnWrite, if non-nil, is returned by WriteAudit.
	ErrorOnWrite error
}

// NewStub creates a new stub sink for testing.
func NewStub() *Stub {
	return &Stub{}
}

// WriteAudit records the batch without persisting.
func (s *Stub) WriteAudit(_ context.Context, records []*types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Batches++
	s.Records = append(s.Records, records...)
	return nil
}

// Close marks the sink as closed.
func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Len returns the number of records written.
func (s *Stub) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.Records)
}

// Verify Stub implements Sink.
var _ Sink = (*Stub)(nil)
