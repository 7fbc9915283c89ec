package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/assay/types"
)

// AuditFileName is the file name of the JSONL audit stream within a
// partition directory.
const AuditFileName = "audit.jsonl"

// FileSink writes the audit stream as JSON lines under a partitioned
// directory: <root>/scenario=<s>/day=<d>/run_id=<r>/audit.jsonl.
type FileSink struct {
	file *os.File
	w    *bufio.Writer
	path string
}

// NewFileSink creates the partition directory under root and opens
// the audit file for writing. An existing audit file for the same
// partition is truncated: a rerun replaces its own artifacts.
func NewFileSink(root string, p Partition) (*FileSink, error) {
	dir := filepath.Join(root, filepath.FromSlash(p.Path()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit partition %s: %w", dir, err)
	}

	path := filepath.Join(dir, AuditFileName)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audit file %s: %w", path, err)
	}

	return &FileSink{file: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the audit file path.
func (s *FileSink) Path() string {
	return s.path
}

// WriteAudit appends the batch as JSON lines.
func (s *FileSink) WriteAudit(_ context.Context, records []*types.AuditRecord) error {
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record at seq %d: %w", rec.Seq, err)
		}
		if _, err := s.w.Write(data); err != nil {
			return fmt.Errorf("write audit record at seq %d: %w", rec.Seq, err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write audit record at seq %d: %w", rec.Seq, err)
		}
	}
	return nil
}

// Close flushes and closes the audit file.
func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("flush audit file %s: %w", s.path, err)
	}
	return s.file.Close()
}

// Verify FileSink implements Sink.
var _ Sink = (*FileSink)(nil)
