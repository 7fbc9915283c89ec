package types

import "time"

// RawRecord is one ingress line plus the transport sequence number
// assigned by the reader. Seq is monotonic, starts at 1, and is the
// sole ordering authority for output.
type RawRecord struct {
	Seq  int64
	Line []byte
}

// Event is one parsed, normalized fund-load attempt.
type Event struct {
	// LoadID is the opaque load identifier. Its integer interpretation
	// is used only by feature tags, never by the core pipeline.
	LoadID string
	// CustomerID is the opaque customer identifier.
	CustomerID string
	// Time is the event instant normalized to UTC.
	Time time.Time
	// Amount is the normalized fixed-point amount, scale 2.
	Amount Money
	// RawAmount preserves the pre-normalization amount text for audit.
	RawAmount string
	// Seq is the transport sequence number of the source record.
	Seq int64
}
