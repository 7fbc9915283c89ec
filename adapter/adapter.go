// Package adapter defines the run-completion notification boundary.
//
// Adapters publish run completion events to downstream systems. The
// CLI owns adapter lifecycle; users provide configuration only.
// Notification is best-effort and happens after the decision stream
// has fully drained; it never influences adjudication.
package adapter

import "context"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "run_completed"
	RunID           string `json:"run_id"`
	Scenario        string `json:"scenario"`
	Day             string `json:"day"`
	Outcome         string `json:"outcome"` // complete, aborted
	Timestamp       string `json:"timestamp"` // ISO 8601
	Records         int64  `json:"records"`
	Accepted        int64  `json:"accepted"`
	Declined        int64  `json:"declined"`
	Malformed       int64  `json:"malformed"`
	Replays         int64  `json:"replays"`
	Conflicts       int64  `json:"conflicts"`
	DurationMs      int64  `json:"duration_ms"`
	AuditPath       string `json:"audit_path,omitempty"`
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
