package types

import "strings"

// Status is the adjudication outcome for one record.
type Status string

// Status constants.
const (
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// ReasonCode labels why a record was declined or annotated.
// Accepted first-occurrence decisions carry no reasons.
type ReasonCode string

// Fixed reason codes.
const (
	ReasonMalformedInput    ReasonCode = "MALFORMED_INPUT"
	ReasonDuplicateReplay   ReasonCode = "DUPLICATE_ID_REPLAY"
	ReasonDuplicateConflict ReasonCode = "DUPLICATE_ID_CONFLICT"
	ReasonDailyAttemptLimit ReasonCode = "DAILY_ATTEMPT_LIMIT"
	ReasonDailyAmountLimit  ReasonCode = "DAILY_AMOUNT_LIMIT"
	ReasonWeeklyAmountLimit ReasonCode = "WEEKLY_AMOUNT_LIMIT"
)

// GateAmountCapReason derives the per-event amount-cap reason code for
// a named scenario gate, e.g. gate "prime" yields PRIME_AMOUNT_CAP.
func GateAmountCapReason(gate string) ReasonCode {
	return ReasonCode(strings.ToUpper(gate) + "_AMOUNT_CAP")
}

// GateDailyLimitReason derives the global per-day accept-cap reason
// code for a named scenario gate, e.g. PRIME_DAILY_GLOBAL_LIMIT.
func GateDailyLimitReason(gate string) ReasonCode {
	return ReasonCode(strings.ToUpper(gate) + "_DAILY_GLOBAL_LIMIT")
}

// Verdict is the policy evaluator outcome: accepted, or declined with
// one or more ordered reason codes. Policy outcomes are values, never
// control flow.
type Verdict struct {
	Status  Status
	Reasons []ReasonCode
}

// Accepted reports whether the verdict status is ACCEPTED.
func (v Verdict) Accepted() bool {
	return v.Status == StatusAccepted
}

// WindowSnapshot is an immutable view of the window counters relevant
// to one event, read atomically before policy evaluation. GateAccepts
// holds the global per-day accept counter for each configured gate.
type WindowSnapshot struct {
	DailyAttempts int64            `json:"daily_attempts" msgpack:"daily_attempts"`
	DailyAmount   Money            `json:"daily_amount" msgpack:"daily_amount"`
	WeeklyAmount  Money            `json:"weekly_amount" msgpack:"weekly_amount"`
	GateAccepts   map[string]int64 `json:"gate_accepts,omitempty" msgpack:"gate_accepts,omitempty"`
}

// Decision is the adjudication result bound to one input position.
// Exactly one Decision exists per Seq, emitted in Seq order.
type Decision struct {
	Seq        int64
	LoadID     string
	CustomerID string
	Status     Status
	// Reasons is the ordered list of reason codes; empty on an accepted
	// first occurrence. An accepted replay carries only the
	// DUPLICATE_ID_REPLAY marker.
	Reasons []ReasonCode
	// EffectiveAmount is the post-multiplier amount for first
	// occurrences; zero-valued for malformed, replay, and conflict
	// records, which never reach feature derivation.
	EffectiveAmount Money
	// SnapshotBefore and SnapshotAfter capture window state around the
	// commit. Equal for records that commit nothing.
	SnapshotBefore WindowSnapshot
	SnapshotAfter  WindowSnapshot
	// CanonicalSeq is Seq for first occurrences; for replays and
	// conflicts it points at the canonical event for the load id.
	CanonicalSeq int64
}

// Accepted reports whether the decision status is ACCEPTED.
func (d *Decision) Accepted() bool {
	return d.Status == StatusAccepted
}

// AuditRecord is the rich per-decision record for the optional audit
// stream. Field tags cover both audit encodings (JSONL and msgpack
// frames); the shape must stay deterministic when enabled.
type AuditRecord struct {
	Seq             int64          `json:"seq" msgpack:"seq"`
	LoadID          string         `json:"id" msgpack:"id"`
	CustomerID      string         `json:"customer_id" msgpack:"customer_id"`
	Status          Status         `json:"status" msgpack:"status"`
	Reasons         []string       `json:"reasons" msgpack:"reasons"`
	EffectiveAmount string         `json:"effective_amount" msgpack:"effective_amount"`
	SnapshotBefore  WindowSnapshot `json:"snapshot_before" msgpack:"snapshot_before"`
	SnapshotAfter   WindowSnapshot `json:"snapshot_after" msgpack:"snapshot_after"`
	CanonicalSeq    int64          `json:"canonical_seq" msgpack:"canonical_seq"`
}

// Audit converts a Decision into its audit-stream representation.
func (d *Decision) Audit() *AuditRecord {
	reasons := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		reasons[i] = string(r)
	}
	return &AuditRecord{
		Seq:             d.Seq,
		LoadID:          d.LoadID,
		CustomerID:      d.CustomerID,
		Status:          d.Status,
		Reasons:         reasons,
		EffectiveAmount: d.EffectiveAmount.String(),
		SnapshotBefore:  d.SnapshotBefore,
		SnapshotAfter:   d.SnapshotAfter,
		CanonicalSeq:    d.CanonicalSeq,
	}
}
