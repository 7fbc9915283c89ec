package engine

import (
	"fmt"

	"github.com/pithecene-io/assay/types"
)

// Classification routes a record through the pipeline based on its
// load identifier history.
type Classification int

// Classifications.
const (
	// ClassFirstOccurrence is the first sighting of a load id; the
	// record proceeds through features, evaluation, and commit.
	ClassFirstOccurrence Classification = iota
	// ClassReplay matches the canonical fingerprint; the canonical
	// decision is mirrored and no state mutates.
	ClassReplay
	// ClassConflict carries a known id with a different payload; the
	// record is declined and no state mutates.
	ClassConflict
)

// CanonicalRecord is the immutable per-load-id record installed on
// first occurrence. There is no transition out of the canonical
// state: later conflicting records never revoke a canonical decision.
type CanonicalRecord struct {
	Fingerprint Fingerprint
	Status      types.Status
	Reasons     []types.ReasonCode
	Seq         int64
}

// IdempotencyTable classifies records by load identifier.
//
// The table does not install records during classification: the
// canonical decision is only known after evaluation and commit, so
// the driver installs it once the decision is final. In streaming
// mode a first occurrence must be adjudicated as real because the
// future is unknown.
type IdempotencyTable struct {
	records map[string]*CanonicalRecord
}

// NewIdempotencyTable creates an empty table.
func NewIdempotencyTable() *IdempotencyTable {
	return &IdempotencyTable{records: make(map[string]*CanonicalRecord)}
}

// Classify returns the classification for a load id and fingerprint,
// along with the canonical record for replays and conflicts (nil for
// first occurrences).
func (t *IdempotencyTable) Classify(loadID string, fp Fingerprint) (Classification, *CanonicalRecord) {
	canonical, ok := t.records[loadID]
	if !ok {
		return ClassFirstOccurrence, nil
	}
	if canonical.Fingerprint == fp {
		return ClassReplay, canonical
	}
	return ClassConflict, canonical
}

// Install records the canonical decision for a first-occurrence load
// id. Installing over an existing record is an invariant breach.
func (t *IdempotencyTable) Install(loadID string, rec *CanonicalRecord) error {
	if _, exists := t.records[loadID]; exists {
		return fmt.Errorf("canonical record already installed for load id %q", loadID)
	}
	t.records[loadID] = rec
	return nil
}

// Len returns the number of canonical records.
func (t *IdempotencyTable) Len() int {
	return len(t.records)
}
