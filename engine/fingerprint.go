package engine

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/pithecene-io/assay/types"
)

// Fingerprint is the deterministic digest of an event's payload
// fields, excluding the load identifier. Two events collide on
// fingerprint iff every non-identifier field matches exactly.
type Fingerprint [32]byte

// String returns the lowercase hex rendering of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ComputeFingerprint hashes the canonical byte encoding of
// (customer_id, event_time, amount):
//
//	customer_id UTF-8 bytes | 0x00 | int64 BE UTC unix nanoseconds |
//	int64 BE amount in minor units
//
// The encoding is platform-independent, so fingerprints are stable
// across architectures and releases; replay/conflict classification
// depends on that stability.
func ComputeFingerprint(ev *types.Event) Fingerprint {
	buf := make([]byte, 0, len(ev.CustomerID)+17)
	buf = append(buf, ev.CustomerID...)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint64(buf, uint64(ev.Time.UTC().UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(ev.Amount.MinorUnits()))
	return blake3.Sum256(buf)
}
