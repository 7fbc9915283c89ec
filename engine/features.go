package engine

import (
	"math/big"
	"strings"

	"github.com/pithecene-io/assay/types"
)

// Features are the derived per-event inputs to policy evaluation.
// Derivation is a pure function of the event and the scenario; it
// must not read or mutate window state.
type Features struct {
	// EffectiveAmount is the amount after the scenario multiplier,
	// rounded back to scale 2 with banker's rounding. Equals the raw
	// amount when no multiplier applies.
	EffectiveAmount types.Money
	// Tags are the boolean feature labels for this event.
	Tags map[string]bool
}

// DeriveFeatures computes the features for one event.
func (s *Scenario) DeriveFeatures(ev *types.Event) Features {
	tags := make(map[string]bool, 1)
	if s.primeID {
		tags[TagPrimeID] = isPrimeID(ev.LoadID)
	}

	effective := ev.Amount
	if s.multiplier != nil && (s.multiplier.Tag == "" || tags[s.multiplier.Tag]) {
		effective = ev.Amount.MulRound(s.multiplier.Factor)
	}

	return Features{EffectiveAmount: effective, Tags: tags}
}

// isPrimeID reports whether the load id is a non-negative integer
// that is prime. Identifiers that are not pure decimal digit strings
// are not integers for this purpose and yield false.
//
// big.Int.ProbablyPrime is exact below 2^64 and deterministic above
// it, which keeps the tag audit-stable for arbitrarily long ids.
func isPrimeID(loadID string) bool {
	if loadID == "" || strings.IndexFunc(loadID, notDigit) >= 0 {
		return false
	}
	n, ok := new(big.Int).SetString(loadID, 10)
	if !ok {
		return false
	}
	return n.ProbablyPrime(20)
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}
