package engine

import "github.com/pithecene-io/assay/types"

// CommitDelta is the set of non-negative state mutations for one
// first-occurrence event, applied atomically by WindowStore.Commit.
type CommitDelta struct {
	// Attempts increments the (customer, day) attempt counter.
	Attempts int64
	// DailyAmount and WeeklyAmount add to the accepted-amount windows.
	DailyAmount  types.Money
	WeeklyAmount types.Money
	// GateAccepts names the gates whose global day counter increments.
	GateAccepts []string
}

// BuildDelta derives the commit delta from a verdict:
//
//   - the attempt counter increments unconditionally for every
//     first-occurrence event, accepted or declined;
//   - the amount windows and gate counters mutate on accept only.
//
// Replays and conflicts never reach this point; the driver commits
// nothing for them.
func (s *Scenario) BuildDelta(f Features, v types.Verdict) CommitDelta {
	delta := CommitDelta{Attempts: 1}
	if !v.Accepted() {
		return delta
	}

	delta.DailyAmount = f.EffectiveAmount
	delta.WeeklyAmount = f.EffectiveAmount
	for i := range s.gates {
		g := &s.gates[i]
		if g.appliesTo(f.Tags) {
			delta.GateAccepts = append(delta.GateAccepts, g.Name)
		}
	}
	return delta
}
