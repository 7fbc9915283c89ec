package engine

import "github.com/pithecene-io/assay/types"

// Evaluate applies the scenario rule set to one first-occurrence
// event, given its features and a window snapshot.
//
// Rule order is strict and deterministic:
//  1. daily attempt count
//  2. scenario global gates (per-gate amount cap, then global per-day
//     accept cap), in configuration order
//  3. daily accepted amount
//  4. weekly accepted amount
//
// All comparisons are strict: reaching a limit exactly is accepted.
// In short-circuit mode the first violation decides the verdict; in
// multi-reason mode every violated rule contributes a reason code, in
// rule order.
func (s *Scenario) Evaluate(f Features, snap types.WindowSnapshot) types.Verdict {
	var reasons []types.ReasonCode
	decline := func(r types.ReasonCode) bool {
		reasons = append(reasons, r)
		return s.evaluation == EvalShortCircuit
	}

	verdict := func() types.Verdict {
		if len(reasons) == 0 {
			return types.Verdict{Status: types.StatusAccepted}
		}
		return types.Verdict{Status: types.StatusDeclined, Reasons: reasons}
	}

	if l := s.limits.DailyAttempts; l != nil && snap.DailyAttempts+1 > *l {
		if decline(types.ReasonDailyAttemptLimit) {
			return verdict()
		}
	}

	for i := range s.gates {
		g := &s.gates[i]
		if !g.appliesTo(f.Tags) {
			continue
		}
		if g.AmountCap != nil && f.EffectiveAmount.Cmp(*g.AmountCap) > 0 {
			if decline(types.GateAmountCapReason(g.Name)) {
				return verdict()
			}
		}
		if g.DailyAcceptCap != nil && snap.GateAccepts[g.Name]+1 > *g.DailyAcceptCap {
			if decline(types.GateDailyLimitReason(g.Name)) {
				return verdict()
			}
		}
	}

	if l := s.limits.DailyAmount; l != nil && snap.DailyAmount.Add(f.EffectiveAmount).Cmp(*l) > 0 {
		if decline(types.ReasonDailyAmountLimit) {
			return verdict()
		}
	}

	if l := s.limits.WeeklyAmount; l != nil && snap.WeeklyAmount.Add(f.EffectiveAmount).Cmp(*l) > 0 {
		if decline(types.ReasonWeeklyAmountLimit) {
			return verdict()
		}
	}

	return verdict()
}
