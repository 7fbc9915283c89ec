// Package engine implements the adjudication pipeline: scenario
// binding, feature derivation, the idempotency gate, windowed state,
// policy evaluation, commit control, and the decision stream driver.
//
// The driver exclusively owns the window store and the idempotency
// table for a scenario. All mutation flows through the commit
// controller; all reads flow through snapshots. Other components see
// read-only values only.
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pithecene-io/assay/types"
)

// EvalMode selects how the policy evaluator accumulates violations.
type EvalMode string

// Evaluation modes.
const (
	// EvalShortCircuit stops at the first violated rule (default).
	EvalShortCircuit EvalMode = "short_circuit"
	// EvalMultiReason evaluates every rule and reports all violations
	// in one verdict.
	EvalMultiReason EvalMode = "multi_reason"
)

// TagPrimeID marks events whose load id parses to a prime integer.
// Tags form a closed set chosen at scenario build; this is currently
// the only built-in tag.
const TagPrimeID = "is_prime_id"

// Limits holds the velocity limits of a scenario. A nil limit is
// unlimited. Present limits were validated at scenario build.
type Limits struct {
	// DailyAttempts caps first-occurrence events per (customer, UTC day).
	DailyAttempts *int64
	// DailyAmount caps accepted effective amount per (customer, UTC day).
	DailyAmount *types.Money
	// WeeklyAmount caps accepted effective amount per (customer, ISO week).
	WeeklyAmount *types.Money
}

// Multiplier scales event amounts into effective amounts.
// An empty Tag applies the multiplier to every event; otherwise only
// to events carrying the tag.
type Multiplier struct {
	Factor decimal.Decimal
	Tag    string
}

// Gate is a scenario-defined global rule evaluated before the amount
// windows. An empty Tag makes the gate apply to every event.
type Gate struct {
	// Name feeds the derived reason codes (<NAME>_AMOUNT_CAP,
	// <NAME>_DAILY_GLOBAL_LIMIT) and keys the global day counter.
	Name string
	// Tag restricts the gate to events carrying the tag.
	Tag string
	// AmountCap declines events whose effective amount exceeds it.
	AmountCap *types.Money
	// DailyAcceptCap caps accepted events per UTC day across all
	// customers.
	DailyAcceptCap *int64
}

// Spec is the scenario configuration handed to NewScenario by the
// config binding layer. Monetary fields arrive already parsed; string
// parsing and CLI/file precedence live in cli/config and cli/cmd.
type Spec struct {
	Name       string
	Limits     Limits
	Evaluation EvalMode
	// PrimeID enables the is_prime_id feature tag.
	PrimeID    bool
	Multiplier *Multiplier
	Gates      []Gate
}

// Scenario is a validated, immutable scenario binding.
// Safe to share across components; only the driver holds mutable
// state.
type Scenario struct {
	name       string
	limits     Limits
	evaluation EvalMode
	primeID    bool
	multiplier *Multiplier
	gates      []Gate
}

// ErrInvalidScenario wraps all scenario build failures.
var ErrInvalidScenario = errors.New("invalid scenario")

// NewScenario validates a Spec and builds the scenario.
// All configuration errors surface here, before any input is
// consumed; a scenario that builds cannot fail on configuration
// mid-stream.
func NewScenario(spec Spec) (*Scenario, error) {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
	}

	if spec.Name == "" {
		return nil, fail("scenario name is required")
	}

	switch spec.Evaluation {
	case "":
		spec.Evaluation = EvalShortCircuit
	case EvalShortCircuit, EvalMultiReason:
	default:
		return nil, fail("unknown evaluation mode %q", spec.Evaluation)
	}

	if spec.Limits.DailyAttempts != nil && *spec.Limits.DailyAttempts <= 0 {
		return nil, fail("daily attempt limit must be positive, got %d", *spec.Limits.DailyAttempts)
	}

	knownTag := func(tag string) error {
		switch tag {
		case "":
			return nil
		case TagPrimeID:
			if !spec.PrimeID {
				return fail("tag %q referenced but the prime_id feature is disabled", tag)
			}
			return nil
		default:
			return fail("unknown tag %q", tag)
		}
	}

	if spec.Multiplier != nil {
		if !spec.Multiplier.Factor.IsPositive() {
			return nil, fail("multiplier factor must be positive, got %s", spec.Multiplier.Factor)
		}
		if err := knownTag(spec.Multiplier.Tag); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(spec.Gates))
	for i, g := range spec.Gates {
		if g.Name == "" {
			return nil, fail("gate %d has no name", i)
		}
		if seen[g.Name] {
			return nil, fail("duplicate gate name %q", g.Name)
		}
		seen[g.Name] = true
		if err := knownTag(g.Tag); err != nil {
			return nil, err
		}
		if g.AmountCap == nil && g.DailyAcceptCap == nil {
			return nil, fail("gate %q defines no cap", g.Name)
		}
		if g.DailyAcceptCap != nil && *g.DailyAcceptCap <= 0 {
			return nil, fail("gate %q daily accept cap must be positive, got %d", g.Name, *g.DailyAcceptCap)
		}
	}

	return &Scenario{
		name:       spec.Name,
		limits:     spec.Limits,
		evaluation: spec.Evaluation,
		primeID:    spec.PrimeID,
		multiplier: spec.Multiplier,
		gates:      spec.Gates,
	}, nil
}

// Name returns the scenario name.
func (s *Scenario) Name() string { return s.name }

// Gates returns the configured gates in evaluation order.
func (s *Scenario) Gates() []Gate { return s.gates }

// appliesTo reports whether a gate's predicate holds for the given
// feature tags.
func (g *Gate) appliesTo(tags map[string]bool) bool {
	return g.Tag == "" || tags[g.Tag]
}
