package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pithecene-io/assay/types"
)

func int64p(v int64) *int64 { return &v }

func moneyp(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

// baselineSpec mirrors the default velocity configuration: 3 attempts
// and 5000.00 daily, 20000.00 weekly.
func baselineSpec() Spec {
	return Spec{
		Name: "baseline",
		Limits: Limits{
			DailyAttempts: int64p(3),
			DailyAmount:   moneyp("5000.00"),
			WeeklyAmount:  moneyp("20000.00"),
		},
	}
}

func mustScenario(t *testing.T, spec Spec) *Scenario {
	t.Helper()
	sc, err := NewScenario(spec)
	if err != nil {
		t.Fatalf("build scenario: %v", err)
	}
	return sc
}

func TestNewScenario_Valid(t *testing.T) {
	sc := mustScenario(t, baselineSpec())
	if sc.Name() != "baseline" {
		t.Errorf("unexpected name %q", sc.Name())
	}
}

func TestNewScenario_DefaultsToShortCircuit(t *testing.T) {
	sc := mustScenario(t, baselineSpec())
	if sc.evaluation != EvalShortCircuit {
		t.Errorf("expected short_circuit default, got %q", sc.evaluation)
	}
}

func TestNewScenario_BuildFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"empty name", func(s *Spec) { s.Name = "" }},
		{"zero attempt limit", func(s *Spec) { s.Limits.DailyAttempts = int64p(0) }},
		{"negative attempt limit", func(s *Spec) { s.Limits.DailyAttempts = int64p(-1) }},
		{"unknown evaluation mode", func(s *Spec) { s.Evaluation = "eager" }},
		{"zero multiplier factor", func(s *Spec) {
			s.Multiplier = &Multiplier{Factor: decimal.Zero}
		}},
		{"multiplier tag without feature", func(s *Spec) {
			s.Multiplier = &Multiplier{Factor: decimal.NewFromInt(2), Tag: TagPrimeID}
		}},
		{"unknown multiplier tag", func(s *Spec) {
			s.PrimeID = true
			s.Multiplier = &Multiplier{Factor: decimal.NewFromInt(2), Tag: "is_blessed"}
		}},
		{"unnamed gate", func(s *Spec) {
			s.Gates = []Gate{{AmountCap: moneyp("1.00")}}
		}},
		{"duplicate gate names", func(s *Spec) {
			s.Gates = []Gate{
				{Name: "g", AmountCap: moneyp("1.00")},
				{Name: "g", DailyAcceptCap: int64p(1)},
			}
		}},
		{"gate without caps", func(s *Spec) {
			s.Gates = []Gate{{Name: "g"}}
		}},
		{"gate tag without feature", func(s *Spec) {
			s.Gates = []Gate{{Name: "g", Tag: TagPrimeID, AmountCap: moneyp("1.00")}}
		}},
		{"non-positive gate accept cap", func(s *Spec) {
			s.Gates = []Gate{{Name: "g", DailyAcceptCap: int64p(0)}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := baselineSpec()
			tt.mutate(&spec)
			_, err := NewScenario(spec)
			if !errors.Is(err, ErrInvalidScenario) {
				t.Fatalf("expected ErrInvalidScenario, got %v", err)
			}
		})
	}
}

func TestNewScenario_UnlimitedScenario(t *testing.T) {
	// All limits absent is a valid scenario: everything non-malformed
	// and non-duplicate is accepted.
	if _, err := NewScenario(Spec{Name: "open"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
