package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		err   bool
	}{
		{name: "plain", input: "100.00", want: "100.00"},
		{name: "no fraction", input: "42", want: "42.00"},
		{name: "single fraction digit", input: "3.5", want: "3.50"},
		{name: "zero", input: "0", want: "0.00"},
		{name: "negative rejected", input: "-1.00", err: true},
		{name: "overscaled rejected", input: "1.001", err: true},
		{name: "not a number", input: "12x.00", err: true},
		{name: "empty", input: "", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMoney(tt.input)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.input, m)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, m)
			}
		})
	}
}

func TestParseMoney_NegativeSentinel(t *testing.T) {
	_, err := ParseMoney("-0.01")
	if !errors.Is(err, ErrNegativeMoney) {
		t.Fatalf("expected ErrNegativeMoney, got %v", err)
	}
}

func TestMoney_AddAndCmp(t *testing.T) {
	a := MustMoney("4999.99")
	b := MustMoney("0.01")
	limit := MustMoney("5000.00")

	sum := a.Add(b)
	if sum.Cmp(limit) != 0 {
		t.Errorf("expected %s == %s", sum, limit)
	}
	if sum.Add(b).Cmp(limit) != 1 {
		t.Errorf("expected %s > %s", sum.Add(b), limit)
	}
}

func TestMoney_MulRound_BankersRounding(t *testing.T) {
	// Half-to-even: 0.125 rounds to 0.12, 0.135 rounds to 0.14.
	half := decimal.RequireFromString("0.5")
	if got := MustMoney("0.25").MulRound(half).String(); got != "0.12" {
		t.Errorf("0.25 * 0.5 = %s, want 0.12", got)
	}
	if got := MustMoney("0.27").MulRound(half).String(); got != "0.14" {
		t.Errorf("0.27 * 0.5 = %s, want 0.14", got)
	}
	if got := MustMoney("100.00").MulRound(decimal.RequireFromString("1.5")).String(); got != "150.00" {
		t.Errorf("100.00 * 1.5 = %s, want 150.00", got)
	}
}

func TestMoney_MinorUnits(t *testing.T) {
	if got := MustMoney("1234.56").MinorUnits(); got != 123456 {
		t.Errorf("expected 123456, got %d", got)
	}
	if got := (Money{}).MinorUnits(); got != 0 {
		t.Errorf("zero value should have 0 minor units, got %d", got)
	}
	if got := MoneyFromMinorUnits(10001).String(); got != "100.01" {
		t.Errorf("expected 100.01, got %s", got)
	}
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	m := MustMoney("5000.00")
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"5000.00"` {
		t.Errorf("expected \"5000.00\", got %s", data)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Cmp(m) != 0 {
		t.Errorf("round trip changed value: %s != %s", back, m)
	}

	if err := json.Unmarshal([]byte(`42`), &back); err == nil {
		t.Error("expected error for non-string money")
	}
}
