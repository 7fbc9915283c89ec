package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// MoneyScale is the fixed-point scale for all monetary values.
// Every Money carries exactly two fraction digits; arithmetic never
// leaves this scale except transiently inside multiplier application,
// which rounds back with banker's rounding.
const MoneyScale = 2

// ErrNegativeMoney is returned when a parsed amount is negative.
var ErrNegativeMoney = errors.New("amount must not be negative")

// ErrMoneyScale is returned when a parsed amount carries more than
// MoneyScale fraction digits.
var ErrMoneyScale = errors.New("amount exceeds fixed-point scale")

// Money is a non-negative fixed-point monetary amount with scale 2.
// The zero value is 0.00 and ready to use.
//
// Money is deliberately a value type: window counters and snapshots
// copy freely without aliasing the underlying decimal.
type Money struct {
	d decimal.Decimal
}

// ParseMoney parses a plain decimal string (no currency tokens) into
// Money. Negative amounts and amounts with more than two fraction
// digits are rejected; both indicate malformed input rather than a
// value to silently round.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return Money{}, ErrNegativeMoney
	}
	if d.Exponent() < -MoneyScale {
		return Money{}, fmt.Errorf("%w: %q", ErrMoneyScale, s)
	}
	return Money{d: d}, nil
}

// MustMoney parses s and panics on error. Test and configuration
// literal helper only.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromMinorUnits builds Money from an integer count of minor
// units (cents).
func MoneyFromMinorUnits(units int64) Money {
	return Money{d: decimal.New(units, -MoneyScale)}
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

// Cmp compares m and o: -1 if m < o, 0 if equal, 1 if m > o.
func (m Money) Cmp(o Money) int {
	return m.d.Cmp(o.d)
}

// IsZero reports whether m is 0.00.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// MulRound multiplies m by factor and rounds the result back to scale
// 2 using banker's rounding (round half to even). This is the only
// place rounding occurs on a money path.
func (m Money) MulRound(factor decimal.Decimal) Money {
	return Money{d: m.d.Mul(factor).RoundBank(MoneyScale)}
}

// MinorUnits returns the amount as an integer count of minor units.
// This is the canonical integer representation used for fingerprint
// encoding.
func (m Money) MinorUnits() int64 {
	return m.d.Shift(MoneyScale).IntPart()
}

// String renders the amount with exactly two fraction digits, e.g.
// "1000.00". This rendering is canonical: it feeds audit records and
// fingerprint-adjacent text, so it must be stable.
func (m Money) String() string {
	return m.d.StringFixed(MoneyScale)
}

// MarshalJSON renders Money as a JSON string with fixed scale.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string form of Money.
func (m *Money) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("money must be a JSON string, got %s", data)
	}
	parsed, err := ParseMoney(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// EncodeMsgpack renders Money as its canonical string for the binary
// audit encoding.
func (m Money) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(m.String())
}

// DecodeMsgpack parses the canonical string form of Money.
func (m *Money) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Verify Money implements the msgpack codec interfaces.
var (
	_ msgpack.CustomEncoder = Money{}
	_ msgpack.CustomDecoder = (*Money)(nil)
)
