// Package money implements BRL amounts on fixed-point decimals.
//
// Amounts are kept at two decimal places. Sums are exact; divisions round with
// banker's rounding (half to even) so repeated allocations do not drift.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	dErrors "irpf/pkg/domain-errors"
)

// Currency is the implicit currency of every amount.
const Currency = gomoney.BRL

const places = 2

// MaxIntegerDigits bounds the integer part so amounts fit NUMERIC(18, 2).
const MaxIntegerDigits = 16

const (
	maxInputLen = 64
	minExponent = -32
)

// Amount is a BRL value with two decimal places.
type Amount struct {
	value decimal.Decimal
}

// Zero is the additive identity.
func Zero() Amount { return Amount{value: decimal.Zero} }

// New wraps a decimal, rounding to cents with banker's rounding.
func New(d decimal.Decimal) Amount { return Amount{value: d.RoundBank(places)} }

// FromCents builds an amount from an integer number of centavos.
func FromCents(cents int64) Amount { return Amount{value: decimal.New(cents, -places)} }

// Parse reads a decimal string such as "1234.56". More than two fractional
// digits is rejected rather than silently rounded, and so is an integer part
// longer than MaxIntegerDigits.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	if len(s) > maxInputLen {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount is too long")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "invalid amount: "+s)
	}
	// Checked before any rescaling, which costs time proportional to the exponent.
	exp := int(d.Exponent())
	if exp > MaxIntegerDigits || exp < minExponent || d.NumDigits()+exp > MaxIntegerDigits {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("amount must have at most %d integer digits", MaxIntegerDigits))
	}
	if d.Exponent() < -places && !d.Equal(d.Truncate(places)) {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount must have at most two decimal places")
	}
	return New(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal { return a.value }
func (a Amount) Add(b Amount) Amount      { return Amount{value: a.value.Add(b.value)} }
func (a Amount) Sub(b Amount) Amount      { return Amount{value: a.value.Sub(b.value)} }
func (a Amount) Neg() Amount              { return Amount{value: a.value.Neg()} }
func (a Amount) Abs() Amount              { return Amount{value: a.value.Abs()} }
func (a Amount) IsZero() bool             { return a.value.IsZero() }
func (a Amount) IsNegative() bool         { return a.value.IsNegative() }
func (a Amount) IsPositive() bool         { return a.value.IsPositive() }
func (a Amount) Equal(b Amount) bool      { return a.value.Equal(b.value) }
func (a Amount) Cmp(b Amount) int         { return a.value.Cmp(b.value) }
func (a Amount) GreaterThan(b Amount) bool {
	return a.value.GreaterThan(b.value)
}

// Cents returns the amount in centavos.
func (a Amount) Cents() int64 {
	return a.value.Shift(places).IntPart()
}

// DivRound divides by n with banker's rounding to cents.
func (a Amount) DivRound(n int64) Amount {
	if n == 0 {
		panic("money: division by zero")
	}
	return Amount{value: a.value.Div(decimal.NewFromInt(n)).RoundBank(places)}
}

// MulRatio multiplies by num/den with banker's rounding to cents.
func (a Amount) MulRatio(num, den Amount) Amount {
	if den.IsZero() {
		return Zero()
	}
	return Amount{value: a.value.Mul(num.value).Div(den.value).RoundBank(places)}
}

// Sum adds amounts exactly.
func Sum(amounts ...Amount) Amount {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Average returns the mean of amounts (e.g. average ticket), banker's rounded.
func Average(amounts ...Amount) Amount {
	if len(amounts) == 0 {
		return Zero()
	}
	return Sum(amounts...).DivRound(int64(len(amounts)))
}

// Allocate splits a proportionally to weights. Every share is banker's
// rounded and the residual cent difference lands on the last share, so the
// shares always add back to a exactly.
func (a Amount) Allocate(weights ...Amount) []Amount {
	if len(weights) == 0 {
		return nil
	}
	total := Sum(weights...)
	shares := make([]Amount, len(weights))
	allocated := Zero()
	for i, w := range weights[:len(weights)-1] {
		shares[i] = a.MulRatio(w, total)
		allocated = allocated.Add(shares[i])
	}
	shares[len(shares)-1] = a.Sub(allocated)
	return shares
}

// String renders the amount with exactly two decimal places ("1234.50").
func (a Amount) String() string {
	return a.value.StringFixed(places)
}

// Display renders the amount for people, e.g. "R$1.234,50".
func (a Amount) Display() string {
	return gomoney.New(a.Cents(), Currency).Display()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = Zero()
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer for NUMERIC(18,2) columns.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan amount: %w", err)
	}
	*a = New(d)
	return nil
}
