/*
Package generic provides the domain-agnostic building blocks of the leave engine.

KEY CONCEPTS:
  - Amount:     A quantity of days, decimal-backed (AL accrues in 1.5-day steps)
  - TimePoint:  A calendar day
  - Period:     An inclusive date range (requests, contract-year windows)
  - Calendar:   The working-day oracle (Sunday + holiday set)
  - Errors:     The validation / authorization / conflict / not-found taxonomy

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal avoids float drift in balances and carry
  2. Purity: nothing in this package performs I/O
  3. One rule for "working day", used everywhere

SEE ALSO:
  - time.go: TimePoint and Calendar
  - period.go: Period
  - errors.go: error taxonomy
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity of days
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func Days(value float64) Amount { return Amount{Value: decimal.NewFromFloat(value)} }
func DaysInt(value int) Amount  { return Amount{Value: decimal.NewFromInt(int64(value))} }
func ZeroDays() Amount          { return Amount{Value: decimal.Zero} }

// ParseDays parses a decimal string, e.g. "-2.5".
func ParseDays(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, NewValidationError("amount", "invalid decimal %q", s)
	}
	return Amount{Value: d}, nil
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Float64() float64             { return a.Value.InexactFloat64() }
func (a Amount) String() string               { return a.Value.String() }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MarshalJSON writes the amount as a bare JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Value.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Value.UnmarshalJSON(b)
}
