package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"

	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

// Money is a fixed-point amount: integer minor units plus a decimal scale.
// Amounts are never held as binary floating point, so arithmetic and splits
// cannot leak or invent a minor unit.
type Money struct {
	units int64
	scale int32
}

// FromMinorUnits builds a Money directly from minor units (e.g. cents).
func FromMinorUnits(units int64, scale int32) Money {
	return Money{units: units, scale: scale}
}

// FromMajorUnits builds a Money from a decimal amount in major units.
// The value must be non-negative and must not carry more fractional digits
// than the requested scale.
func FromMajorUnits(value decimal.Decimal, scale int32) (Money, error) {
	if scale < 0 {
		return Money{}, customError.WrapInvalidAmount(fmt.Sprintf("scale must be non-negative, got %d", scale))
	}
	if value.IsNegative() {
		return Money{}, customError.WrapInvalidAmount(fmt.Sprintf("amount must be non-negative, got %s", value))
	}
	shifted := value.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Money{}, customError.WrapInvalidAmount(fmt.Sprintf("amount %s has more precision than scale %d", value, scale))
	}
	return Money{units: shifted.IntPart(), scale: scale}, nil
}

// FromDecimal builds a Money from a decimal, inferring the scale from the
// value's own exponent. Used when unmarshaling stored documents.
func FromDecimal(value decimal.Decimal) (Money, error) {
	scale := int32(0)
	if value.Exponent() < 0 {
		scale = -value.Exponent()
	}
	return FromMajorUnits(value, scale)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.units, -m.scale)
}

// MinorUnits returns the raw minor-unit count at the Money's scale.
func (m Money) MinorUnits() int64 {
	return m.units
}

// Scale returns the number of decimal places.
func (m Money) Scale() int32 {
	return m.scale
}

func (m Money) IsZero() bool {
	return m.units == 0
}

func (m Money) IsPositive() bool {
	return m.units > 0
}

// Cmp compares two amounts, aligning scales. Returns -1, 0 or 1.
func (m Money) Cmp(o Money) int {
	a, b := align(m, o)
	switch {
	case a.units < b.units:
		return -1
	case a.units > b.units:
		return 1
	}
	return 0
}

// Equal reports whether the two amounts are numerically equal.
func (m Money) Equal(o Money) bool {
	return m.Cmp(o) == 0
}

// Add returns m + o at the larger of the two scales.
func (m Money) Add(o Money) Money {
	a, b := align(m, o)
	return Money{units: a.units + b.units, scale: a.scale}
}

// Sub returns m - o. Fails when the result would be negative.
func (m Money) Sub(o Money) (Money, error) {
	a, b := align(m, o)
	if a.units < b.units {
		return Money{}, customError.WrapInvalidAmount(fmt.Sprintf("subtracting %s from %s yields a negative amount", o, m))
	}
	return Money{units: a.units - b.units, scale: a.scale}, nil
}

// SplitEvenly divides the amount into n shares whose sum equals the original
// exactly. The remainder in minor units is handed out one unit at a time to
// the first shares, so no share exceeds the ideal share by more than one
// minor unit.
func (m Money) SplitEvenly(n int) ([]Money, error) {
	if n <= 0 {
		return nil, customError.WrapInvalidAmount(fmt.Sprintf("cannot split into %d shares", n))
	}
	if m.units < 0 {
		return nil, customError.WrapInvalidAmount(fmt.Sprintf("cannot split negative amount %s", m))
	}
	base := m.units / int64(n)
	remainder := m.units % int64(n)

	shares := make([]Money, n)
	for i := range shares {
		units := base
		if int64(i) < remainder {
			units++
		}
		shares[i] = Money{units: units, scale: m.scale}
	}
	return shares, nil
}

func (m Money) String() string {
	return m.Decimal().String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return m.Decimal().MarshalJSON()
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer so Money maps to a NUMERIC column.
func (m Money) Value() (driver.Value, error) {
	return m.Decimal().Value()
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	parsed, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// align rescales both operands to the larger scale.
func align(a, b Money) (Money, Money) {
	for a.scale < b.scale {
		a.units *= 10
		a.scale++
	}
	for b.scale < a.scale {
		b.units *= 10
		b.scale++
	}
	return a, b
}
