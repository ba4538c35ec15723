package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is an amount in minor currency units (AUD cents)
type Cents int64

var hundred = decimal.NewFromInt(100)

// Decimal returns the amount in dollars
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats the amount as dollars, e.g. "$60.00"
func (c Cents) String() string {
	d := c.Decimal()
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// ParseDollars parses "60", "60.5" or "$1,200.00" into cents.
// More than two decimal places is rejected rather than rounded.
func ParseDollars(s string) (Cents, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	return Cents(cents.IntPart()), nil
}
