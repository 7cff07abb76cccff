package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every stored amount.
const Places = 2

// Zero is the zero amount.
var Zero = decimal.Zero

// Normalize rounds an amount to the stored precision.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Abs returns the normalized absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal {
	return Normalize(d.Abs())
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds up the given amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Parse reads a decimal string such as "37.50" and normalizes it.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Normalize(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String formats an amount with exactly two fractional digits.
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}
