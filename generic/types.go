/*
Package generic provides the domain-agnostic building blocks of the leave
ledger: calendar days and working-day arithmetic, the injected clock, the
error taxonomy, per-key locking and the audit log contract.

DESIGN PRINCIPLES:
  1. Precision: day quantities are decimal.Decimal (half days are real)
  2. Determinism: "now" always comes from a Clock
  3. One taxonomy: every failure maps to a sentinel in errors.go

SEE ALSO:
  - timeoff/: the leave domain built on these types
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY QUANTITIES
// =============================================================================

// Days converts a float to a day quantity.
func Days(n float64) decimal.Decimal {
	return decimal.NewFromFloat(n)
}

// DaysFromInt converts an integer count of days.
func DaysFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// ParseDays parses a decimal day quantity such as "2.5".
func ParseDays(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid day quantity %q: %w", s, err)
	}
	return d, nil
}

// MinDays returns the smaller of a and b.
func MinDays(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
