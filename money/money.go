// Package money implements integer minor-unit currency arithmetic for
// receipt amounts. All stored and computed values are whole minor units
// (pence for GBP); display strings are derived, never authoritative.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/voltgrid/receipt-engine/common"
)

// Money is an amount in minor units. The zero value is zero currency.
type Money struct {
	minor int64
}

// FromMinor builds a Money from a minor-unit count.
func FromMinor(minor int64) Money {
	return Money{minor: minor}
}

// FromMajor builds a Money from a major-unit decimal value, rounding
// half-even to the nearest minor unit.
func FromMajor(major float64) Money {
	return Money{minor: int64(math.RoundToEven(major * 100))}
}

// Parse extracts a Money from a display string such as "£14.06" or
// "GBP 14.06". Every rune except digits and the decimal separator is
// stripped before parsing. The fractional part is interpreted as minor
// units with at most two digits of precision.
func Parse(display string) (Money, error) {
	var b strings.Builder
	for _, r := range display {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return Money{}, common.NewValidationError("amount", fmt.Sprintf("no numeric value in %q", display))
	}

	wholePart := cleaned
	fracPart := ""
	if i := strings.IndexByte(cleaned, '.'); i >= 0 {
		wholePart, fracPart = cleaned[:i], cleaned[i+1:]
		if strings.ContainsRune(fracPart, '.') {
			return Money{}, common.NewValidationError("amount", fmt.Sprintf("multiple decimal separators in %q", display))
		}
	}

	var major int64
	if wholePart != "" {
		v, err := strconv.ParseInt(wholePart, 10, 64)
		if err != nil {
			return Money{}, common.NewValidationError("amount", fmt.Sprintf("cannot parse %q", display))
		}
		major = v
	}

	// Normalize the fraction to exactly two digits: "5" means 50 minor
	// units, "506" truncates to 50.
	switch {
	case len(fracPart) == 0:
		fracPart = "00"
	case len(fracPart) == 1:
		fracPart += "0"
	case len(fracPart) > 2:
		fracPart = fracPart[:2]
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return Money{}, common.NewValidationError("amount", fmt.Sprintf("cannot parse %q", display))
	}

	return Money{minor: major*100 + frac}, nil
}

// Add returns the sum of m and other.
func (m Money) Add(other Money) Money {
	return Money{minor: m.minor + other.minor}
}

// VAT returns the tax amount at the given percentage rate, rounded
// half-even to the nearest minor unit.
func (m Money) VAT(percent float64) Money {
	return Money{minor: int64(math.RoundToEven(float64(m.minor) * percent / 100))}
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 {
	return m.minor
}

// Major returns the amount in major units as a float. Display only;
// arithmetic stays in minor units.
func (m Money) Major() float64 {
	return float64(m.minor) / 100
}

// Format renders the amount with a currency symbol, e.g. "£14.06".
func (m Money) Format(symbol string) string {
	minor := m.minor
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, minor/100, minor%100)
}

// String renders the amount without a symbol.
func (m Money) String() string {
	return m.Format("")
}
