// Package money implements exact integer arithmetic for laari, the minor
// currency unit (1/100 of a rufiyaa). All authoritative amounts in the system
// are int64 laari; the legacy decimal columns are derived, never computed on.
package money

import "math"

// Laari is an amount in minor currency units.
type Laari = int64

// Percent applies a basis-point percentage to an amount. 10000 bps = 100%.
// The result is truncated toward zero, matching integer division on totals.
func Percent(amount Laari, bps int64) Laari {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return amount * bps / 10000
}

// Cap limits a discount so it can never exceed the amount it discounts.
func Cap(discount, limit Laari) Laari {
	if discount < 0 {
		return 0
	}
	if discount > limit {
		return limit
	}
	return discount
}

// ClampZero floors negative totals at zero.
func ClampZero(amount Laari) Laari {
	if amount < 0 {
		return 0
	}
	return amount
}

// ToDecimal mirrors a laari amount into the legacy decimal representation.
func ToDecimal(amount Laari) float64 {
	return float64(amount) / 100
}

// FromDecimal converts a legacy decimal amount to laari, rounding half away
// from zero. Inputs whose float64 form already sits below the decimal
// midpoint (1.005 reads as 1.00499…) round down; that is the closest any
// binary float conversion can get.
func FromDecimal(amount float64) Laari {
	return Laari(math.Round(amount * 100))
}
