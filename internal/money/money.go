// Package money holds currency arithmetic for pricing and settlement.
// Balances are stored as float64 columns, but every split is computed in
// decimal and rounded once at the split point so fee math never compounds
// binary floating point error.
package money

import "github.com/shopspring/decimal"

// UrgentSurchargeRate is the markup applied to urgent gigs.
const UrgentSurchargeRate = 0.25

// GigPrice returns the total owed by the requester: the base price plus the
// urgent surcharge when applicable.
func GigPrice(base float64, urgent bool) float64 {
	if !urgent {
		return round2(decimal.NewFromFloat(base))
	}
	d := decimal.NewFromFloat(base)
	surcharge := d.Mul(decimal.NewFromFloat(UrgentSurchargeRate))
	return round2(d.Add(surcharge))
}

// PayoutNet returns the deliverer's earnings on a gross price at the given
// platform fee rate: gross × (1 − feeRate).
func PayoutNet(gross, feeRate float64) float64 {
	g := decimal.NewFromFloat(gross)
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(feeRate))
	return round2(g.Mul(keep))
}

// Bonus returns amount × pct, used for coupon and referee bonuses.
// pct is a fraction (0.10 = 10%).
func Bonus(amount, pct float64) float64 {
	return round2(decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(pct)))
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
