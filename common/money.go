package common

import "github.com/shopspring/decimal"

// FloorToCents rounds d down toward zero at the cent, the rounding
// convention platform fee calculations use throughout.
func FloorToCents(d decimal.Decimal) decimal.Decimal {
	cents := d.Mul(decimal.NewFromInt(100))
	truncated := cents.Truncate(0)
	return truncated.Div(decimal.NewFromInt(100))
}

// SplitFee returns (workerAmount, platformFee) for a gross total, such
// that workerAmount + platformFee == total always holds.
// feeRate is e.g. decimal.NewFromFloat(0.20).
func SplitFee(total, feeRate decimal.Decimal) (worker, fee decimal.Decimal) {
	fee = FloorToCents(total.Mul(feeRate))
	worker = total.Sub(fee)
	return worker, fee
}
