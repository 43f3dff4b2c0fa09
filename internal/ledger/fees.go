package ledger

import "github.com/shopspring/decimal"

// FeeSchedule computes the commission for a trade of the given gross amount.
// The schedule is a deployment concern; the engine only requires that it is
// deterministic for a given amount.
type FeeSchedule interface {
	Fee(totalAmount decimal.Decimal) decimal.Decimal
}

// ProportionalFee charges a fixed rate of the gross amount with an optional
// minimum, rounded to 2 decimal places.
type ProportionalFee struct {
	Rate    decimal.Decimal // e.g. 0.002 for 20 bps
	Minimum decimal.Decimal
}

func (f ProportionalFee) Fee(totalAmount decimal.Decimal) decimal.Decimal {
	fee := totalAmount.Abs().Mul(f.Rate).Round(2)
	if fee.LessThan(f.Minimum) {
		return f.Minimum
	}
	return fee
}

// NoFee charges nothing. Used in tests and free-play tournaments.
type NoFee struct{}

func (NoFee) Fee(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// FixedFee charges the same commission on every trade.
type FixedFee struct {
	Amount decimal.Decimal
}

func (f FixedFee) Fee(decimal.Decimal) decimal.Decimal { return f.Amount }
