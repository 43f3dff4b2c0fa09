// Package valuation turns a portfolio's trade counters and daily value
// history into performance metrics: returns, drawdown, Sharpe ratio, and
// win rate. Everything here is a pure function over model types; metric
// computation degrades gracefully (zero stdev ⇒ Sharpe 0) rather than
// failing the whole response.
//
// Money stays in shopspring/decimal; only the transcendental Sharpe math
// drops to float64 internally, with the result converted back immediately.
package valuation

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// TradingDaysPerYear is the Sharpe annualization base (√252).
const TradingDaysPerYear = 252

// Metrics is the derived performance view of one portfolio.
type Metrics struct {
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalReturn      decimal.Decimal `json:"total_return"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
	DailyReturn      decimal.Decimal `json:"daily_return"`      // % change since last daily snapshot
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`      // % decline from peak across history
	SharpeRatio      decimal.Decimal `json:"sharpe_ratio"`      // annualized, 0 when undefined
	WinRate          decimal.Decimal `json:"win_rate"`          // % of closing trades that realized a gain
	TimeWeightedReturn decimal.Decimal `json:"time_weighted_return"` // % chained across daily periods
}

// Compute derives all metrics from the portfolio's current state.
func Compute(p *model.Portfolio) Metrics {
	assets := p.TotalAssets()
	totalReturn := assets.Sub(p.InitialBalance)

	m := Metrics{
		TotalAssets: assets,
		TotalReturn: totalReturn,
	}
	if p.InitialBalance.IsPositive() {
		m.ReturnPercentage = totalReturn.Div(p.InitialBalance).Mul(hundred)
	}

	if n := len(p.DailyValueHistory); n > 0 {
		last := p.DailyValueHistory[n-1].TotalAssets
		if last.IsPositive() {
			m.DailyReturn = assets.Sub(last).Div(last).Mul(hundred)
		}
	}

	m.MaxDrawdown = MaxDrawdown(p.DailyValueHistory)
	m.SharpeRatio = SharpeRatio(p.DailyValueHistory, decimal.Zero)
	m.TimeWeightedReturn = TimeWeightedReturn(p.DailyValueHistory)

	if p.ClosingTrades > 0 {
		m.WinRate = decimal.NewFromInt(int64(p.WinningTrades)).
			Div(decimal.NewFromInt(int64(p.ClosingTrades))).Mul(hundred)
	}
	return m
}

// MaxDrawdown is the largest peak-to-trough decline across the value
// history, as a percentage of the peak. A monotonically increasing history
// yields exactly zero.
func MaxDrawdown(history []model.ValueSnapshot) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}

	peak := history[0].TotalAssets
	maxDD := decimal.Zero
	for _, snap := range history[1:] {
		if snap.TotalAssets.GreaterThan(peak) {
			peak = snap.TotalAssets
			continue
		}
		if peak.IsPositive() {
			dd := peak.Sub(snap.TotalAssets).Div(peak).Mul(hundred)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio is (mean daily return − riskFree) / stdev(daily returns),
// annualized by √252. Fewer than two periods or zero variance reports 0,
// never a divide-by-zero.
func SharpeRatio(history []model.ValueSnapshot, dailyRiskFree decimal.Decimal) decimal.Decimal {
	returns := dailyReturns(history)
	if len(returns) < 2 {
		return decimal.Zero
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return decimal.Zero
	}

	sharpe := (mean - dailyRiskFree.InexactFloat64()) / stdev * math.Sqrt(TradingDaysPerYear)
	return decimal.NewFromFloat(sharpe).Round(4)
}

// TimeWeightedReturn chains daily period returns: (Π (1+r_i) − 1) × 100.
// Insulated from the timing of cash flows between periods.
func TimeWeightedReturn(history []model.ValueSnapshot) decimal.Decimal {
	returns := dailyReturns(history)
	if len(returns) == 0 {
		return decimal.Zero
	}
	chained := 1.0
	for _, r := range returns {
		chained *= 1 + r
	}
	return decimal.NewFromFloat((chained - 1) * 100).Round(4)
}

// dailyReturns converts consecutive snapshots into fractional period
// returns, skipping non-positive bases.
func dailyReturns(history []model.ValueSnapshot) []float64 {
	if len(history) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].TotalAssets
		if !prev.IsPositive() {
			continue
		}
		r := history[i].TotalAssets.Sub(prev).Div(prev)
		returns = append(returns, r.InexactFloat64())
	}
	return returns
}

// AppendDailySnapshot appends (today, totalAssets) to the history when the
// current trading day has no snapshot yet. The history is append-only and
// stays date-ordered; returns true when a point was added.
func AppendDailySnapshot(p *model.Portfolio, now time.Time) bool {
	today := clock.Midnight(now)
	if n := len(p.DailyValueHistory); n > 0 {
		last := p.DailyValueHistory[n-1].Date
		if !last.Before(today) {
			return false
		}
	}
	p.DailyValueHistory = append(p.DailyValueHistory, model.ValueSnapshot{
		Date:        today,
		TotalAssets: p.TotalAssets(),
	})
	return true
}
