package valuation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/model"
)

// TimeRange selects how far back a chart series reaches.
type TimeRange string

const (
	RangeWeek    TimeRange = "week"
	RangeMonth   TimeRange = "month"
	RangeQuarter TimeRange = "quarter"
	RangeYear    TimeRange = "year"
	RangeAll     TimeRange = "all"
)

// ChartMetric selects what each chart point measures.
type ChartMetric string

const (
	MetricValue       ChartMetric = "value"        // totalAssets
	MetricReturnPct   ChartMetric = "return_pct"   // % return vs initial balance
	MetricDailyChange ChartMetric = "daily_change" // % change vs previous point
	MetricTradeCount  ChartMetric = "trade_count"  // cumulative trades per day
)

// ParseTimeRange validates a range string from the API.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case RangeWeek, RangeMonth, RangeQuarter, RangeYear, RangeAll:
		return TimeRange(s), nil
	case "":
		return RangeAll, nil
	}
	return "", fmt.Errorf("valuation: unknown time range %q", s)
}

// ParseChartMetric validates a metric string from the API.
func ParseChartMetric(s string) (ChartMetric, error) {
	switch ChartMetric(s) {
	case MetricValue, MetricReturnPct, MetricDailyChange, MetricTradeCount:
		return ChartMetric(s), nil
	case "":
		return MetricValue, nil
	}
	return "", fmt.Errorf("valuation: unknown chart metric %q", s)
}

// rangeStart resolves the inclusive lower bound for a time range.
func rangeStart(rng TimeRange, now time.Time, created time.Time) time.Time {
	switch rng {
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	case RangeQuarter:
		return now.AddDate(0, -3, 0)
	case RangeYear:
		return now.AddDate(-1, 0, 0)
	default:
		return created
	}
}

// ChartSeries maps the portfolio's daily value history, filtered to the
// requested range, into chart points for the requested metric. A range
// with no snapshots falls back to a two-point series — the initial balance
// at range start and the current value at range end — so the presentation
// layer is never handed an empty series. records is only consulted for
// MetricTradeCount and may be nil otherwise.
func ChartSeries(p *model.Portfolio, records []model.TradingRecord,
	rng TimeRange, metric ChartMetric, now time.Time) []model.ChartPoint {

	start := clock.Midnight(rangeStart(rng, now, p.CreatedAt))

	var window []model.ValueSnapshot
	for _, snap := range p.DailyValueHistory {
		if !snap.Date.Before(start) && !snap.Date.After(now) {
			window = append(window, snap)
		}
	}

	if len(window) == 0 {
		window = []model.ValueSnapshot{
			{Date: start, TotalAssets: p.InitialBalance},
			{Date: now, TotalAssets: p.TotalAssets()},
		}
	}

	if metric == MetricTradeCount {
		return tradeCountSeries(window, records)
	}

	points := make([]model.ChartPoint, 0, len(window))
	var prev *decimal.Decimal
	for _, snap := range window {
		value := snap.TotalAssets
		switch metric {
		case MetricReturnPct:
			if p.InitialBalance.IsPositive() {
				value = snap.TotalAssets.Sub(p.InitialBalance).Div(p.InitialBalance).Mul(hundred)
			} else {
				value = decimal.Zero
			}
		case MetricDailyChange:
			if prev != nil && prev.IsPositive() {
				value = snap.TotalAssets.Sub(*prev).Div(*prev).Mul(hundred)
			} else {
				value = decimal.Zero
			}
		}

		point := model.ChartPoint{Date: snap.Date, Value: value}
		if prev != nil && prev.IsPositive() {
			change := snap.TotalAssets.Sub(*prev).Div(*prev).Mul(hundred)
			point.Change = &change
		}
		points = append(points, point)

		assets := snap.TotalAssets
		prev = &assets
	}
	return points
}

// tradeCountSeries counts cumulative executed trades up to each window date.
func tradeCountSeries(window []model.ValueSnapshot, records []model.TradingRecord) []model.ChartPoint {
	points := make([]model.ChartPoint, 0, len(window))
	var prevCount *decimal.Decimal
	for _, snap := range window {
		count := 0
		for _, rec := range records {
			if !rec.Timestamp.After(snap.Date.Add(24*time.Hour - time.Nanosecond)) {
				count++
			}
		}
		value := decimal.NewFromInt(int64(count))

		point := model.ChartPoint{Date: snap.Date, Value: value}
		if prevCount != nil {
			change := value.Sub(*prevCount)
			point.Change = &change
		}
		points = append(points, point)
		prevCount = &value
	}
	return points
}
