package backtest

import (
	"math"

	"chasebtc/internal/domain"
)

// Summarize reduces an equity curve and trade log to performance metrics.
// Win rate and average profit consider closed trades only and are nil when
// none closed; an open position still counts toward TotalTrades.
func Summarize(curve []domain.EquityPoint, trades []domain.Trade, initialCapital, periodsPerYear float64) domain.Metrics {
	final := initialCapital
	if len(curve) > 0 {
		final = curve[len(curve)-1].Strategy
	}

	m := domain.Metrics{
		SharpeRatio:    sharpeRatio(periodReturns(curve), periodsPerYear),
		MaxDrawdownPct: maxDrawdown(curve),
		FinalEquity:    final,
		TotalTrades:    len(trades),
	}
	if initialCapital > 0 {
		m.CumulativeReturn = final/initialCapital - 1
	}

	var wins int
	var profit float64
	for _, t := range trades {
		if !t.Action.IsClose() || t.RealizedProfit == nil {
			continue
		}
		m.ClosedTrades++
		profit += *t.RealizedProfit
		if *t.RealizedProfit > 0 {
			wins++
		}
	}
	if m.ClosedTrades > 0 {
		winRate := 100 * float64(wins) / float64(m.ClosedTrades)
		avg := profit / float64(m.ClosedTrades)
		m.WinRatePct = &winRate
		m.AvgProfitPerClosedTrade = &avg
	}
	return m
}

// periodReturns returns simple returns between consecutive strategy equity
// values. It is empty for curves shorter than two points.
func periodReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		out = append(out, curve[i].Strategy/curve[i-1].Strategy-1)
	}
	return out
}

// sharpeRatio annualises mean/stdev of returns by sqrt(periodsPerYear), using
// the sample standard deviation. It is 0 when fewer than two returns exist or
// the returns have zero variance.
func sharpeRatio(returns []float64, periodsPerYear float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// maxDrawdown returns the largest fractional decline from a running peak of
// strategy equity, in [0,1].
func maxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Strategy
	var worst float64
	for _, pt := range curve {
		if pt.Strategy > peak {
			peak = pt.Strategy
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - pt.Strategy) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
