package backtest

import (
	"math"
	"testing"

	"chasebtc/internal/domain"
)

func curveOf(values ...float64) []domain.EquityPoint {
	dates := dailyDates(len(values))
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Date: dates[i], Strategy: v, BuyAndHold: v}
	}
	return out
}

func closed(action domain.TradeAction, profit float64) domain.Trade {
	return domain.Trade{Action: action, RealizedProfit: &profit}
}

func TestSummarizeSharpe(t *testing.T) {
	m := Summarize(curveOf(1000, 950, 950), nil, 1000, 365)

	// returns -0.05, 0: mean -0.025, sample stdev 0.025*sqrt(2)
	want := -0.025 / (0.025 * math.Sqrt(2)) * math.Sqrt(365)
	if math.Abs(m.SharpeRatio-want) > 1e-9 {
		t.Errorf("SharpeRatio = %v, want %v", m.SharpeRatio, want)
	}
}

func TestSummarizeSharpeAnnualisation(t *testing.T) {
	curve := curveOf(100, 110, 105, 120, 118)
	daily := Summarize(curve, nil, 100, 365).SharpeRatio
	hourly := Summarize(curve, nil, 100, 365*24).SharpeRatio
	if math.Abs(hourly-daily*math.Sqrt(24)) > 1e-9 {
		t.Errorf("hourly Sharpe = %v, want %v", hourly, daily*math.Sqrt(24))
	}
}

func TestSummarizeDegenerateCases(t *testing.T) {
	tests := []struct {
		name  string
		curve []domain.EquityPoint
	}{
		{"empty curve", nil},
		{"single point", curveOf(1000)},
		{"single return", curveOf(1000, 1100)},
		{"zero variance", curveOf(1000, 1000, 1000, 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Summarize(tt.curve, nil, 1000, 365)
			if m.SharpeRatio != 0 {
				t.Errorf("SharpeRatio = %v, want 0", m.SharpeRatio)
			}
			if math.IsNaN(m.MaxDrawdownPct) || m.MaxDrawdownPct != 0 {
				t.Errorf("MaxDrawdownPct = %v, want 0", m.MaxDrawdownPct)
			}
			if m.WinRatePct != nil || m.AvgProfitPerClosedTrade != nil {
				t.Error("closed-trade statistics set with no closed trades")
			}
		})
	}

	if m := Summarize(nil, nil, 1000, 365); m.FinalEquity != 1000 || m.CumulativeReturn != 0 {
		t.Errorf("empty curve FinalEquity/CumulativeReturn = %v/%v, want 1000/0", m.FinalEquity, m.CumulativeReturn)
	}
}

func TestSummarizeMaxDrawdown(t *testing.T) {
	m := Summarize(curveOf(100, 120, 90, 130, 104, 125), nil, 100, 365)
	// 120 -> 90 is 25%, deeper than the later 130 -> 104 (20%).
	if math.Abs(m.MaxDrawdownPct-0.25) > 1e-12 {
		t.Errorf("MaxDrawdownPct = %v, want 0.25", m.MaxDrawdownPct)
	}

	if m := Summarize(curveOf(100, 101, 102, 103), nil, 100, 365); m.MaxDrawdownPct != 0 {
		t.Errorf("monotonic curve MaxDrawdownPct = %v, want 0", m.MaxDrawdownPct)
	}
}

func TestSummarizeClosedTradeStatistics(t *testing.T) {
	trades := []domain.Trade{
		{Action: domain.ActionBuy},
		closed(domain.ActionTakeProfit, 300),
		{Action: domain.ActionBuy},
		closed(domain.ActionStopLoss, -50),
		{Action: domain.ActionBuy},
		closed(domain.ActionSell, 0),
		{Action: domain.ActionBuy},
	}
	m := Summarize(curveOf(1000, 1250), trades, 1000, 365)

	if m.TotalTrades != 7 {
		t.Errorf("TotalTrades = %d, want 7", m.TotalTrades)
	}
	if m.ClosedTrades != 3 {
		t.Errorf("ClosedTrades = %d, want 3", m.ClosedTrades)
	}
	// Zero profit is not a win.
	if m.WinRatePct == nil || math.Abs(*m.WinRatePct-100.0/3) > 1e-9 {
		t.Errorf("WinRatePct = %v, want 33.33", m.WinRatePct)
	}
	if m.AvgProfitPerClosedTrade == nil || math.Abs(*m.AvgProfitPerClosedTrade-250.0/3) > 1e-9 {
		t.Errorf("AvgProfitPerClosedTrade = %v, want 83.33", m.AvgProfitPerClosedTrade)
	}
	if math.Abs(m.CumulativeReturn-0.25) > 1e-12 {
		t.Errorf("CumulativeReturn = %v, want 0.25", m.CumulativeReturn)
	}
}
