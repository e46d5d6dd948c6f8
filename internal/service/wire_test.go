package service

import (
	"testing"
	"time"

	"chasebtc/internal/backtest"
	"chasebtc/internal/domain"
)

func TestPredictionWire(t *testing.T) {
	w := PredictionWire(domain.Prediction{
		Signal:      domain.SignalBuy,
		Probability: 0.123456,
		Confidence:  17.64,
		StopLoss:    0.05,
		TakeProfit:  0.3,
	})
	if w.Probability != 0.1235 {
		t.Errorf("Probability = %v, want 0.1235", w.Probability)
	}
	if w.StopLoss != -0.05 || w.TakeProfit != 0.3 {
		t.Errorf("StopLoss/TakeProfit = %v/%v, want -0.05/0.3", w.StopLoss, w.TakeProfit)
	}
	if w.Signal != "BUY" {
		t.Errorf("Signal = %q, want BUY", w.Signal)
	}
}

func TestBacktestResponseWire(t *testing.T) {
	profit := 310.0
	res := &backtest.Result{
		EquityCurve: []domain.EquityPoint{
			{Date: day0, Strategy: 1000, BuyAndHold: 1000},
			{Date: day0.Add(36 * time.Hour), Strategy: 1100, BuyAndHold: 1050},
		},
		Trades: []domain.Trade{
			{DateIdx: 0, Date: day0, Action: domain.ActionBuy, Price: 100},
			{DateIdx: 1, Date: day0.AddDate(0, 0, 1), Action: domain.ActionTakeProfit, Price: 131, RealizedProfit: &profit},
		},
		Metrics:      domain.Metrics{SharpeRatio: 1.5, MaxDrawdownPct: 0.1, TotalTrades: 3},
		OpenPosition: &domain.Position{EntryIdx: 1, EntryDate: day0.AddDate(0, 0, 1), EntryPrice: 131},
	}
	resp := &BacktestResponse{
		RunID:   "run",
		Start:   day0,
		End:     day0.AddDate(0, 0, 1),
		Params:  backtest.Params{Threshold: 0.6, PeriodsPerYear: 365},
		Outcome: backtest.OutcomeHit,
		Result:  res,
	}

	w := resp.Wire()
	if !w.Cached || w.RunID != "run" {
		t.Errorf("RunID/Cached = %q/%v, want run/true", w.RunID, w.Cached)
	}
	if w.Metrics.Sharpe != 1.5 || w.Metrics.MaxDrawdown != 0.1 || w.Metrics.TotalTrades != 3 {
		t.Errorf("Metrics = %+v", w.Metrics)
	}
	if w.EquityCurve[0].Date != "2024-01-01" {
		t.Errorf("daily date = %q, want 2024-01-01", w.EquityCurve[0].Date)
	}
	if w.EquityCurve[1].Date != "2024-01-02T12:00:00Z" {
		t.Errorf("intraday date = %q, want RFC 3339", w.EquityCurve[1].Date)
	}
	if w.Trades[1].Action != "TAKE_PROFIT" || *w.Trades[1].RealizedProfit != 310 {
		t.Errorf("Trades[1] = %+v", w.Trades[1])
	}
	if w.OpenPosition == nil || w.OpenPosition.EntryDate != "2024-01-02" {
		t.Errorf("OpenPosition = %+v", w.OpenPosition)
	}
	if w.Params.StartDate != "2024-01-01" || w.Params.EndDate != "2024-01-02" || *w.Params.Threshold != 0.6 {
		t.Errorf("Params = %+v", w.Params)
	}
}
