package service

import (
	"math"
	"time"

	"chasebtc/internal/domain"
	"chasebtc/pkg/chasebtc"
)

// PredictionWire converts a prediction to its API form. Probability and the
// exit levels are rounded to four decimals; the stop loss is reported as a
// negative return.
func PredictionWire(p domain.Prediction) chasebtc.PredictResponse {
	return chasebtc.PredictResponse{
		Timestamp:    p.Timestamp,
		BarTimestamp: p.BarTimestamp,
		Signal:       string(p.Signal),
		Probability:  round(p.Probability, 4),
		Confidence:   p.Confidence,
		Threshold:    p.Threshold,
		StopLoss:     -round(p.StopLoss, 4),
		TakeProfit:   round(p.TakeProfit, 4),
		ModelVersion: p.ModelVersion,
	}
}

// Wire converts the response to its API form.
func (r *BacktestResponse) Wire() chasebtc.BacktestResponse {
	res := r.Result
	m := res.Metrics
	out := chasebtc.BacktestResponse{
		RunID:  r.RunID,
		Cached: r.Cached(),
		Params: chasebtc.BacktestParams{
			StartDate:      r.Start.Format(chasebtc.DateLayout),
			EndDate:        r.End.Format(chasebtc.DateLayout),
			Threshold:      chasebtc.Float(r.Params.Threshold),
			StopLoss:       chasebtc.Float(r.Params.StopLossPct),
			TakeProfit:     chasebtc.Float(r.Params.TakeProfitPct),
			InitialCapital: chasebtc.Float(r.Params.InitialCapital),
			PositionSize:   chasebtc.Float(r.Params.PositionSize),
			PeriodsPerYear: chasebtc.Float(r.Params.PeriodsPerYear),
		},
		Metrics: chasebtc.Metrics{
			Sharpe:                  m.SharpeRatio,
			MaxDrawdown:             m.MaxDrawdownPct,
			CumulativeReturn:        m.CumulativeReturn,
			FinalEquity:             m.FinalEquity,
			TotalTrades:             m.TotalTrades,
			ClosedTrades:            m.ClosedTrades,
			WinRatePct:              m.WinRatePct,
			AvgProfitPerClosedTrade: m.AvgProfitPerClosedTrade,
		},
		EquityCurve: make([]chasebtc.EquityPoint, len(res.EquityCurve)),
		Trades:      make([]chasebtc.Trade, len(res.Trades)),
	}
	for i, pt := range res.EquityCurve {
		out.EquityCurve[i] = chasebtc.EquityPoint{
			Date:       formatDate(pt.Date),
			Strategy:   pt.Strategy,
			BuyAndHold: pt.BuyAndHold,
		}
	}
	for i, t := range res.Trades {
		out.Trades[i] = chasebtc.Trade{
			DateIdx:        t.DateIdx,
			Date:           formatDate(t.Date),
			Action:         string(t.Action),
			Price:          t.Price,
			SizeAsset:      t.SizeAsset,
			SizeUSD:        t.SizeUSD,
			RealizedProfit: t.RealizedProfit,
			ReturnPct:      t.ReturnPct,
		}
	}
	if pos := res.OpenPosition; pos != nil {
		out.OpenPosition = &chasebtc.OpenPosition{
			EntryIdx:   pos.EntryIdx,
			EntryDate:  formatDate(pos.EntryDate),
			EntryPrice: pos.EntryPrice,
			SizeAsset:  pos.SizeAsset,
			SizeUSD:    pos.SizeUSD,
		}
	}
	return out
}

// BacktestRequestFromWire converts API parameters to a service request.
func BacktestRequestFromWire(p chasebtc.BacktestParams) BacktestRequest {
	return BacktestRequest{
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		Threshold:      p.Threshold,
		StopLoss:       p.StopLoss,
		TakeProfit:     p.TakeProfit,
		InitialCapital: p.InitialCapital,
		PositionSize:   p.PositionSize,
		PeriodsPerYear: p.PeriodsPerYear,
	}
}

// PredictRequestFromWire converts API parameters to a service request.
func PredictRequestFromWire(p chasebtc.PredictParams) PredictRequest {
	return PredictRequest{
		Threshold:  p.Threshold,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		DaysBack:   p.DaysBack,
	}
}

// formatDate renders daily bars as dates and intraday bars as RFC 3339.
func formatDate(t time.Time) string {
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(chasebtc.DateLayout)
	}
	return t.Format(time.RFC3339)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
