// Package backtest replays a price series against per-bar buy probabilities
// and reconstructs a long-only strategy's trades, equity curve, and metrics.
package backtest

import (
	"context"
	"time"

	"chasebtc/internal/domain"
	"chasebtc/internal/signal"
)

// cancelCheckEvery is the number of bars processed between context checks.
const cancelCheckEvery = 1024

// Params are the scalar inputs of a backtest run.
type Params struct {
	Threshold      float64 `json:"threshold"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	InitialCapital float64 `json:"initial_capital"`
	PositionSize   float64 `json:"position_size"`
	PeriodsPerYear float64 `json:"periods_per_year"`
}

// Result is the output of a single backtest run. A Result returned by Run or
// by a Cache is shared and must not be mutated.
type Result struct {
	EquityCurve  []domain.EquityPoint `json:"equity_curve"`
	Trades       []domain.Trade       `json:"trades"`
	Metrics      domain.Metrics       `json:"metrics"`
	OpenPosition *domain.Position     `json:"open_position,omitempty"`
}

// Run simulates the strategy over index-aligned dates, prices, and
// probabilities. Inputs are validated before any state is created; an invalid
// input or a cancelled context yields an error and no partial result.
func Run(ctx context.Context, dates []time.Time, prices, probabilities []float64, p Params) (*Result, error) {
	if err := Validate(dates, prices, probabilities, p); err != nil {
		return nil, err
	}

	n := len(prices)
	cash := p.InitialCapital
	var pos *domain.Position
	curve := make([]domain.EquityPoint, 0, n)
	trades := make([]domain.Trade, 0)
	units := p.InitialCapital / prices[0]

	for i, price := range prices {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// Exits are evaluated before entries.
		if pos != nil {
			if action, ok := exitAction(price, pos.EntryPrice, p); ok {
				proceeds := pos.SizeAsset * price
				profit := (price - pos.EntryPrice) * pos.SizeAsset
				ret := price/pos.EntryPrice - 1
				cash += proceeds
				trades = append(trades, domain.Trade{
					DateIdx:        i,
					Date:           dates[i],
					Action:         action,
					Price:          price,
					SizeAsset:      pos.SizeAsset,
					SizeUSD:        proceeds,
					RealizedProfit: &profit,
					ReturnPct:      &ret,
				})
				pos = nil
			}
		}

		if pos == nil && signal.Generate(probabilities[i], p.Threshold) == domain.SignalBuy {
			sizeUSD := cash * p.PositionSize
			sizeAsset := sizeUSD / price
			cash -= sizeUSD
			pos = &domain.Position{
				EntryIdx:   i,
				EntryDate:  dates[i],
				EntryPrice: price,
				SizeAsset:  sizeAsset,
				SizeUSD:    sizeUSD,
			}
			trades = append(trades, domain.Trade{
				DateIdx:   i,
				Date:      dates[i],
				Action:    domain.ActionBuy,
				Price:     price,
				SizeAsset: sizeAsset,
				SizeUSD:   sizeUSD,
			})
		}

		equity := cash
		if pos != nil {
			equity += pos.SizeAsset * price
		}
		curve = append(curve, domain.EquityPoint{
			Date:       dates[i],
			Strategy:   equity,
			BuyAndHold: units * price,
		})
	}

	return &Result{
		EquityCurve:  curve,
		Trades:       trades,
		Metrics:      Summarize(curve, trades, p.InitialCapital, p.PeriodsPerYear),
		OpenPosition: pos,
	}, nil
}

// exitAction returns the closing action triggered at price, if any. The stop
// is checked before the target, so a bar can never both stop out and take
// profit.
func exitAction(price, entry float64, p Params) (domain.TradeAction, bool) {
	if price <= entry*(1-p.StopLossPct) {
		return domain.ActionStopLoss, true
	}
	if price >= entry*(1+p.TakeProfitPct) {
		return domain.ActionTakeProfit, true
	}
	return "", false
}
