package backtest

import (
	"math"
	"time"

	"chasebtc/internal/domain"
	"chasebtc/internal/signal"
)

// Validate checks run inputs. It returns a *domain.ValidationError naming the
// first offending field.
func Validate(dates []time.Time, prices, probabilities []float64, p Params) error {
	if err := ValidateParams(p); err != nil {
		return err
	}

	n := len(prices)
	if n == 0 {
		return domain.Invalid("prices", "series is empty")
	}
	if len(dates) != n {
		return domain.Invalid("dates", "length %d does not match prices length %d", len(dates), n)
	}
	if len(probabilities) != n {
		return domain.Invalid("probabilities", "length %d does not match prices length %d", len(probabilities), n)
	}

	for i := range prices {
		if !(prices[i] > 0) || math.IsInf(prices[i], 1) {
			return domain.Invalid("prices", "prices[%d] = %v must be positive and finite", i, prices[i])
		}
		if pr := probabilities[i]; math.IsNaN(pr) || pr < 0 || pr > 1 {
			return domain.Invalid("probabilities", "probabilities[%d] = %v is outside [0,1]", i, pr)
		}
		if i > 0 && dates[i].Before(dates[i-1]) {
			return domain.Invalid("dates", "dates[%d] = %s precedes dates[%d] = %s",
				i, dates[i].Format(time.RFC3339), i-1, dates[i-1].Format(time.RFC3339))
		}
	}
	return nil
}

// ValidateParams checks the scalar parameters of a run.
func ValidateParams(p Params) error {
	if err := signal.Validate("threshold", p.Threshold); err != nil {
		return err
	}
	if err := signal.Validate("stop_loss_pct", p.StopLossPct); err != nil {
		return err
	}
	if err := signal.Validate("take_profit_pct", p.TakeProfitPct); err != nil {
		return err
	}
	if !(p.InitialCapital > 0) || math.IsInf(p.InitialCapital, 1) {
		return domain.Invalid("initial_capital", "%v must be positive and finite", p.InitialCapital)
	}
	if !(p.PositionSize > 0 && p.PositionSize <= 1) {
		return domain.Invalid("position_size", "%v is outside (0,1]", p.PositionSize)
	}
	if !(p.PeriodsPerYear > 0) || math.IsInf(p.PeriodsPerYear, 1) {
		return domain.Invalid("periods_per_year", "%v must be positive and finite", p.PeriodsPerYear)
	}
	return nil
}
