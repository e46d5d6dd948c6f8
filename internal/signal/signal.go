// Package signal maps model probabilities to categorical trading signals.
package signal

import (
	"math"

	"chasebtc/internal/domain"
)

// confidenceScale is the probability that maps to 100% display confidence.
const confidenceScale = 0.7

// Generate returns BUY when p is at or above threshold, HOLD otherwise.
// Callers must validate p and threshold first; out-of-range values are not
// clamped here.
func Generate(p, threshold float64) domain.Signal {
	if p >= threshold {
		return domain.SignalBuy
	}
	return domain.SignalHold
}

// Validate checks that v is a finite number in [0,1].
func Validate(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return domain.Invalid(field, "%v is outside [0,1]", v)
	}
	return nil
}

// Confidence scales a probability into a 0-100 display confidence, capped at
// 100 and rounded to two decimals.
func Confidence(p float64) float64 {
	c := math.Min(p/confidenceScale*100, 100)
	return math.Round(c*100) / 100
}
