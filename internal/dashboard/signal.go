package dashboard

import (
	"math"
	"strings"
)

// SignalBadge decorates a signal name for display.
func SignalBadge(signal string) string {
	switch strings.ToUpper(signal) {
	case "BUY":
		return "🟢 BUY"
	case "HOLD":
		return "⚪ HOLD"
	default:
		return signal
	}
}

// Conviction is the displayed confidence in the signal actually given: the
// model confidence for BUY and its complement for HOLD.
func Conviction(signal string, confidence float64) float64 {
	if strings.EqualFold(signal, "BUY") {
		return confidence
	}
	return 100 - confidence
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders values as a single line of block characters at most
// width runes wide. Longer series are downsampled by taking the last value
// of each bucket.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		sampled := make([]float64, width)
		for i := range sampled {
			end := (i + 1) * len(values) / width
			sampled[i] = values[end-1]
		}
		values = sampled
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	top := len(sparkLevels) - 1
	var b strings.Builder
	for _, v := range values {
		idx := top / 2
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}
