package features

import (
	"math"
	"sort"

	"chasebtc/internal/domain"
)

// Window lengths of the derived columns.
const (
	shortSMA  = 7
	longSMA   = 30
	volWindow = 14
	rsiWindow = 14
)

// WarmupBars is the number of leading bars consumed before the first
// complete feature row.
const WarmupBars = longSMA - 1

// Build sorts and deduplicates bars by timestamp (last one wins), drops bars
// with a non-positive close, and derives one FeatureRow per bar after the
// warm-up period.
func Build(bars []domain.Bar) []domain.FeatureRow {
	clean := normalize(bars)
	if len(clean) <= WarmupBars {
		return nil
	}

	closes := make([]float64, len(clean))
	for i, b := range clean {
		closes[i] = b.Close
	}
	returns := make([]float64, len(clean))
	for i := 1; i < len(clean); i++ {
		returns[i] = closes[i]/closes[i-1] - 1
	}

	rows := make([]domain.FeatureRow, 0, len(clean)-WarmupBars)
	for i := WarmupBars; i < len(clean); i++ {
		rows = append(rows, domain.FeatureRow{
			Timestamp:    clean[i].Timestamp,
			Close:        closes[i],
			Volume:       clean[i].Volume,
			Return1:      returns[i],
			SMA7Ratio:    closes[i] / mean(closes[i-shortSMA+1:i+1]),
			SMA30Ratio:   closes[i] / mean(closes[i-longSMA+1:i+1]),
			Volatility14: sampleStd(returns[i-volWindow+1 : i+1]),
			RSI14:        rsi(closes[i-rsiWindow : i+1]),
		})
	}
	return rows
}

func normalize(bars []domain.Bar) []domain.Bar {
	byTime := make(map[int64]domain.Bar, len(bars))
	for _, b := range bars {
		if !(b.Close > 0) || math.IsInf(b.Close, 0) {
			continue
		}
		byTime[b.Timestamp.UnixNano()] = b
	}
	out := make([]domain.Bar, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}

// rsi computes a simple-average RSI over consecutive changes of closes.
// Flat windows read 50; windows without losses read 100.
func rsi(closes []float64) float64 {
	var gain, loss float64
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}
