// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BacktestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasebtc_backtests_total",
			Help: "Backtest requests by cache outcome (computed, shared, hit) or error",
		},
		[]string{"outcome"},
	)

	BacktestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chasebtc_backtest_duration_seconds",
			Help:    "Wall time of backtest requests including prediction",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	BacktestBars = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chasebtc_backtest_bars",
			Help:    "Bars simulated per computed backtest",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		},
	)

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasebtc_predictions_total",
			Help: "Live predictions by emitted signal",
		},
		[]string{"signal"},
	)

	LastProbability = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chasebtc_last_probability",
			Help: "Probability of the most recent live prediction",
		},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasebtc_upstream_errors_total",
			Help: "Failures of market data, feature or model dependencies",
		},
		[]string{"operation"},
	)

	FeatureRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chasebtc_feature_refreshes_total",
			Help: "Successful rebuilds of the feature file",
		},
	)

	SignalSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chasebtc_ws_subscribers",
			Help: "Connected websocket signal subscribers",
		},
	)
)
