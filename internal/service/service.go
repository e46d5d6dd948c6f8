// Package service orchestrates features, predictions and the backtest engine
// behind every delivery surface (HTTP, gRPC, chat bot).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chasebtc/internal/backtest"
	"chasebtc/internal/config"
	"chasebtc/internal/domain"
	"chasebtc/internal/features"
	"chasebtc/internal/metrics"
	"chasebtc/internal/prediction"
	"chasebtc/internal/signal"
)

// ErrNoData is returned when the requested date range holds no feature rows.
var ErrNoData = errors.New("no data available for the given date range")

// LiveFeatures produces fresh feature rows and rebuilds the feature file.
type LiveFeatures interface {
	Recent(ctx context.Context, daysBack int) ([]domain.FeatureRow, error)
	Refresh(ctx context.Context, start time.Time) (int, error)
}

// HistoryStore serves stored feature rows for backtests.
type HistoryStore interface {
	Load(ctx context.Context, start, end time.Time) ([]domain.FeatureRow, error)
	Version(ctx context.Context) (string, error)
}

// Publisher receives every live prediction.
type Publisher interface {
	Publish(p domain.Prediction)
}

// Publishers fans each prediction out to every element in order.
type Publishers []Publisher

func (ps Publishers) Publish(p domain.Prediction) {
	for _, pub := range ps {
		pub.Publish(p)
	}
}

// Compile-time interface checks.
var (
	_ LiveFeatures = (*features.Pipeline)(nil)
	_ HistoryStore = (*features.Store)(nil)
)

// Defaults fill request parameters left unset by callers.
type Defaults struct {
	Threshold      float64
	StopLoss       float64
	TakeProfit     float64
	InitialCapital float64
	PositionSize   float64
	PeriodsPerYear float64
	StartDate      time.Time
	DaysBack       int
}

// DefaultsFromConfig converts the backtest config section into Defaults.
func DefaultsFromConfig(b config.Backtest) (Defaults, error) {
	start, err := time.Parse(time.DateOnly, b.StartDate)
	if err != nil {
		return Defaults{}, fmt.Errorf("parsing backtest.start_date: %w", err)
	}
	return Defaults{
		Threshold:      b.Threshold,
		StopLoss:       b.StopLoss,
		TakeProfit:     b.TakeProfit,
		InitialCapital: b.InitialCapital,
		PositionSize:   b.PositionSize,
		PeriodsPerYear: b.PeriodsPerYear,
		StartDate:      start,
		DaysBack:       60,
	}, nil
}

// Service is safe for concurrent use.
type Service struct {
	live      LiveFeatures
	history   HistoryStore
	predictor prediction.Predictor
	cache     *backtest.Cache
	defaults  Defaults
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Service. cache may be nil to disable result caching.
func New(live LiveFeatures, history HistoryStore, predictor prediction.Predictor, cache *backtest.Cache, defaults Defaults, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cache == nil {
		cache = backtest.NewCache(log)
	}
	return &Service{
		live:      live,
		history:   history,
		predictor: predictor,
		cache:     cache,
		defaults:  defaults,
		log:       log.With("component", "service"),
		now:       time.Now,
	}
}

// SetPublisher registers the receiver of live predictions. It must be called
// before the service handles requests.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// ---------------------------------------------------------------------------
// Predict
// ---------------------------------------------------------------------------

// PredictRequest parameterises a live prediction. Nil fields take defaults.
type PredictRequest struct {
	Threshold  *float64
	StopLoss   *float64
	TakeProfit *float64
	DaysBack   *int
}

// Predict scores the latest market data and derives a signal.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (*domain.Prediction, error) {
	threshold := orFloat(req.Threshold, s.defaults.Threshold)
	sl := orFloat(req.StopLoss, s.defaults.StopLoss)
	tp := orFloat(req.TakeProfit, s.defaults.TakeProfit)
	daysBack := s.defaults.DaysBack
	if req.DaysBack != nil {
		daysBack = *req.DaysBack
	}

	if err := signal.Validate("threshold", threshold); err != nil {
		return nil, err
	}
	if err := signal.Validate("sl", sl); err != nil {
		return nil, err
	}
	if err := signal.Validate("tp", tp); err != nil {
		return nil, err
	}
	if daysBack < 1 {
		return nil, domain.Invalid("days_back", "must be at least 1, got %d", daysBack)
	}

	rows, err := s.live.Recent(ctx, daysBack)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("features").Inc()
		return nil, fmt.Errorf("loading recent features: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no recent feature rows: %w", domain.ErrUpstreamUnavailable)
	}
	p, err := s.predictor.PredictLatest(ctx, rows)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("predict").Inc()
		return nil, fmt.Errorf("predicting latest bar: %w", err)
	}

	pred := domain.Prediction{
		Timestamp:    s.now().UTC(),
		BarTimestamp: rows[len(rows)-1].Timestamp,
		Signal:       signal.Generate(p, threshold),
		Probability:  p,
		Confidence:   signal.Confidence(p),
		Threshold:    threshold,
		StopLoss:     sl,
		TakeProfit:   tp,
		ModelVersion: s.predictor.Version(),
	}

	metrics.PredictionsTotal.WithLabelValues(string(pred.Signal)).Inc()
	metrics.LastProbability.Set(p)
	s.log.Info("live signal",
		"signal", pred.Signal,
		"probability", p,
		"threshold", threshold,
		"bar", pred.BarTimestamp.Format(time.DateOnly),
	)
	if s.publisher != nil {
		s.publisher.Publish(pred)
	}
	return &pred, nil
}

// ---------------------------------------------------------------------------
// Backtest
// ---------------------------------------------------------------------------

// BacktestRequest parameterises a historical run. Dates are YYYY-MM-DD and
// inclusive; an empty StartDate uses the default start, an empty EndDate
// means today. Nil numeric fields take defaults.
type BacktestRequest struct {
	StartDate      string
	EndDate        string
	Threshold      *float64
	StopLoss       *float64
	TakeProfit     *float64
	InitialCapital *float64
	PositionSize   *float64
	PeriodsPerYear *float64
}

// BacktestResponse carries a run's result and provenance.
type BacktestResponse struct {
	RunID   string
	Start   time.Time
	End     time.Time
	Params  backtest.Params
	Outcome backtest.Outcome
	Result  *backtest.Result
}

// Cached reports whether the result was not computed by this request.
func (r *BacktestResponse) Cached() bool {
	return r.Outcome != backtest.OutcomeComputed
}

// Backtest replays stored features through the predictor and the engine.
// Identical concurrent requests share one computation.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	params := backtest.Params{
		Threshold:      orFloat(req.Threshold, s.defaults.Threshold),
		StopLossPct:    orFloat(req.StopLoss, s.defaults.StopLoss),
		TakeProfitPct:  orFloat(req.TakeProfit, s.defaults.TakeProfit),
		InitialCapital: orFloat(req.InitialCapital, s.defaults.InitialCapital),
		PositionSize:   orFloat(req.PositionSize, s.defaults.PositionSize),
		PeriodsPerYear: orFloat(req.PeriodsPerYear, s.defaults.PeriodsPerYear),
	}
	if err := backtest.ValidateParams(params); err != nil {
		return nil, err
	}
	start, end, err := s.dateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	version, err := s.history.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading feature version: %w", err)
	}
	key := backtest.Key{
		Dataset: version + "/" + s.predictor.Version(),
		Start:   start.Format(time.DateOnly),
		End:     end.Format(time.DateOnly),
		Params:  params,
	}

	runID := uuid.NewString()
	log := s.log.With("run_id", runID)
	began := time.Now()
	log.Info("backtest started", "start", key.Start, "end", key.End, "threshold", params.Threshold)

	result, outcome, err := s.cache.Do(ctx, key.String(), func(ctx context.Context) (*backtest.Result, error) {
		return s.compute(ctx, start, end, params)
	})
	metrics.BacktestDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.BacktestsTotal.WithLabelValues("error").Inc()
		log.Warn("backtest failed", "error", err)
		return nil, err
	}
	metrics.BacktestsTotal.WithLabelValues(string(outcome)).Inc()

	log.Info("backtest finished",
		"bars", len(result.EquityCurve),
		"trades", result.Metrics.TotalTrades,
		"outcome", outcome,
		"elapsed", time.Since(began),
	)
	return &BacktestResponse{
		RunID:   runID,
		Start:   start,
		End:     end,
		Params:  params,
		Outcome: outcome,
		Result:  result,
	}, nil
}

func (s *Service) compute(ctx context.Context, start, end time.Time, params backtest.Params) (*backtest.Result, error) {
	rows, err := s.history.Load(ctx, start, end.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("loading features: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	probs, err := s.predictor.PredictSeries(ctx, rows)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("predict_series").Inc()
		return nil, fmt.Errorf("predicting history: %w", err)
	}

	dates := make([]time.Time, len(rows))
	prices := make([]float64, len(rows))
	for i, r := range rows {
		dates[i], prices[i] = r.Timestamp, r.Close
	}
	metrics.BacktestBars.Observe(float64(len(rows)))
	return backtest.Run(ctx, dates, prices, probs, params)
}

func (s *Service) dateRange(startStr, endStr string) (time.Time, time.Time, error) {
	start := s.defaults.StartDate
	if startStr != "" {
		t, err := time.Parse(time.DateOnly, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, domain.Invalid("start_date", "%q is not YYYY-MM-DD", startStr)
		}
		start = t
	}
	end := s.now().UTC().Truncate(24 * time.Hour)
	if endStr != "" {
		t, err := time.Parse(time.DateOnly, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, domain.Invalid("end_date", "%q is not YYYY-MM-DD", endStr)
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.Invalid("end_date", "%s precedes start_date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

// RefreshResult reports a feature file rebuild.
type RefreshResult struct {
	Rows    int    `json:"rows"`
	Version string `json:"version"`
}

// Refresh rebuilds the feature file from the default start date. Cached
// backtests keyed on the previous version are no longer reachable.
func (s *Service) Refresh(ctx context.Context) (*RefreshResult, error) {
	n, err := s.live.Refresh(ctx, s.defaults.StartDate)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("refresh").Inc()
		return nil, fmt.Errorf("refreshing features: %w", err)
	}
	version, err := s.history.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading feature version: %w", err)
	}
	metrics.FeatureRefreshes.Inc()
	s.log.Info("features refreshed", "rows", n, "version", version)
	return &RefreshResult{Rows: n, Version: version}, nil
}

// Ready reports whether backtests can be served.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.history.Version(ctx)
	return err
}

func orFloat(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
