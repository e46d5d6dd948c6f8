package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chasebtc/internal/backtest"
	"chasebtc/internal/domain"
	"chasebtc/internal/features"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeHistory struct {
	rows    []domain.FeatureRow
	version string
	err     error
}

func (h *fakeHistory) Load(_ context.Context, start, end time.Time) ([]domain.FeatureRow, error) {
	if h.err != nil {
		return nil, h.err
	}
	var out []domain.FeatureRow
	for _, r := range h.rows {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *fakeHistory) Version(context.Context) (string, error) {
	return h.version, h.err
}

type fakeLive struct {
	rows      []domain.FeatureRow
	refreshed int
	daysBack  int
}

func (l *fakeLive) Recent(_ context.Context, daysBack int) ([]domain.FeatureRow, error) {
	l.daysBack = daysBack
	return l.rows, nil
}

func (l *fakeLive) Refresh(context.Context, time.Time) (int, error) {
	l.refreshed++
	return len(l.rows), nil
}

type fakePredictor struct {
	mu     sync.Mutex
	prob   float64
	series int
}

func (p *fakePredictor) PredictSeries(_ context.Context, rows []domain.FeatureRow) ([]float64, error) {
	p.mu.Lock()
	p.series++
	p.mu.Unlock()
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = p.prob
	}
	return out, nil
}

func (p *fakePredictor) PredictLatest(context.Context, []domain.FeatureRow) (float64, error) {
	return p.prob, nil
}

func (p *fakePredictor) Version() string { return "test-model" }

type capturePublisher struct{ got []domain.Prediction }

func (c *capturePublisher) Publish(p domain.Prediction) { c.got = append(c.got, p) }

func featureRows(n int) []domain.FeatureRow {
	rows := make([]domain.FeatureRow, n)
	for i := range rows {
		rows[i] = domain.FeatureRow{Timestamp: day0.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return rows
}

func testDefaults() Defaults {
	return Defaults{
		Threshold:      0.27,
		StopLoss:       0.05,
		TakeProfit:     0.30,
		InitialCapital: 1000,
		PositionSize:   1,
		PeriodsPerYear: 365,
		StartDate:      day0,
		DaysBack:       60,
	}
}

func newTestService(hist *fakeHistory, live *fakeLive, pred *fakePredictor) *Service {
	cache := backtest.NewCache(nil, backtest.NewMemoryStore(16, time.Minute))
	s := New(live, hist, pred, cache, testDefaults(), nil)
	s.now = func() time.Time { return day0.AddDate(0, 0, 30).Add(5 * time.Hour) }
	return s
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// Backtest
// ---------------------------------------------------------------------------

func TestBacktestDateFilterInclusive(t *testing.T) {
	hist := &fakeHistory{rows: featureRows(10), version: "v1"}
	s := newTestService(hist, &fakeLive{}, &fakePredictor{prob: 0.5})

	resp, err := s.Backtest(context.Background(), BacktestRequest{StartDate: "2024-01-03", EndDate: "2024-01-05"})
	if err != nil {
		t.Fatalf("Backtest() error: %v", err)
	}
	if n := len(resp.Result.EquityCurve); n != 3 {
		t.Errorf("len(EquityCurve) = %d, want 3", n)
	}
	if resp.RunID == "" {
		t.Error("RunID is empty")
	}
	if resp.Cached() {
		t.Error("first run reported as cached")
	}
	if resp.Params.Threshold != 0.27 || resp.Params.PeriodsPerYear != 365 {
		t.Errorf("defaults not applied: %+v", resp.Params)
	}
}

func TestBacktestDefaultRange(t *testing.T) {
	hist := &fakeHistory{rows: featureRows(40), version: "v1"}
	s := newTestService(hist, &fakeLive{}, &fakePredictor{prob: 0.5})

	resp, err := s.Backtest(context.Background(), BacktestRequest{})
	if err != nil {
		t.Fatalf("Backtest() error: %v", err)
	}
	// Default start day0 through "today" (day0+30).
	if n := len(resp.Result.EquityCurve); n != 31 {
		t.Errorf("len(EquityCurve) = %d, want 31", n)
	}
}

func TestBacktestCachesIdenticalRequests(t *testing.T) {
	hist := &fakeHistory{rows: featureRows(10), version: "v1"}
	pred := &fakePredictor{prob: 0.5}
	s := newTestService(hist, &fakeLive{}, pred)
	req := BacktestRequest{StartDate: "2024-01-01", EndDate: "2024-01-10"}

	first, err := s.Backtest(context.Background(), req)
	if err != nil {
		t.Fatalf("Backtest() error: %v", err)
	}
	second, err := s.Backtest(context.Background(), req)
	if err != nil {
		t.Fatalf("Backtest() error: %v", err)
	}
	if !second.Cached() || second.Result != first.Result {
		t.Errorf("second run Cached() = %v, want shared cached result", second.Cached())
	}
	if second.RunID == first.RunID {
		t.Error("run ids repeat across requests")
	}
	if pred.series != 1 {
		t.Errorf("PredictSeries called %d times, want 1", pred.series)
	}

	req.Threshold = ptr(0.9)
	third, err := s.Backtest(context.Background(), req)
	if err != nil {
		t.Fatalf("Backtest() error: %v", err)
	}
	if third.Cached() {
		t.Error("different parameters served from cache")
	}

	// A new dataset version invalidates earlier keys.
	hist.version = "v2"
	req.Threshold = nil
	fourth, err := s.Backtest(context.Background(), req)
	if err != nil {
		t.Fatalf("Backtest() error: %v", err)
	}
	if fourth.Cached() {
		t.Error("result reused across dataset versions")
	}
}

func TestBacktestErrors(t *testing.T) {
	tests := []struct {
		name    string
		hist    *fakeHistory
		req     BacktestRequest
		wantErr func(error) bool
	}{
		{"bad threshold", &fakeHistory{version: "v"}, BacktestRequest{Threshold: ptr(1.5)}, domain.IsValidation},
		{"zero capital", &fakeHistory{version: "v"}, BacktestRequest{InitialCapital: ptr(0.0)}, domain.IsValidation},
		{"bad start", &fakeHistory{version: "v"}, BacktestRequest{StartDate: "01/02/2024"}, domain.IsValidation},
		{"end before start", &fakeHistory{version: "v"}, BacktestRequest{StartDate: "2024-02-01", EndDate: "2024-01-01"}, domain.IsValidation},
		{"empty range", &fakeHistory{rows: featureRows(5), version: "v"}, BacktestRequest{StartDate: "2023-01-01", EndDate: "2023-02-01"},
			func(err error) bool { return errors.Is(err, ErrNoData) }},
		{"no features file", &fakeHistory{err: features.ErrNoFeatures}, BacktestRequest{},
			func(err error) bool { return errors.Is(err, features.ErrNoFeatures) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(tt.hist, &fakeLive{}, &fakePredictor{prob: 0.5})
			_, err := s.Backtest(context.Background(), tt.req)
			if err == nil || !tt.wantErr(err) {
				t.Errorf("Backtest() error = %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Predict
// ---------------------------------------------------------------------------

func TestPredict(t *testing.T) {
	live := &fakeLive{rows: featureRows(5)}
	s := newTestService(&fakeHistory{}, live, &fakePredictor{prob: 0.35})
	pub, mirror := &capturePublisher{}, &capturePublisher{}
	s.SetPublisher(Publishers{pub, mirror})

	p, err := s.Predict(context.Background(), PredictRequest{})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if p.Signal != domain.SignalBuy {
		t.Errorf("Signal = %v, want BUY at default threshold 0.27", p.Signal)
	}
	if p.Confidence != 50 {
		t.Errorf("Confidence = %v, want 50", p.Confidence)
	}
	if !p.BarTimestamp.Equal(day0.AddDate(0, 0, 4)) {
		t.Errorf("BarTimestamp = %v, want last row", p.BarTimestamp)
	}
	if p.ModelVersion != "test-model" {
		t.Errorf("ModelVersion = %q, want test-model", p.ModelVersion)
	}
	if live.daysBack != 60 {
		t.Errorf("daysBack = %d, want default 60", live.daysBack)
	}
	if len(pub.got) != 1 || pub.got[0].Probability != 0.35 {
		t.Errorf("published %v, want the prediction", pub.got)
	}
	if len(mirror.got) != 1 {
		t.Errorf("second publisher got %d predictions, want 1", len(mirror.got))
	}

	p, err = s.Predict(context.Background(), PredictRequest{Threshold: ptr(0.5), DaysBack: ptr(7)})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if p.Signal != domain.SignalHold || live.daysBack != 7 {
		t.Errorf("Signal = %v daysBack = %d, want HOLD and 7", p.Signal, live.daysBack)
	}
}

func TestPredictValidation(t *testing.T) {
	s := newTestService(&fakeHistory{}, &fakeLive{rows: featureRows(1)}, &fakePredictor{prob: 0.5})
	for _, req := range []PredictRequest{
		{Threshold: ptr(-0.1)},
		{StopLoss: ptr(2.0)},
		{DaysBack: ptr(0)},
	} {
		if _, err := s.Predict(context.Background(), req); !domain.IsValidation(err) {
			t.Errorf("Predict(%+v) error = %v, want ValidationError", req, err)
		}
	}

	empty := newTestService(&fakeHistory{}, &fakeLive{}, &fakePredictor{prob: 0.5})
	if _, err := empty.Predict(context.Background(), PredictRequest{}); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("Predict() with no rows error = %v, want ErrUpstreamUnavailable", err)
	}
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestRefresh(t *testing.T) {
	live := &fakeLive{rows: featureRows(3)}
	s := newTestService(&fakeHistory{version: "3@123"}, live, &fakePredictor{})

	res, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if res.Rows != 3 || res.Version != "3@123" || live.refreshed != 1 {
		t.Errorf("Refresh() = %+v (refreshed %d), want 3 rows version 3@123", res, live.refreshed)
	}
}
