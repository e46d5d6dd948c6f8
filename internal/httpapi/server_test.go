package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chasebtc/internal/backtest"
	"chasebtc/internal/domain"
	"chasebtc/internal/features"
	"chasebtc/internal/service"
	"chasebtc/pkg/chasebtc"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeBackend struct {
	predictReq  service.PredictRequest
	backtestReq service.BacktestRequest
	err         error
	readyErr    error
	hub         *Hub
}

func (f *fakeBackend) Predict(_ context.Context, req service.PredictRequest) (*domain.Prediction, error) {
	f.predictReq = req
	if f.err != nil {
		return nil, f.err
	}
	p := domain.Prediction{Signal: domain.SignalBuy, Probability: 0.42, StopLoss: 0.05, TakeProfit: 0.3, ModelVersion: "m"}
	if f.hub != nil {
		f.hub.Publish(p)
	}
	return &p, nil
}

func (f *fakeBackend) Backtest(_ context.Context, req service.BacktestRequest) (*service.BacktestResponse, error) {
	f.backtestReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.BacktestResponse{
		RunID:   "run-1",
		Start:   day0,
		End:     day0.AddDate(0, 0, 1),
		Outcome: backtest.OutcomeComputed,
		Result: &backtest.Result{
			EquityCurve: []domain.EquityPoint{{Date: day0, Strategy: 1000, BuyAndHold: 1000}},
			Trades:      []domain.Trade{},
			Metrics:     domain.Metrics{SharpeRatio: 0.5, FinalEquity: 1000},
		},
	}, nil
}

func (f *fakeBackend) Refresh(context.Context) (*service.RefreshResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.RefreshResult{Rows: 12, Version: "12@1"}, nil
}

func (f *fakeBackend) Ready(context.Context) error { return f.readyErr }

func newTestServer(t *testing.T, b *fakeBackend, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(b, hub, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHomeAndHealth(t *testing.T) {
	b := &fakeBackend{readyErr: features.ErrNoFeatures}
	srv := newTestServer(t, b, nil)

	var home map[string]string
	if code := getJSON(t, srv.URL+"/", &home); code != http.StatusOK || !strings.HasPrefix(home["message"], "Welcome") {
		t.Errorf("GET / = %d %v", code, home)
	}

	var health chasebtc.HealthResponse
	if code := getJSON(t, srv.URL+"/health", &health); code != http.StatusOK {
		t.Fatalf("GET /health = %d", code)
	}
	if health.Status != "ok" || health.Features != "unavailable" {
		t.Errorf("health = %+v, want ok with features unavailable", health)
	}

	if code := getJSON(t, srv.URL+"/nope", nil); code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", code)
	}
}

func TestPredictParams(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)

	var out chasebtc.PredictResponse
	code := getJSON(t, srv.URL+"/predict?threshold=0.4&sl=0.1&days_back=30", &out)
	if code != http.StatusOK {
		t.Fatalf("GET /predict = %d", code)
	}
	if *b.predictReq.Threshold != 0.4 || *b.predictReq.StopLoss != 0.1 || *b.predictReq.DaysBack != 30 {
		t.Errorf("predict request = %+v", b.predictReq)
	}
	if b.predictReq.TakeProfit != nil {
		t.Errorf("TakeProfit = %v, want nil (server default)", *b.predictReq.TakeProfit)
	}
	if out.Signal != "BUY" || out.StopLoss != -0.05 {
		t.Errorf("response = %+v", out)
	}
}

func TestBacktestParams(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)

	var out chasebtc.BacktestResponse
	url := srv.URL + "/backtest?start_date=2024-01-01&end_date=2024-01-02&threshold=0.6&initial_capital=500&position_size=0.5&periods_per_year=8760"
	if code := getJSON(t, url, &out); code != http.StatusOK {
		t.Fatalf("GET /backtest = %d", code)
	}
	req := b.backtestReq
	if req.StartDate != "2024-01-01" || req.EndDate != "2024-01-02" {
		t.Errorf("dates = %q..%q", req.StartDate, req.EndDate)
	}
	if *req.Threshold != 0.6 || *req.InitialCapital != 500 || *req.PositionSize != 0.5 || *req.PeriodsPerYear != 8760 {
		t.Errorf("backtest request = %+v", req)
	}
	if out.RunID != "run-1" || out.Cached || out.Metrics.Sharpe != 0.5 || len(out.EquityCurve) != 1 {
		t.Errorf("response = %+v", out)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Invalid("threshold", "bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrNoData), http.StatusNotFound},
		{fmt.Errorf("loading: %w", features.ErrNoFeatures), http.StatusServiceUnavailable},
		{fmt.Errorf("model: %w", domain.ErrUpstreamUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := newTestServer(t, &fakeBackend{err: tt.err}, nil)
		var body chasebtc.ErrorResponse
		if code := getJSON(t, srv.URL+"/backtest", &body); code != tt.want {
			t.Errorf("error %v -> %d, want %d", tt.err, code, tt.want)
		}
		if body.Error == "" {
			t.Errorf("error %v: empty error body", tt.err)
		}
	}
}

func TestUnparseableNumbers(t *testing.T) {
	b := &fakeBackend{}
	srv := newTestServer(t, b, nil)
	for _, path := range []string{
		"/predict?threshold=abc",
		"/predict?days_back=1.5",
		"/backtest?sl=ten",
		"/backtest?initial_capital=",
	} {
		var body chasebtc.ErrorResponse
		code := getJSON(t, srv.URL+path, &body)
		if path == "/backtest?initial_capital=" {
			// Empty means unset.
			if code != http.StatusOK {
				t.Errorf("GET %s = %d, want 200", path, code)
			}
			continue
		}
		if code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, code)
		}
	}
}

func TestUpdate(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)

	resp, err := http.Post(srv.URL+"/update", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /update: %v", err)
	}
	defer resp.Body.Close()
	var out chasebtc.UpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if out.Status != "ok" || out.Rows != 12 || out.Version != "12@1" {
		t.Errorf("update = %+v", out)
	}

	if code := getJSON(t, srv.URL+"/update", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET /update = %d, want 405", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{}, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", resp.StatusCode)
	}
}

func TestSignalWebsocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	b := &fakeBackend{hub: hub}
	srv := newTestServer(t, b, hub)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration happens asynchronously; publish until the message lands.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make(chan chasebtc.PredictResponse, 1)
	go func() {
		var msg chasebtc.PredictResponse
		if err := conn.ReadJSON(&msg); err == nil {
			got <- msg
		}
		close(got)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case msg, ok := <-got:
			if !ok {
				t.Fatal("websocket closed before a signal arrived")
			}
			if msg.Signal != "BUY" || msg.Probability != 0.42 {
				t.Errorf("signal = %+v", msg)
			}
			return
		case <-tick.C:
			getJSON(t, srv.URL+"/predict", nil)
		case <-deadline:
			t.Fatal("timed out waiting for signal")
		}
	}
}
