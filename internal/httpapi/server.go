// Package httpapi serves the chasebtc REST API, Prometheus metrics and the
// live signal websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chasebtc/internal/domain"
	"chasebtc/internal/features"
	"chasebtc/internal/service"
	"chasebtc/pkg/chasebtc"
)

const welcome = "Welcome to the Chase BTC Prediction API. Use the /predict endpoint to get trading signals."

// Backend is the application surface served over HTTP.
type Backend interface {
	Predict(ctx context.Context, req service.PredictRequest) (*domain.Prediction, error)
	Backtest(ctx context.Context, req service.BacktestRequest) (*service.BacktestResponse, error)
	Refresh(ctx context.Context) (*service.RefreshResult, error)
	Ready(ctx context.Context) error
}

// Compile-time interface check.
var _ Backend = (*service.Service)(nil)

// Server serves the HTTP API.
type Server struct {
	backend Backend
	hub     *Hub
	log     *slog.Logger
	now     func() time.Time
}

// NewServer creates a Server. hub may be nil to disable /ws/signals.
func NewServer(backend Backend, hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		backend: backend,
		hub:     hub,
		log:     log.With("component", "httpapi"),
		now:     time.Now,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /predict", s.handlePredict)
	mux.HandleFunc("GET /backtest", s.handleBacktest)
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.hub != nil {
		mux.HandleFunc("GET /ws/signals", s.hub.ServeWS)
	}
}

// Handler returns an http.Handler with logging and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return logMiddleware(s.log, corsMiddleware(mux))
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"message": welcome})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := chasebtc.HealthResponse{Status: "ok", Timestamp: s.now().UTC(), Features: "ready"}
	if err := s.backend.Ready(r.Context()); err != nil {
		resp.Features = "unavailable"
	}
	writeJSON(w, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var p chasebtc.PredictParams
	var err error
	if p.Threshold, err = queryFloat(q, "threshold"); err != nil {
		s.fail(w, err)
		return
	}
	if p.StopLoss, err = queryFloat(q, "sl"); err != nil {
		s.fail(w, err)
		return
	}
	if p.TakeProfit, err = queryFloat(q, "tp"); err != nil {
		s.fail(w, err)
		return
	}
	if p.DaysBack, err = queryInt(q, "days_back"); err != nil {
		s.fail(w, err)
		return
	}

	pred, err := s.backend.Predict(r.Context(), service.PredictRequestFromWire(p))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, service.PredictionWire(*pred))
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := chasebtc.BacktestParams{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
	for _, f := range []struct {
		key string
		dst **float64
	}{
		{"threshold", &p.Threshold},
		{"sl", &p.StopLoss},
		{"tp", &p.TakeProfit},
		{"initial_capital", &p.InitialCapital},
		{"position_size", &p.PositionSize},
		{"periods_per_year", &p.PeriodsPerYear},
	} {
		v, err := queryFloat(q, f.key)
		if err != nil {
			s.fail(w, err)
			return
		}
		*f.dst = v
	}

	resp, err := s.backend.Backtest(r.Context(), service.BacktestRequestFromWire(p))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, resp.Wire())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.Refresh(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, chasebtc.UpdateResponse{Status: "ok", Rows: res.Rows, Version: res.Version})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// StatusFor maps an application error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoData):
		return http.StatusNotFound
	case features.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func queryFloat(q url.Values, key string) (*float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.Invalid(key, "%q is not a number", raw)
	}
	return &v, nil
}

func queryInt(q url.Values, key string) (*int, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.Invalid(key, "%q is not an integer", raw)
	}
	return &v, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(chasebtc.ErrorResponse{Error: msg})
}
