// Package prediction obtains BUY-class probabilities for feature rows from a
// model server.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"chasebtc/internal/domain"
)

// Predictor maps feature rows to probabilities in [0,1].
type Predictor interface {
	// PredictSeries returns one probability per row, in row order.
	PredictSeries(ctx context.Context, rows []domain.FeatureRow) ([]float64, error)

	// PredictLatest returns the probability for the last row.
	PredictLatest(ctx context.Context, rows []domain.FeatureRow) (float64, error)

	// Version identifies the model producing the probabilities.
	Version() string
}

// Compile-time interface check.
var _ Predictor = (*ModelClient)(nil)

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type predictRequest struct {
	Rows []domain.FeatureRow `json:"rows"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version"`
}

// ---------------------------------------------------------------------------
// ModelClient
// ---------------------------------------------------------------------------

// ModelClient calls a model server's POST /v1/predict endpoint.
type ModelClient struct {
	baseURL string
	version string
	hc      *http.Client
	log     *slog.Logger
}

// NewModelClient creates a ModelClient for the server at baseURL. version is
// reported until the server announces its own.
func NewModelClient(baseURL, version string, timeout time.Duration, log *slog.Logger) *ModelClient {
	if log == nil {
		log = slog.Default()
	}
	return &ModelClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		hc:      &http.Client{Timeout: timeout},
		log:     log.With("component", "model-client"),
	}
}

// Version returns the configured model version.
func (c *ModelClient) Version() string { return c.version }

// PredictSeries sends rows to the model server and validates the response.
func (c *ModelClient) PredictSeries(ctx context.Context, rows []domain.FeatureRow) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(predictRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("encoding predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("model server: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(msg)), domain.ErrUpstreamUnavailable)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding model response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if err := checkProbabilities(out.Probabilities, len(rows)); err != nil {
		return nil, err
	}

	c.log.Debug("model prediction",
		"rows", len(rows),
		"model_version", out.ModelVersion,
		"elapsed", time.Since(start),
	)
	return out.Probabilities, nil
}

// PredictLatest predicts over rows and returns the final probability. Earlier
// rows give the model context for sequence features.
func (c *ModelClient) PredictLatest(ctx context.Context, rows []domain.FeatureRow) (float64, error) {
	if len(rows) == 0 {
		return 0, errors.New("no feature rows to predict")
	}
	probs, err := c.PredictSeries(ctx, rows)
	if err != nil {
		return 0, err
	}
	return probs[len(probs)-1], nil
}

func checkProbabilities(probs []float64, want int) error {
	if len(probs) != want {
		return fmt.Errorf("model returned %d probabilities for %d rows: %w",
			len(probs), want, domain.ErrUpstreamUnavailable)
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("model probability %v at row %d outside [0,1]: %w",
				p, i, domain.ErrUpstreamUnavailable)
		}
	}
	return nil
}
