// Package features turns raw BTC/USD daily bars into the model feature rows
// consumed by prediction and backtesting.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"chasebtc/internal/domain"
	"chasebtc/internal/util"
)

// BarFetcher retrieves daily bars for a symbol within [start, end].
type BarFetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// Compile-time interface check.
var _ BarFetcher = (*AlpacaFetcher)(nil)

// AlpacaFetcher reads crypto daily bars from the Alpaca market-data API.
type AlpacaFetcher struct {
	client    *marketdata.Client
	attempts  int
	baseDelay time.Duration
	log       *slog.Logger
}

// NewAlpacaFetcher creates an AlpacaFetcher. Crypto data does not require
// credentials, but keys raise the rate limit when present.
func NewAlpacaFetcher(apiKey, apiSecret, dataURL string, log *slog.Logger) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if log == nil {
		log = slog.Default()
	}

	return &AlpacaFetcher{
		client:    marketdata.NewClient(opts),
		attempts:  3,
		baseDelay: time.Second,
		log:       log.With("component", "alpaca-fetcher"),
	}
}

// FetchDailyBars returns daily bars for symbol (e.g. "BTC/USD"), retrying
// transient failures. Exhausted retries wrap domain.ErrUpstreamUnavailable.
func (f *AlpacaFetcher) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var raw []marketdata.CryptoBar
	err := util.Retry(ctx, f.attempts, f.baseDelay, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return util.Permanent(err)
		}
		bars, err := f.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		if err != nil {
			f.log.Warn("crypto bars request failed", "symbol", symbol, "error", err)
			return err
		}
		raw = bars
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching %s bars: %w: %w", symbol, domain.ErrUpstreamUnavailable, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, domain.Bar{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	f.log.Debug("fetched crypto bars", "symbol", symbol, "count", len(bars))
	return bars, nil
}
