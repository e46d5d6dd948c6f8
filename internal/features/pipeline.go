package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chasebtc/internal/domain"
	"chasebtc/internal/util"
)

// Pipeline fetches bars and derives features, either live for prediction or
// in bulk to rebuild the feature file.
type Pipeline struct {
	fetcher BarFetcher
	store   *Store
	symbol  string
	log     *slog.Logger
	now     func() time.Time
}

// NewPipeline creates a Pipeline for symbol.
func NewPipeline(fetcher BarFetcher, store *Store, symbol string, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		fetcher: fetcher,
		store:   store,
		symbol:  symbol,
		log:     log.With("component", "features"),
		now:     time.Now,
	}
}

// Store returns the feature file store.
func (p *Pipeline) Store() *Store { return p.store }

// Recent returns live feature rows covering the last daysBack days, including
// the bar of the current session. Extra history is fetched to warm up the
// rolling windows.
func (p *Pipeline) Recent(ctx context.Context, daysBack int) ([]domain.FeatureRow, error) {
	if daysBack < 1 {
		return nil, domain.Invalid("days_back", "must be at least 1, got %d", daysBack)
	}
	now := p.now().UTC()
	today := util.SessionStart(now)
	start := today.AddDate(0, 0, -(daysBack + WarmupBars + 2))

	bars, err := p.fetcher.FetchDailyBars(ctx, p.symbol, start, now)
	if err != nil {
		return nil, err
	}
	rows := Build(bars)

	cutoff := today.AddDate(0, 0, -daysBack)
	i := 0
	for i < len(rows) && rows[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == len(rows) {
		return nil, fmt.Errorf("no feature rows in the last %d days (%d bars fetched): %w",
			daysBack, len(bars), domain.ErrUpstreamUnavailable)
	}
	return rows[i:], nil
}

// Refresh rebuilds the feature file from completed daily bars since start
// and returns the number of rows written.
func (p *Pipeline) Refresh(ctx context.Context, start time.Time) (int, error) {
	now := p.now().UTC()
	bars, err := p.fetcher.FetchDailyBars(ctx, p.symbol, start, now)
	if err != nil {
		return 0, err
	}

	complete := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if util.IsCompleteDailyBar(b.Timestamp, now) {
			complete = append(complete, b)
		}
	}
	rows := Build(complete)
	if len(rows) == 0 {
		return 0, fmt.Errorf("only %d complete bars since %s: %w",
			len(complete), start.Format(time.DateOnly), domain.ErrUpstreamUnavailable)
	}
	if err := p.store.Write(ctx, rows); err != nil {
		return 0, err
	}

	p.log.Info("feature file rebuilt",
		"path", p.store.Path(),
		"rows", len(rows),
		"first", rows[0].Timestamp.Format(time.DateOnly),
		"last", rows[len(rows)-1].Timestamp.Format(time.DateOnly),
	)
	return len(rows), nil
}

// IsUnavailable reports whether err means features could not be obtained.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNoFeatures) || errors.Is(err, domain.ErrUpstreamUnavailable)
}
