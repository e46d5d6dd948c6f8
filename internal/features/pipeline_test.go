package features

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chasebtc/internal/domain"
)

type fakeFetcher struct {
	bars       []domain.Bar
	err        error
	start, end time.Time
	symbol     string
}

func (f *fakeFetcher) FetchDailyBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	f.symbol, f.start, f.end = symbol, start, end
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Bar
	for _, b := range f.bars {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, f *fakeFetcher, now time.Time) *Pipeline {
	t.Helper()
	p := NewPipeline(f, NewStore(filepath.Join(t.TempDir(), "features.parquet")), "BTC/USD", nil)
	p.now = func() time.Time { return now }
	return p
}

func TestPipelineRecent(t *testing.T) {
	f := &fakeFetcher{bars: barsFrom(series(200, func(i int) float64 { return 100 + float64(i%5) })...)}
	// Midway through the session of the last bar (day0+199).
	now := day0.AddDate(0, 0, 199).Add(6 * time.Hour)
	p := newTestPipeline(t, f, now)

	rows, err := p.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	// Ten full days back plus the running session.
	if len(rows) != 11 {
		t.Errorf("len(rows) = %d, want 11", len(rows))
	}
	if last := rows[len(rows)-1].Timestamp; !last.Equal(day0.AddDate(0, 0, 199)) {
		t.Errorf("last row = %v, want current session bar", last)
	}
	if f.symbol != "BTC/USD" {
		t.Errorf("fetched symbol = %q, want BTC/USD", f.symbol)
	}
	if want := day0.AddDate(0, 0, 199-10-WarmupBars-2); !f.start.Equal(want) {
		t.Errorf("fetch start = %v, want %v", f.start, want)
	}
}

func TestPipelineRecentErrors(t *testing.T) {
	now := day0.AddDate(0, 0, 50)

	p := newTestPipeline(t, &fakeFetcher{}, now)
	if _, err := p.Recent(context.Background(), 0); !domain.IsValidation(err) {
		t.Errorf("Recent(0) error = %v, want ValidationError", err)
	}
	if _, err := p.Recent(context.Background(), 5); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("Recent() with no bars error = %v, want ErrUpstreamUnavailable", err)
	}

	boom := errors.New("boom")
	p = newTestPipeline(t, &fakeFetcher{err: boom}, now)
	if _, err := p.Recent(context.Background(), 5); !errors.Is(err, boom) {
		t.Errorf("Recent() error = %v, want fetcher error", err)
	}
}

func TestPipelineRefreshDropsRunningSession(t *testing.T) {
	f := &fakeFetcher{bars: barsFrom(series(60, func(i int) float64 { return 100 + float64(i) })...)}
	now := day0.AddDate(0, 0, 59).Add(time.Hour)
	p := newTestPipeline(t, f, now)

	n, err := p.Refresh(context.Background(), day0)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	// 59 complete bars minus warm-up.
	if n != 59-WarmupBars {
		t.Errorf("Refresh() = %d rows, want %d", n, 59-WarmupBars)
	}

	rows, err := p.Store().Load(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rows) != n {
		t.Errorf("stored %d rows, want %d", len(rows), n)
	}
	if last := rows[len(rows)-1].Timestamp; !last.Equal(day0.AddDate(0, 0, 58)) {
		t.Errorf("last stored row = %v, want last complete day", last)
	}
}

func TestPipelineRefreshTooShort(t *testing.T) {
	f := &fakeFetcher{bars: barsFrom(series(10, func(int) float64 { return 100 })...)}
	p := newTestPipeline(t, f, day0.AddDate(0, 0, 20))

	_, err := p.Refresh(context.Background(), day0)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("Refresh() error = %v, want ErrUpstreamUnavailable", err)
	}
	if !IsUnavailable(err) {
		t.Error("IsUnavailable() = false, want true")
	}
}
