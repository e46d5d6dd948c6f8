package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"chasebtc/internal/domain"
)

// ErrNoFeatures is returned when the feature file has not been built yet.
var ErrNoFeatures = errors.New("features file not found")

// featureRecord is the Parquet schema of the feature file.
type featureRecord struct {
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Close        float64 `parquet:"close"`
	Volume       float64 `parquet:"volume"`
	Return1      float64 `parquet:"return_1"`
	SMA7Ratio    float64 `parquet:"sma7_ratio"`
	SMA30Ratio   float64 `parquet:"sma30_ratio"`
	Volatility14 float64 `parquet:"volatility_14"`
	RSI14        float64 `parquet:"rsi_14"`
}

// Store reads and writes the feature file. Rows are cached in memory and
// reloaded when the file changes on disk.
type Store struct {
	path string

	mu      sync.Mutex
	rows    []domain.FeatureRow
	modTime time.Time
	size    int64
}

// NewStore creates a Store for the Parquet file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the feature file location.
func (s *Store) Path() string { return s.path }

// Load returns rows with start <= timestamp <= end in chronological order. A
// zero start or end leaves that side unbounded.
func (s *Store) Load(ctx context.Context, start, end time.Time) ([]domain.FeatureRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.current()
	if err != nil {
		return nil, err
	}

	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(start) })
	}
	hi := len(rows)
	if !end.IsZero() {
		hi = sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp.After(end) })
	}
	if lo >= hi {
		return nil, nil
	}
	out := make([]domain.FeatureRow, hi-lo)
	copy(out, rows[lo:hi])
	return out, nil
}

// Version identifies the file contents by row count and last timestamp.
func (s *Store) Version(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rows, err := s.current()
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "0", nil
	}
	return fmt.Sprintf("%d@%d", len(rows), rows[len(rows)-1].Timestamp.Unix()), nil
}

// Write replaces the feature file with rows, sorted by timestamp. The new
// file is renamed into place so readers never see a partial write.
func (s *Store) Write(_ context.Context, rows []domain.FeatureRow) error {
	sorted := make([]domain.FeatureRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	records := make([]featureRecord, len(sorted))
	for i, r := range sorted {
		records[i] = featureRecord{
			Timestamp:    r.Timestamp.UnixMilli(),
			Close:        r.Close,
			Volume:       r.Volume,
			Return1:      r.Return1,
			SMA7Ratio:    r.SMA7Ratio,
			SMA30Ratio:   r.SMA30Ratio,
			Volatility14: r.Volatility14,
			RSI14:        r.RSI14,
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating feature dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing feature file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing feature file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = sorted
	if fi, err := os.Stat(s.path); err == nil {
		s.modTime, s.size = fi.ModTime(), fi.Size()
	}
	return nil
}

// current returns the cached rows, reloading them if the file changed.
func (s *Store) current() ([]domain.FeatureRow, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", s.path, ErrNoFeatures)
		}
		return nil, fmt.Errorf("stat feature file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows != nil && fi.ModTime().Equal(s.modTime) && fi.Size() == s.size {
		return s.rows, nil
	}

	records, err := parquet.ReadFile[featureRecord](s.path)
	if err != nil {
		return nil, fmt.Errorf("reading feature file: %w", err)
	}
	rows := make([]domain.FeatureRow, len(records))
	for i, r := range records {
		rows[i] = domain.FeatureRow{
			Timestamp:    time.UnixMilli(r.Timestamp).UTC(),
			Close:        r.Close,
			Volume:       r.Volume,
			Return1:      r.Return1,
			SMA7Ratio:    r.SMA7Ratio,
			SMA30Ratio:   r.SMA30Ratio,
			Volatility14: r.Volatility14,
			RSI14:        r.RSI14,
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	s.rows, s.modTime, s.size = rows, fi.ModTime(), fi.Size()
	return rows, nil
}
