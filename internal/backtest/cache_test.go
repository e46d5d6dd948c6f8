package backtest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyString(t *testing.T) {
	k := Key{Dataset: "v1", Start: "2020-01-01", End: "2020-12-31", Params: defaultParams()}
	want := "v1|2020-01-01|2020-12-31|th=0.6|sl=0.05|tp=0.3|cap=1000|ps=1|ppy=365"
	if got := k.String(); got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}

	other := k
	other.Params.Threshold = 0.61
	if other.String() == k.String() {
		t.Error("keys with different thresholds render identically")
	}
}

func TestCacheSingleComputationPerKey(t *testing.T) {
	c := NewCache(nil, NewMemoryStore(8, time.Minute))

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (*Result, error) {
		calls.Add(1)
		<-release
		return &Result{Trades: nil}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Do(context.Background(), "k", fn)
		}(i)
	}

	// Let the callers pile up on the in-flight computation.
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("computation ran %d times, want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d received a different result", i)
		}
	}

	r, outcome, err := c.Do(context.Background(), "k", fn)
	if err != nil || outcome != OutcomeHit || r != results[0] {
		t.Errorf("repeat Do() = (%p, %q, %v), want cached hit", r, outcome, err)
	}
}

func TestCacheErrorsNotCached(t *testing.T) {
	store := NewMemoryStore(8, time.Minute)
	c := NewCache(nil, store)
	boom := errors.New("boom")

	_, _, err := c.Do(context.Background(), "k", func(context.Context) (*Result, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d after failure, want 0", store.Len())
	}

	_, outcome, err := c.Do(context.Background(), "k", func(context.Context) (*Result, error) {
		return &Result{}, nil
	})
	if err != nil || outcome != OutcomeComputed {
		t.Errorf("retry Do() = (%q, %v), want computed", outcome, err)
	}
}

func TestCacheWaiterCancellation(t *testing.T) {
	store := NewMemoryStore(8, time.Minute)
	c := NewCache(nil, store)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = c.Do(context.Background(), "k", func(ctx context.Context) (*Result, error) {
			close(started)
			<-release
			return &Result{}, ctx.Err()
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Do(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled waiter error = %v, want context.Canceled", err)
	}

	close(release)
	<-done
	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1 (computation finished for other callers)", store.Len())
	}
}

func TestCacheBackfillsFasterStore(t *testing.T) {
	fast := NewMemoryStore(8, time.Minute)
	slow := NewMemoryStore(8, time.Minute)
	want := &Result{}
	_ = slow.Set(context.Background(), "k", want)

	c := NewCache(nil, fast, slow)
	got, outcome, err := c.Do(context.Background(), "k", nil)
	if err != nil || outcome != OutcomeHit || got != want {
		t.Fatalf("Do() = (%p, %q, %v), want hit from slow store", got, outcome, err)
	}
	if r, ok, _ := fast.Get(context.Background(), "k"); !ok || r != want {
		t.Error("fast store was not backfilled")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*Result, bool, error) { return nil, false, nil }

func (failingStore) Set(context.Context, string, *Result) error { return errors.New("disk full") }

func TestCacheBackfillFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	slow := NewMemoryStore(8, time.Minute)
	want := &Result{}
	_ = slow.Set(context.Background(), "k", want)

	c := NewCache(log, failingStore{}, slow)
	got, outcome, err := c.Do(context.Background(), "k", nil)
	if err != nil || outcome != OutcomeHit || got != want {
		t.Fatalf("Do() = (%p, %q, %v), want hit despite failed backfill", got, outcome, err)
	}
	if out := buf.String(); !strings.Contains(out, "backfilling backtest result") || !strings.Contains(out, "disk full") {
		t.Errorf("log = %q, want backfill warning with the store error", out)
	}
}

func TestMemoryStoreTTLAndEviction(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	a, b, c := &Result{}, &Result{}, &Result{}
	_ = m.Set(ctx, "a", a)
	_ = m.Set(ctx, "b", b)
	_, _, _ = m.Get(ctx, "a") // a is now most recently used
	_ = m.Set(ctx, "c", c)

	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("least recently used entry was not evicted")
	}
	if r, ok, _ := m.Get(ctx, "a"); !ok || r != a {
		t.Error("recently used entry was evicted")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "c"); ok {
		t.Error("expired entry was returned")
	}
}
