package backtest

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ResultStore is a keyed store of completed results.
type ResultStore interface {
	// Get returns the result for key. The bool is false on a miss.
	Get(ctx context.Context, key string) (*Result, bool, error)

	// Set stores the result for key.
	Set(ctx context.Context, key string, r *Result) error
}

// Key identifies a run by dataset version, date window, and parameters.
type Key struct {
	Dataset string
	Start   string
	End     string
	Params  Params
}

// String renders the key in a stable form suitable for store lookups.
func (k Key) String() string {
	p := k.Params
	return fmt.Sprintf("%s|%s|%s|th=%g|sl=%g|tp=%g|cap=%g|ps=%g|ppy=%g",
		k.Dataset, k.Start, k.End,
		p.Threshold, p.StopLossPct, p.TakeProfitPct, p.InitialCapital, p.PositionSize, p.PeriodsPerYear)
}

// Outcome describes how Cache.Do satisfied a request.
type Outcome string

const (
	OutcomeComputed Outcome = "computed"
	OutcomeShared   Outcome = "shared"
	OutcomeHit      Outcome = "hit"
)

// Cache runs at most one computation per key at a time. Concurrent callers
// for the same key wait for the in-flight result; completed results are
// served from the configured stores, checked in order.
type Cache struct {
	group  singleflight.Group
	stores []ResultStore
	log    *slog.Logger
}

// NewCache creates a Cache backed by the given stores, fastest first.
func NewCache(log *slog.Logger, stores ...ResultStore) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{stores: stores, log: log}
}

// Do returns the result for key, computing it with fn on a miss. The shared
// computation is detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done. Errors are never cached.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) (*Result, error)) (*Result, Outcome, error) {
	if r, ok := c.lookup(ctx, key); ok {
		return r, OutcomeHit, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if r, ok := c.lookup(detached, key); ok {
			return r, nil
		}
		r, err := fn(detached)
		if err != nil {
			return nil, err
		}
		for _, s := range c.stores {
			if err := s.Set(detached, key, r); err != nil {
				c.log.Warn("storing backtest result", "key", key, "error", err)
			}
		}
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		outcome := OutcomeComputed
		if res.Shared {
			outcome = OutcomeShared
		}
		return res.Val.(*Result), outcome, nil
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (*Result, bool) {
	for i, s := range c.stores {
		r, ok, err := s.Get(ctx, key)
		if err != nil {
			c.log.Warn("reading backtest result", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		// Backfill faster tiers.
		for _, faster := range c.stores[:i] {
			if err := faster.Set(ctx, key, r); err != nil {
				c.log.Warn("backfilling backtest result", "key", key, "error", err)
			}
		}
		return r, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

// Compile-time interface check.
var _ ResultStore = (*MemoryStore)(nil)

type memEntry struct {
	key     string
	result  *Result
	expires time.Time
}

// MemoryStore is an in-process LRU of results with a per-entry TTL.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most maxSize entries, each
// valid for ttl. A non-positive ttl disables expiry.
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &MemoryStore{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns a live entry and marks it recently used.
func (m *MemoryStore) Get(_ context.Context, key string) (*Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memEntry)
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.order.Remove(el)
		delete(m.entries, key)
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	return e.result, true, nil
}

// Set inserts or replaces an entry, evicting the least recently used entry
// when full.
func (m *MemoryStore) Set(_ context.Context, key string, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if m.ttl > 0 {
		expires = m.now().Add(m.ttl)
	}
	if el, ok := m.entries[key]; ok {
		e := el.Value.(*memEntry)
		e.result, e.expires = r, expires
		m.order.MoveToFront(el)
		return nil
	}

	m.entries[key] = m.order.PushFront(&memEntry{key: key, result: r, expires: expires})
	for m.order.Len() > m.maxSize {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memEntry).key)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
