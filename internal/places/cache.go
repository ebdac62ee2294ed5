package places

import (
	"context"
	"errors"
	"sync"
	"time"

	"reliefmap/internal/logger"
	"reliefmap/internal/metrics"
)

var (
	// ErrClosed is returned by reads after the cache has been closed.
	ErrClosed = errors.New("places: cache closed")
	// ErrInvalidated is returned to callers waiting on an evicted query.
	ErrInvalidated = errors.New("places: query invalidated")
)

// State is a read-only view of one cache key.
type State[V any] struct {
	Data      V
	HasData   bool
	UpdatedAt time.Time
	// Err is the last fetch failure; it does not clear Data.
	Err      error
	Fetching bool
	Stale    bool
}

type loadFunc[V any] func(ctx context.Context, current V, has bool) (V, error)

type flight struct {
	gen        uint64
	done       chan struct{}
	cancel     context.CancelFunc
	superseded bool
}

type entry[V any] struct {
	data      V
	hasData   bool
	updatedAt time.Time
	err       error
	flight    *flight
}

// cache is a stale-while-revalidate store keyed by query. A new fetch for a
// key supersedes the one in flight: the old one is cancelled and its result
// is never applied.
type cache[V any] struct {
	mu         sync.Mutex
	now        func() time.Time
	staleAfter time.Duration
	gcAfter    time.Duration
	base       context.Context
	stop       context.CancelFunc
	closed     bool
	gen        uint64
	entries    map[string]*entry[V]
	onChange   func(key string)
}

func newCache[V any](staleAfter, gcAfter time.Duration, now func() time.Time, onChange func(string)) *cache[V] {
	base, stop := context.WithCancel(context.Background())
	return &cache[V]{
		now:        now,
		staleAfter: staleAfter,
		gcAfter:    gcAfter,
		base:       base,
		stop:       stop,
		entries:    map[string]*entry[V]{},
		onChange:   onChange,
	}
}

// get returns fresh data without fetching, stale data while a background
// refetch runs, or waits for a fetch when nothing is cached.
func (c *cache[V]) get(ctx context.Context, key string, load loadFunc[V]) (V, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		var zero V
		return zero, ErrClosed
	}
	c.sweepLocked()
	e := c.entryLocked(key)
	if e.hasData {
		data := e.data
		if c.now().Sub(e.updatedAt) < c.staleAfter {
			c.mu.Unlock()
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return data, nil
		}
		if e.flight == nil {
			c.startLocked(key, e, load)
		}
		c.mu.Unlock()
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return data, nil
	}
	f := e.flight
	if f == nil {
		f = c.startLocked(key, e, load)
	}
	c.mu.Unlock()
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return c.wait(ctx, key, f)
}

// refresh always starts a new fetch, superseding any in flight, and waits.
func (c *cache[V]) refresh(ctx context.Context, key string, load loadFunc[V]) (V, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		var zero V
		return zero, ErrClosed
	}
	f := c.startLocked(key, c.entryLocked(key), load)
	c.mu.Unlock()
	return c.wait(ctx, key, f)
}

func (c *cache[V]) entryLocked(key string) *entry[V] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	return e
}

func (c *cache[V]) startLocked(key string, e *entry[V], load loadFunc[V]) *flight {
	if e.flight != nil {
		e.flight.superseded = true
		e.flight.cancel()
	}
	c.gen++
	ctx, cancel := context.WithCancel(c.base)
	f := &flight{gen: c.gen, done: make(chan struct{}), cancel: cancel}
	e.flight = f
	current, has := e.data, e.hasData
	go c.run(ctx, key, f, load, current, has)
	return f
}

func (c *cache[V]) run(ctx context.Context, key string, f *flight, load loadFunc[V], current V, has bool) {
	defer close(f.done)
	defer f.cancel()

	data, err := load(ctx, current, has)

	c.mu.Lock()
	e := c.entries[key]
	if c.closed || e == nil || e.flight != f {
		c.mu.Unlock()
		metrics.PlaceFetches.WithLabelValues(key, "superseded").Inc()
		return
	}
	e.flight = nil
	if err != nil {
		e.err = err
	} else {
		e.data, e.hasData, e.updatedAt, e.err = data, true, c.now(), nil
	}
	notify := c.onChange
	c.mu.Unlock()

	if err != nil {
		metrics.PlaceFetches.WithLabelValues(key, "error").Inc()
		logger.L().Warn("places_fetch_error", "key", key, "err", err)
	} else {
		metrics.PlaceFetches.WithLabelValues(key, "ok").Inc()
	}
	if notify != nil {
		notify(key)
	}
}

// wait blocks until f completes. If f was superseded it follows the newer
// fetch so the caller sees the latest request's result.
func (c *cache[V]) wait(ctx context.Context, key string, f *flight) (V, error) {
	var zero V
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-f.done:
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		e := c.entries[key]
		if e == nil {
			c.mu.Unlock()
			return zero, ErrInvalidated
		}
		if f.superseded && e.flight != nil {
			f = e.flight
			c.mu.Unlock()
			continue
		}
		data, err := e.data, e.err
		c.mu.Unlock()
		return data, err
	}
}

func (c *cache[V]) state(key string) State[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[V]{}
	}
	return State[V]{
		Data:      e.data,
		HasData:   e.hasData,
		UpdatedAt: e.updatedAt,
		Err:       e.err,
		Fetching:  e.flight != nil,
		Stale:     e.hasData && c.now().Sub(e.updatedAt) >= c.staleAfter,
	}
}

// sweepLocked drops idle entries whose data is older than gcAfter.
func (c *cache[V]) sweepLocked() {
	if c.gcAfter <= 0 {
		return
	}
	now := c.now()
	for k, e := range c.entries {
		if e.flight == nil && e.hasData && now.Sub(e.updatedAt) >= c.gcAfter {
			delete(c.entries, k)
		}
	}
}

// invalidate evicts keys (all keys when none given) and cancels their fetches.
func (c *cache[V]) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		for k := range c.entries {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			if e.flight != nil {
				e.flight.superseded = true
				e.flight.cancel()
			}
			delete(c.entries, k)
		}
	}
}

// close abandons in-flight fetches; their results are discarded.
func (c *cache[V]) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
}
