package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/metrics"
	"github.com/vogiaan1904/ticketbottle-queuesync/pkg/logger"
)

const DefaultFetchTimeout = 10 * time.Second

var ErrClosed = errors.New("cache handle closed")

// FetchFunc loads the value for key. ctx carries the fetch timeout.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Entry is a point-in-time view of one key.
type Entry[T any] struct {
	Key       string
	Value     T
	HasValue  bool
	FetchedAt time.Time
	Loading   bool
	Err       error
}

type entry[T any] struct {
	value     T
	hasValue  bool
	fetchedAt time.Time
	err       error
	// waiters counts DoChan calls whose result has not been received yet.
	waiters int
	handles int
}

// Cache memoizes the results of one fetch function by key. At most one fetch per key
// runs at a time unless Refresh supersedes it; when fetches overlap, the one that
// resolves last is stored.
type Cache[T any] struct {
	fetch   FetchFunc[T]
	maxAge  time.Duration
	timeout time.Duration
	now     func() time.Time
	l       logger.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry[T]
}

type Option[T any] func(*Cache[T])

// WithMaxAge sets how long a value stays fresh. Zero disables expiry.
func WithMaxAge[T any](d time.Duration) Option[T] {
	return func(c *Cache[T]) {
		c.maxAge = d
	}
}

func WithFetchTimeout[T any](d time.Duration) Option[T] {
	return func(c *Cache[T]) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		c.now = now
	}
}

func New[T any](fetch FetchFunc[T], l logger.Logger, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		fetch:   fetch,
		timeout: DefaultFetchTimeout,
		now:     time.Now,
		l:       l,
		entries: make(map[string]*entry[T]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the current state of key without blocking. It starts a fetch when the
// key has never been fetched or its value is stale, and no fetch is already running.
// A failed fetch is not retried by Read.
func (c *Cache[T]) Read(ctx context.Context, key string) Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	switch {
	case c.needsFetch(e):
		ch := c.start(ctx, key, false)
		go c.drain(e, ch)
	case e.hasValue:
		metrics.CacheHits.Inc()
	}

	return c.snapshot(key, e)
}

// Load returns the value for key, fetching it when missing or stale. Concurrent loads
// of the same key share one fetch. On failure the previous value stays cached.
func (c *Cache[T]) Load(ctx context.Context, key string) (T, error) {
	c.mu.Lock()
	e := c.lookup(key)
	if e.hasValue && !c.stale(e) {
		v := e.value
		c.mu.Unlock()
		metrics.CacheHits.Inc()
		return v, nil
	}
	ch := c.start(ctx, key, false)
	c.mu.Unlock()

	return c.wait(ctx, e, ch)
}

// Refresh fetches key regardless of freshness, without joining a fetch already in
// flight.
func (c *Cache[T]) Refresh(ctx context.Context, key string) (T, error) {
	c.mu.Lock()
	e := c.lookup(key)
	ch := c.start(ctx, key, true)
	c.mu.Unlock()

	return c.wait(ctx, e, ch)
}

// Peek returns the state of key without starting a fetch.
func (c *Cache[T]) Peek(key string) Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[T]{Key: key}
	}
	return c.snapshot(key, e)
}

func (c *Cache[T]) lookup(key string) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache[T]) stale(e *entry[T]) bool {
	return c.maxAge > 0 && c.now().Sub(e.fetchedAt) > c.maxAge
}

func (c *Cache[T]) needsFetch(e *entry[T]) bool {
	if e.waiters > 0 {
		return false
	}
	if !e.hasValue {
		return e.err == nil
	}
	return c.stale(e)
}

// start must be called with c.mu held. Every returned channel must be received from
// exactly once, through wait or drain.
func (c *Cache[T]) start(ctx context.Context, key string, force bool) <-chan singleflight.Result {
	if force {
		c.group.Forget(key)
	}

	c.entries[key].waiters++

	fetchCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(key, func() (any, error) {
		return c.run(fetchCtx, key)
	})
}

// run performs one fetch and stores its outcome in the live entry for key, if any.
func (c *Cache[T]) run(ctx context.Context, key string) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := c.fetch(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		metrics.CacheFetches.WithLabelValues("error").Inc()
		c.l.Warnf(ctx, "cache.Cache.run: key=%s: %v", key, err)
	} else {
		metrics.CacheFetches.WithLabelValues("ok").Inc()
	}

	e, ok := c.entries[key]
	if !ok {
		// abandoned while the fetch was running
		return v, err
	}

	if err != nil {
		e.err = err
		return v, err
	}

	e.value = v
	e.hasValue = true
	e.fetchedAt = c.now()
	e.err = nil

	return v, nil
}

func (c *Cache[T]) wait(ctx context.Context, e *entry[T], ch <-chan singleflight.Result) (T, error) {
	var zero T

	select {
	case res := <-ch:
		c.received(e)
		if res.Shared {
			metrics.CacheSharedFetches.Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		go c.drain(e, ch)
		return zero, ctx.Err()
	}
}

func (c *Cache[T]) drain(e *entry[T], ch <-chan singleflight.Result) {
	<-ch
	c.received(e)
}

func (c *Cache[T]) received(e *entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.waiters > 0 {
		e.waiters--
	}
}

// activate starts a fetch for key unless it holds a fresh value or one is running.
// Unlike Read it also retries a key whose last fetch failed.
func (c *Cache[T]) activate(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if e.waiters > 0 || (e.hasValue && !c.stale(e)) {
		return
	}

	ch := c.start(ctx, key, false)
	go c.drain(e, ch)
}

func (c *Cache[T]) snapshot(key string, e *entry[T]) Entry[T] {
	return Entry[T]{
		Key:       key,
		Value:     e.value,
		HasValue:  e.hasValue,
		FetchedAt: e.fetchedAt,
		Loading:   e.waiters > 0,
		Err:       e.err,
	}
}

func (c *Cache[T]) retain(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookup(key).handles++
}

func (c *Cache[T]) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}

	e.handles--
	if e.handles <= 0 {
		delete(c.entries, key)
	}
}
