package cache

import (
	"context"
	"sync"
)

// Handle is one consumer's view of a cache key. While any handle holds a key its
// entry is kept; when the last handle lets go, the entry is dropped and results of
// fetches still running for it are discarded.
type Handle[T any] struct {
	c *Cache[T]

	mu     sync.Mutex
	key    string
	closed bool
}

// Use returns a handle on key and starts fetching it if needed.
func (c *Cache[T]) Use(ctx context.Context, key string) *Handle[T] {
	c.retain(key)
	c.activate(ctx, key)
	return &Handle[T]{c: c, key: key}
}

func (h *Handle[T]) Key() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.key
}

func (h *Handle[T]) Read(ctx context.Context) Entry[T] {
	key, err := h.current()
	if err != nil {
		return Entry[T]{Key: key, Err: err}
	}
	return h.c.Read(ctx, key)
}

func (h *Handle[T]) Load(ctx context.Context) (T, error) {
	key, err := h.current()
	if err != nil {
		var zero T
		return zero, err
	}
	return h.c.Load(ctx, key)
}

func (h *Handle[T]) Refresh(ctx context.Context) (T, error) {
	key, err := h.current()
	if err != nil {
		var zero T
		return zero, err
	}
	return h.c.Refresh(ctx, key)
}

// SetKey moves the handle to key, releasing the previous one.
func (h *Handle[T]) SetKey(ctx context.Context, key string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if key == h.key {
		h.mu.Unlock()
		return nil
	}
	old := h.key
	h.key = key
	h.mu.Unlock()

	h.c.retain(key)
	h.c.release(old)
	h.c.activate(ctx, key)
	return nil
}

func (h *Handle[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.c.release(h.key)
}

func (h *Handle[T]) current() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return h.key, ErrClosed
	}
	return h.key, nil
}
