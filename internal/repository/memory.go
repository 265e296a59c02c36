package repository

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	notifier *Notifier
}

// NewMemoryStore returns a process-local KeyValueStore.
func NewMemoryStore() KeyValueStore {
	return &memoryStore{
		data:     make(map[string][]byte),
		notifier: NewNotifier(),
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()

	s.notifier.Notify(key)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	if existed {
		s.notifier.Notify(key)
	}
	return nil
}

func (s *memoryStore) Subscribe(ctx context.Context, key string) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(key)
}
