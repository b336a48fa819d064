package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
)

// sweepInterval is how many writes pass between scans for expired entries.
const sweepInterval = 256

var errNoLoader = errors.New("cache: loader is required")

type entry[T any] struct {
	value   T
	expires time.Time
}

func (e entry[T]) fresh(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// Store is an in-process TTL cache keyed by string. A zero ttl keeps entries
// until they are deleted. Concurrent loads of one key share a single call.
type Store[T any] struct {
	ttl    time.Duration
	now    func() time.Time
	flight resilience.Group[T]

	mu      sync.RWMutex
	entries map[string]entry[T]
	writes  int
}

func NewStore[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
	}
}

func (s *Store[T]) Get(_ context.Context, key string) (T, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !e.fresh(s.now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (s *Store[T]) Set(_ context.Context, key string, value T) {
	if key == "" {
		return
	}
	now := s.now()
	e := entry[T]{value: value}
	if s.ttl > 0 {
		e.expires = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	if s.writes++; s.ttl > 0 && s.writes%sweepInterval == 0 {
		for k, old := range s.entries {
			if !old.fresh(now) {
				delete(s.entries, k)
			}
		}
	}
}

func (s *Store[T]) Delete(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// DeletePrefix drops every key starting with prefix. An empty prefix is a
// no-op rather than a purge.
func (s *Store[T]) DeletePrefix(_ context.Context, prefix string) {
	if prefix == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
}

// Len counts stored entries, expired ones included until they are swept.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetOrLoad returns the cached value or calls load, once per key across
// concurrent callers. Errors are returned to every waiter and not cached. An
// empty key bypasses the cache.
func (s *Store[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if load == nil {
		var zero T
		return zero, errNoLoader
	}
	if key == "" {
		return load(ctx)
	}
	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	value, _, err := s.flight.Do(key, func() (T, error) {
		if value, ok := s.Get(ctx, key); ok {
			return value, nil
		}
		value, err := load(ctx)
		if err == nil {
			s.Set(ctx, key, value)
		}
		return value, err
	})
	return value, err
}
