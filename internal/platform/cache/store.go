// Package cache provides a process-lifetime lookup store for remote data that
// never changes once fetched (per-game stat categories, per-league scoring
// settings). Entries are append-only: there is no eviction and no TTL, which
// is a known limitation accepted for this workload.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/calewis/yahoo-matchup/internal/platform/resilience"
)

type Store struct {
	mu      sync.RWMutex
	entries map[string]any
	flight  resilience.SingleFlight
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]any),
	}
}

func (s *Store) Get(_ context.Context, key string) (any, bool) {
	if key == "" {
		return nil, false
	}

	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()
	return value, ok
}

func (s *Store) Set(_ context.Context, key string, value any) {
	if key == "" {
		return
	}

	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetOrLoad returns the cached value for key, invoking loader at most once
// across concurrent callers when the key is missing. Loader failures are not
// cached; the next caller retries.
func (s *Store) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (any, error)) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := s.flight.Do(key, func() (any, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}
