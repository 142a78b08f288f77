// Package memory is an in-process kv.Store used for tests and the
// "memory" storage driver.
package memory

import (
	"context"
	"sync"

	"github.com/bryanwahyu/trapscan/internal/domain/kv"
)

type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(_ context.Context, key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), val...)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Update(_ context.Context, key string, fn kv.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.data[key]
	val, keep, err := fn(old, ok)
	if err != nil || !keep {
		return err
	}
	s.data[key] = val
	return nil
}

// Check implements middleware.HealthChecker.
func (s *Store) Check(context.Context) error { return nil }
