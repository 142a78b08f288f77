// Package leveldb implements kv.Store on top of goleveldb.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/bryanwahyu/trapscan/internal/domain/kv"
)

const keyPrefix = "kv:"

type Store struct {
	db *leveldb.DB
	// mu serializes Update so read-modify-write is atomic
	mu sync.Mutex
}

// Open buka database leveldb di path
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store backed by goleveldb's in-memory storage.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := s.db.Get([]byte(keyPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) Set(_ context.Context, key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(keyPrefix+key), val, &opt.WriteOptions{Sync: true})
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete([]byte(keyPrefix+key), nil)
}

func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	val, keep, err := fn(old, ok)
	if err != nil || !keep {
		return err
	}
	return s.db.Put([]byte(keyPrefix+key), val, &opt.WriteOptions{Sync: true})
}

// Check implements middleware.HealthChecker.
func (s *Store) Check(context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}
