// Package kvstore keeps history as a single JSON list in the KV store.
package kvstore

import (
	"context"

	"github.com/samber/lo"

	"github.com/bryanwahyu/trapscan/internal/domain/history"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
)

type HistoryRepository struct {
	store kv.Store
	key   string
}

func NewHistoryRepository(store kv.Store) *HistoryRepository {
	return &HistoryRepository{store: store, key: kv.KeyAnalysisHistory}
}

func (r *HistoryRepository) load(ctx context.Context) ([]*history.Entry, error) {
	list, _, err := kv.GetJSON[[]*history.Entry](ctx, r.store, r.key)
	return list, err
}

// Save replaces an existing URL in place or prepends a new entry.
func (r *HistoryRepository) Save(ctx context.Context, e *history.Entry) error {
	_, err := kv.UpdateJSON(ctx, r.store, r.key, func(list []*history.Entry, _ bool) ([]*history.Entry, error) {
		_, idx, found := lo.FindIndexOf(list, func(it *history.Entry) bool { return it.URL == e.URL })
		if found {
			e.AddedAt = list[idx].AddedAt
			list[idx] = e
			return list, nil
		}
		list = append([]*history.Entry{e}, list...)
		if len(list) > history.MaxEntries {
			list = list[:history.MaxEntries]
		}
		return list, nil
	})
	return err
}

func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]*history.Entry, error) {
	list, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []*history.Entry{}, nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (r *HistoryRepository) Get(ctx context.Context, url string) (*history.Entry, error) {
	list, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := lo.Find(list, func(it *history.Entry) bool { return it.URL == url })
	if !ok {
		return nil, history.ErrNotFound
	}
	return e, nil
}

func (r *HistoryRepository) Delete(ctx context.Context, url string) error {
	_, err := kv.UpdateJSON(ctx, r.store, r.key, func(list []*history.Entry, _ bool) ([]*history.Entry, error) {
		return lo.Reject(list, func(it *history.Entry, _ int) bool { return it.URL == url }), nil
	})
	return err
}

func (r *HistoryRepository) Clear(ctx context.Context) error {
	return r.store.Remove(ctx, r.key)
}

func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	list, err := r.load(ctx)
	return len(list), err
}
