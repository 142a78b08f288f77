package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Namespaced keys used by trapscan.
const (
	KeyAnalysisCache   = "mta_analysis_cache"
	KeyOfflineCache    = "mta_offline_cache"
	KeyUsage           = "mta_usage"
	KeyTier            = "mta_tier"
	KeySubscription    = "mta_subscription"
	KeyRateLimit       = "mta_rate_limit"
	KeyRequestHistory  = "mta_request_history"
	KeyAnalysisHistory = "mta_analysis_history"
	KeyWatchlist       = "mta_watchlist"
	KeySettings        = "mta_settings"
	KeySession         = "session"
)

// UpdateFunc receives the current value (ok=false when absent) and returns
// the value to store. Returning keep=false leaves the key untouched.
type UpdateFunc func(old []byte, ok bool) (val []byte, keep bool, err error)

// Store is the persisted key/value port. Update runs the whole
// read-modify-write under the store lock.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Remove(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// GetJSON decodes key into a T. ok is false when the key is absent.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// UpdateJSON atomically loads key as T, applies fn and stores the result.
// An undecodable stored value is treated as absent.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(cur T, ok bool) (T, error)) (T, error) {
	var result T
	err := s.Update(ctx, key, func(old []byte, ok bool) ([]byte, bool, error) {
		var cur T
		if ok {
			if err := json.Unmarshal(old, &cur); err != nil {
				var zero T
				cur, ok = zero, false
			}
		}
		next, err := fn(cur, ok)
		if err != nil {
			return nil, false, err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return nil, false, fmt.Errorf("encode %s: %w", key, err)
		}
		result = next
		return raw, true, nil
	})
	return result, err
}
