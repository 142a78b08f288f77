// Package cache keeps recent analysis results keyed by content hash, plus a
// longer lived offline copy keyed by URL.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
)

// Entry is one cached result. Timestamp is unix milliseconds.
type Entry struct {
	Hash      string           `json:"hash"`
	Timestamp int64            `json:"timestamp"`
	URL       string           `json:"url,omitempty"`
	Data      *analysis.Result `json:"data"`
}

type Config struct {
	Key        string
	MaxEntries int
	TTL        time.Duration
}

type Stats struct {
	Entries    int        `json:"entries"`
	MaxEntries int        `json:"maxEntries"`
	TTLSeconds int64      `json:"ttlSeconds"`
	Oldest     *time.Time `json:"oldest,omitempty"`
	Newest     *time.Time `json:"newest,omitempty"`
}

// Cache is a bounded, TTL'd map persisted as a single KV value.
type Cache struct {
	store kv.Store
	clock application.Clock
	cfg   Config
}

func New(store kv.Store, clock application.Clock, cfg Config) *Cache {
	return &Cache{store: store, clock: clock, cfg: cfg}
}

type entries map[string]Entry

func (c *Cache) expired(e Entry, now time.Time) bool {
	return now.Sub(time.UnixMilli(e.Timestamp)) > c.cfg.TTL
}

// Get returns the entry for key. An expired entry is deleted and reported
// absent.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var found *Entry
	now := c.clock.Now()
	err := c.store.Update(ctx, c.cfg.Key, func(old []byte, ok bool) ([]byte, bool, error) {
		if !ok {
			return nil, false, nil
		}
		m, err := decode(old)
		if err != nil {
			return nil, false, nil
		}
		e, hit := m[key]
		if !hit {
			return nil, false, nil
		}
		if c.expired(e, now) {
			delete(m, key)
			raw, err := encode(m)
			return raw, err == nil, err
		}
		found = &e
		return nil, false, nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

// Set stores result under key. When the cache is full the oldest entries
// are evicted first so the size never exceeds MaxEntries.
func (c *Cache) Set(ctx context.Context, key, url string, result *analysis.Result) error {
	now := c.clock.Now()
	_, err := kv.UpdateJSON(ctx, c.store, c.cfg.Key, func(m entries, _ bool) (entries, error) {
		if m == nil {
			m = entries{}
		}
		if _, exists := m[key]; !exists && len(m) >= c.cfg.MaxEntries {
			evictOldest(m, len(m)-c.cfg.MaxEntries+1)
		}
		m[key] = Entry{Hash: key, Timestamp: now.UnixMilli(), URL: url, Data: result}
		return m, nil
	})
	return err
}

func evictOldest(m entries, n int) {
	list := lo.Values(m)
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
	for i := 0; i < n && i < len(list); i++ {
		delete(m, list[i].Hash)
	}
	log.Debug().Int("evicted", n).Msg("cache eviction")
}

func (c *Cache) Remove(ctx context.Context, key string) error {
	_, err := kv.UpdateJSON(ctx, c.store, c.cfg.Key, func(m entries, _ bool) (entries, error) {
		delete(m, key)
		return m, nil
	})
	return err
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Remove(ctx, c.cfg.Key)
}

// List returns live entries, newest first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	m, _, err := kv.GetJSON[entries](ctx, c.store, c.cfg.Key)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	list := lo.Filter(lo.Values(m), func(e Entry, _ int) bool { return !c.expired(e, now) })
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp > list[j].Timestamp })
	return list, nil
}

func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	list, err := c.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Entries: len(list), MaxEntries: c.cfg.MaxEntries, TTLSeconds: int64(c.cfg.TTL.Seconds())}
	if len(list) > 0 {
		newest := time.UnixMilli(list[0].Timestamp)
		oldest := time.UnixMilli(list[len(list)-1].Timestamp)
		st.Newest, st.Oldest = &newest, &oldest
	}
	return st, nil
}

func decode(raw []byte) (entries, error) {
	var m entries
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func encode(m entries) ([]byte, error) { return json.Marshal(m) }
