package cache

import (
	"context"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
)

// Offline keeps results by URL for reading without network access.
type Offline struct {
	*Cache
}

func NewOffline(c *Cache) *Offline { return &Offline{Cache: c} }

func urlKey(url string) string { return HashText(url) }

func (o *Offline) Save(ctx context.Context, url string, result *analysis.Result) error {
	return o.Set(ctx, urlKey(url), url, result)
}

// Lookup returns the saved result for url, if still within TTL.
func (o *Offline) Lookup(ctx context.Context, url string) (*Entry, bool, error) {
	return o.Get(ctx, urlKey(url))
}

func (o *Offline) Delete(ctx context.Context, url string) error {
	return o.Remove(ctx, urlKey(url))
}
