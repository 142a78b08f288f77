package history

import (
	"context"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

var ErrNotFound = apperr.New(apperr.KindNotFound, "history entry not found")

// Repository stores history entries newest first. Save replaces the entry
// for an existing URL in place, otherwise it prepends and trims to
// MaxEntries.
type Repository interface {
	Save(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit, offset int) ([]*Entry, error)
	Get(ctx context.Context, url string) (*Entry, error)
	Delete(ctx context.Context, url string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}
