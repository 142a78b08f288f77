// Package notify delivers watchlist change alerts.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/domain/watchlist"
)

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, c watchlist.Change) error {
	log.Warn().
		Str("url", c.Item.URL).
		Str("domain", c.Item.Domain).
		Str("old_hash", c.OldHash).
		Str("new_hash", c.NewHash).
		Msg("terms changed")
	return nil
}
