package settings

import (
	"context"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	domain "github.com/bryanwahyu/trapscan/internal/domain/settings"
)

// Service persists settings in the KV store, falling back to Defaults.
type Service struct {
	Store    kv.Store
	Defaults domain.Settings
}

func NewService(store kv.Store, defaults domain.Settings) *Service {
	return &Service{Store: store, Defaults: defaults}
}

func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	cur, ok, err := kv.GetJSON[domain.Settings](ctx, s.Store, kv.KeySettings)
	if err != nil || !ok {
		return s.Defaults, err
	}
	if cur.MaxChars <= 0 {
		cur.MaxChars = s.Defaults.MaxChars
	}
	if cur.AnalysisMode == "" {
		cur.AnalysisMode = s.Defaults.AnalysisMode
	}
	return cur, nil
}

func (s *Service) Update(ctx context.Context, p domain.Patch) (domain.Settings, error) {
	return kv.UpdateJSON(ctx, s.Store, kv.KeySettings, func(cur domain.Settings, ok bool) (domain.Settings, error) {
		if !ok {
			cur = s.Defaults
		}
		next, err := cur.Apply(p)
		if err != nil {
			return cur, apperr.Wrap(apperr.KindInvalid, "invalid settings", err)
		}
		return next, nil
	})
}

// Reset restores the defaults.
func (s *Service) Reset(ctx context.Context) error {
	return s.Store.Remove(ctx, kv.KeySettings)
}

// AlertsEnabled reports whether watchlist change alerts are on.
func (s *Service) AlertsEnabled(ctx context.Context) (bool, error) {
	cur, err := s.Get(ctx)
	return cur.WatchlistAlerts, err
}
