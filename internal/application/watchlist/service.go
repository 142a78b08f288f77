package watchlist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/application/cache"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/history"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	domainusage "github.com/bryanwahyu/trapscan/internal/domain/usage"
	domain "github.com/bryanwahyu/trapscan/internal/domain/watchlist"
)

var ErrNotFound = apperr.New(apperr.KindNotFound, "watchlist item not found")

// TierSource reports the current subscription tier.
type TierSource interface {
	Tier(ctx context.Context) (domainusage.Tier, error)
}

// AlertGate reports whether change alerts are enabled.
type AlertGate interface {
	AlertsEnabled(ctx context.Context) (bool, error)
}

type Service struct {
	Store     kv.Store
	Tiers     TierSource
	Alerts    AlertGate
	Pages     domain.PageSource
	Notifiers []domain.Notifier
	Clock     application.Clock
}

func NewService(store kv.Store, tiers TierSource, alerts AlertGate, pages domain.PageSource, clock application.Clock, notifiers ...domain.Notifier) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{Store: store, Tiers: tiers, Alerts: alerts, Pages: pages, Clock: clock, Notifiers: notifiers}
}

func (s *Service) load(ctx context.Context) ([]domain.Item, error) {
	items, _, err := kv.GetJSON[[]domain.Item](ctx, s.Store, kv.KeyWatchlist)
	return items, err
}

// Add starts watching the analyzed page. The first check records the
// content baseline.
func (s *Service) Add(ctx context.Context, r *analysis.Result) (domain.Item, error) {
	if r == nil || r.URL == "" {
		return domain.Item{}, apperr.New(apperr.KindInvalid, "analysis result with url required")
	}
	tier, err := s.Tiers.Tier(ctx)
	if err != nil {
		return domain.Item{}, err
	}
	plan := domainusage.PlanFor(tier)

	now := s.Clock.Now()
	item := domain.Item{
		ID:          uuid.NewString(),
		URL:         r.URL,
		Domain:      history.DomainOf(r.URL),
		Title:       r.Title,
		LastChecked: now,
		AddedAt:     now,
		LastResult:  r,
	}
	_, err = kv.UpdateJSON(ctx, s.Store, kv.KeyWatchlist, func(items []domain.Item, _ bool) ([]domain.Item, error) {
		if lo.ContainsBy(items, func(it domain.Item) bool { return it.URL == r.URL }) {
			return nil, apperr.New(apperr.KindInvalid, "already in watchlist")
		}
		if len(items) >= plan.Features.WatchlistSize {
			return nil, apperr.New(apperr.KindUsageLimit,
				fmt.Sprintf("Your %s plan allows %d watchlist items. Upgrade to add more!", plan.Name, plan.Features.WatchlistSize))
		}
		return append(items, item), nil
	})
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	_, err := kv.UpdateJSON(ctx, s.Store, kv.KeyWatchlist, func(items []domain.Item, _ bool) ([]domain.Item, error) {
		next := lo.Reject(items, func(it domain.Item, _ int) bool { return it.ID == id })
		if len(next) == len(items) {
			return nil, ErrNotFound
		}
		return next, nil
	})
	return err
}

// List returns items with changes first, then newest first.
func (s *Service) List(ctx context.Context) ([]domain.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Item{}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].HasChanges != items[j].HasChanges {
			return items[i].HasChanges
		}
		return items[i].AddedAt.After(items[j].AddedAt)
	})
	return items, nil
}

// Acknowledge clears the change flag of an item.
func (s *Service) Acknowledge(ctx context.Context, id string) error {
	_, err := kv.UpdateJSON(ctx, s.Store, kv.KeyWatchlist, func(items []domain.Item, _ bool) ([]domain.Item, error) {
		_, idx, ok := lo.FindIndexOf(items, func(it domain.Item) bool { return it.ID == id })
		if !ok {
			return nil, ErrNotFound
		}
		items[idx].HasChanges = false
		return items, nil
	})
	return err
}

// CheckAll fetches every item and flags the ones whose text changed.
// Fetch failures are recorded per item and do not stop the pass.
func (s *Service) CheckAll(ctx context.Context) (domain.CheckReport, error) {
	var rep domain.CheckReport
	if s.Alerts != nil {
		on, err := s.Alerts.AlertsEnabled(ctx)
		if err != nil {
			return rep, err
		}
		if !on {
			rep.Skipped = true
			return rep, nil
		}
	}

	items, err := s.load(ctx)
	if err != nil || len(items) == 0 {
		return rep, err
	}

	type outcome struct {
		hash string
		err  error
	}
	results := make(map[string]outcome, len(items))
	for _, it := range items {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		text, err := s.Pages.FetchText(ctx, it.URL)
		if err != nil {
			results[it.ID] = outcome{err: err}
			continue
		}
		results[it.ID] = outcome{hash: cache.HashText(text)}
	}

	now := s.Clock.Now()
	var changes []domain.Change
	_, err = kv.UpdateJSON(ctx, s.Store, kv.KeyWatchlist, func(cur []domain.Item, _ bool) ([]domain.Item, error) {
		changes = changes[:0]
		for i := range cur {
			res, ok := results[cur[i].ID]
			if !ok {
				continue
			}
			cur[i].LastChecked = now
			if res.err != nil {
				cur[i].LastError = res.err.Error()
				continue
			}
			cur[i].LastError = ""
			if cur[i].LastHash != "" && cur[i].LastHash != res.hash {
				changes = append(changes, domain.Change{Item: cur[i], OldHash: cur[i].LastHash, NewHash: res.hash, DetectedAt: now})
				cur[i].HasChanges = true
			}
			cur[i].LastHash = res.hash
		}
		return cur, nil
	})
	if err != nil {
		return rep, err
	}

	for _, res := range results {
		rep.Checked++
		if res.err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, res.err.Error())
		}
	}
	sort.Strings(rep.Errors)
	rep.Changed = len(changes)

	for _, c := range changes {
		for _, n := range s.Notifiers {
			if err := n.Notify(ctx, c); err != nil {
				log.Warn().Err(err).Str("url", c.Item.URL).Msg("watchlist notify failed")
			}
		}
	}
	return rep, nil
}

// Run checks the watchlist every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := s.CheckAll(ctx)
			if err != nil {
				log.Error().Err(err).Msg("watchlist check failed")
				continue
			}
			log.Info().Int("checked", rep.Checked).Int("changed", rep.Changed).Int("failed", rep.Failed).Bool("skipped", rep.Skipped).Msg("watchlist checked")
		}
	}
}
