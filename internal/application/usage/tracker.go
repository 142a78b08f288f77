// Package usage tracks how many analyses were run in the current billing
// period and what the active tier allows.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	domain "github.com/bryanwahyu/trapscan/internal/domain/usage"
)

type Tracker struct {
	Store    kv.Store
	Clock    application.Clock
	Location *time.Location
}

func NewTracker(store kv.Store, clock application.Clock, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{Store: store, Clock: clock, Location: loc}
}

func (t *Tracker) now() time.Time { return t.Clock.Now().In(t.Location) }

// Tier returns the stored tier, free if none.
func (t *Tracker) Tier(ctx context.Context) (domain.Tier, error) {
	tier, ok, err := kv.GetJSON[domain.Tier](ctx, t.Store, kv.KeyTier)
	if err != nil {
		return domain.TierFree, err
	}
	if !ok {
		return domain.TierFree, nil
	}
	if _, err := domain.ParseTier(string(tier)); err != nil {
		return domain.TierFree, nil
	}
	return tier, nil
}

// current returns a record valid for the present period and tier. When the
// stored one belongs to another period or tier it is reset.
func (t *Tracker) current(rec domain.Record, ok bool, tier domain.Tier, now time.Time) (domain.Record, bool) {
	plan := domain.PlanFor(tier)
	start := domain.FormatDate(domain.PeriodStart(plan.Period, now))
	if ok && rec.PeriodStart == start && rec.Tier == tier {
		return rec, false
	}
	return domain.Record{PeriodStart: start, AnalysisCount: 0, Tier: tier}, true
}

// Check reports whether another analysis is allowed. It repairs a stale
// record as a side effect.
func (t *Tracker) Check(ctx context.Context) (domain.Check, error) {
	tier, err := t.Tier(ctx)
	if err != nil {
		return domain.Check{}, err
	}
	now := t.now()
	rec, err := kv.UpdateJSON(ctx, t.Store, kv.KeyUsage, func(cur domain.Record, ok bool) (domain.Record, error) {
		next, reset := t.current(cur, ok, tier, now)
		if reset && ok {
			log.Info().Str("tier", string(tier)).Str("period_start", next.PeriodStart).Msg("usage period reset")
		}
		return next, nil
	})
	if err != nil {
		return domain.Check{}, fmt.Errorf("check usage: %w", err)
	}
	return t.build(rec, tier, now), nil
}

func (t *Tracker) build(rec domain.Record, tier domain.Tier, now time.Time) domain.Check {
	plan := domain.PlanFor(tier)
	remaining := plan.Scans - rec.AnalysisCount
	if remaining < 0 {
		remaining = 0
	}
	start := domain.PeriodStart(plan.Period, now)
	return domain.Check{
		Allowed:   rec.AnalysisCount < plan.Scans,
		Remaining: remaining,
		Used:      rec.AnalysisCount,
		Limit:     plan.Scans,
		Tier:      tier,
		TierName:  plan.Name,
		Period:    plan.Period,
		ResetDate: domain.ResetDate(plan.Period, start),
		Features:  plan.Features,
	}
}

// Increment counts one successful analysis.
func (t *Tracker) Increment(ctx context.Context) (domain.Check, error) {
	tier, err := t.Tier(ctx)
	if err != nil {
		return domain.Check{}, err
	}
	now := t.now()
	rec, err := kv.UpdateJSON(ctx, t.Store, kv.KeyUsage, func(cur domain.Record, ok bool) (domain.Record, error) {
		next, _ := t.current(cur, ok, tier, now)
		next.AnalysisCount++
		return next, nil
	})
	if err != nil {
		return domain.Check{}, fmt.Errorf("increment usage: %w", err)
	}
	return t.build(rec, tier, now), nil
}

// SetTier switches the tier. The next Check starts a fresh period count.
func (t *Tracker) SetTier(ctx context.Context, tier domain.Tier) error {
	if _, err := domain.ParseTier(string(tier)); err != nil {
		return err
	}
	if err := kv.SetJSON(ctx, t.Store, kv.KeyTier, tier); err != nil {
		return err
	}
	log.Info().Str("tier", string(tier)).Msg("tier updated")
	return nil
}

// Reset clears the period counter.
func (t *Tracker) Reset(ctx context.Context) error {
	return t.Store.Remove(ctx, kv.KeyUsage)
}

// Subscription returns the stored subscription, a free one if none.
func (t *Tracker) Subscription(ctx context.Context) (domain.Subscription, error) {
	sub, ok, err := kv.GetJSON[domain.Subscription](ctx, t.Store, kv.KeySubscription)
	if err != nil {
		return domain.Subscription{}, err
	}
	if !ok {
		return domain.Subscription{Tier: domain.TierFree, Status: "active"}, nil
	}
	return sub, nil
}

// Subscribe activates tier and records the subscription.
func (t *Tracker) Subscribe(ctx context.Context, tier domain.Tier) (domain.Subscription, error) {
	if err := t.SetTier(ctx, tier); err != nil {
		return domain.Subscription{}, err
	}
	now := t.now()
	sub := domain.Subscription{Tier: tier, Status: "active", StartedAt: now}
	if tier != domain.TierFree {
		renews := now.AddDate(0, 1, 0)
		sub.RenewsAt = &renews
	}
	if err := kv.SetJSON(ctx, t.Store, kv.KeySubscription, sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// Cancel drops back to the free tier.
func (t *Tracker) Cancel(ctx context.Context) (domain.Subscription, error) {
	sub, err := t.Subscribe(ctx, domain.TierFree)
	if err != nil {
		return sub, err
	}
	sub.Status = "cancelled"
	return sub, kv.SetJSON(ctx, t.Store, kv.KeySubscription, sub)
}
