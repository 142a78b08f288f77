package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	domain "github.com/bryanwahyu/trapscan/internal/domain/usage"
	"github.com/bryanwahyu/trapscan/internal/infra/kv/memory"
)

// Wednesday
var wed = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func newTestTracker(t *testing.T) (*Tracker, *application.ManualClock, kv.Store) {
	t.Helper()
	store := memory.New()
	clock := application.NewManualClock(wed)
	return NewTracker(store, clock, time.UTC), clock, store
}

func TestFreeTierFourthCheckDenied(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(t)

	for i := 0; i < 3; i++ {
		c, err := tr.Check(ctx)
		require.NoError(t, err)
		require.True(t, c.Allowed, "check %d", i+1)
		_, err = tr.Increment(ctx)
		require.NoError(t, err)
	}

	c, err := tr.Check(ctx)
	require.NoError(t, err)
	assert.False(t, c.Allowed)
	assert.Equal(t, 0, c.Remaining)
	assert.Equal(t, 3, c.Used)
	assert.Equal(t, 3, c.Limit)
	assert.Equal(t, domain.PeriodWeek, c.Period)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), c.ResetDate)
}

func TestIncrementCountsExactly(t *testing.T) {
	ctx := context.Background()
	tr, _, store := newTestTracker(t)
	require.NoError(t, tr.SetTier(ctx, domain.TierPro))

	for i := 0; i < 7; i++ {
		_, err := tr.Increment(ctx)
		require.NoError(t, err)
	}
	rec, ok, err := kv.GetJSON[domain.Record](ctx, store, kv.KeyUsage)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, rec.AnalysisCount)
	assert.Equal(t, "2026-10-01", rec.PeriodStart)
	assert.Equal(t, domain.TierPro, rec.Tier)
}

func TestWeekRolloverResetsCount(t *testing.T) {
	ctx := context.Background()
	tr, clock, store := newTestTracker(t)

	_, err := tr.Increment(ctx)
	require.NoError(t, err)
	rec, _, _ := kv.GetJSON[domain.Record](ctx, store, kv.KeyUsage)
	assert.Equal(t, "2026-10-12", rec.PeriodStart)

	// next Monday
	clock.Set(time.Date(2026, 10, 19, 0, 0, 1, 0, time.UTC))
	c, err := tr.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Used)
	assert.True(t, c.Allowed)

	rec, _, _ = kv.GetJSON[domain.Record](ctx, store, kv.KeyUsage)
	assert.Equal(t, "2026-10-19", rec.PeriodStart)
}

func TestTierChangeResetsCount(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(t)
	for i := 0; i < 3; i++ {
		_, err := tr.Increment(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, tr.SetTier(ctx, domain.TierStarter))

	c, err := tr.Check(ctx)
	require.NoError(t, err)
	assert.True(t, c.Allowed)
	assert.Equal(t, 15, c.Remaining)
	assert.Equal(t, domain.PeriodMonth, c.Period)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), c.ResetDate)
	assert.True(t, c.Features.Export)
}

func TestSetTierRejectsUnknown(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	assert.Error(t, tr.SetTier(context.Background(), domain.Tier("platinum")))
}

func TestSubscribeAndCancel(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(t)

	sub, err := tr.Subscribe(ctx, domain.TierAgency)
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)
	require.NotNil(t, sub.RenewsAt)

	tier, err := tr.Tier(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TierAgency, tier)

	sub, err = tr.Cancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", sub.Status)
	tier, _ = tr.Tier(ctx)
	assert.Equal(t, domain.TierFree, tier)

	got, err := tr.Subscription(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)
}

func TestPeriodStart(t *testing.T) {
	sunday := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-12", domain.FormatDate(domain.PeriodStart(domain.PeriodWeek, sunday)))
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-12", domain.FormatDate(domain.PeriodStart(domain.PeriodWeek, monday)))
	assert.Equal(t, "2026-10-01", domain.FormatDate(domain.PeriodStart(domain.PeriodMonth, sunday)))
}
