package analysis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/application"
	aisvc "github.com/bryanwahyu/trapscan/internal/application/ai"
	"github.com/bryanwahyu/trapscan/internal/application/cache"
	historysvc "github.com/bryanwahyu/trapscan/internal/application/history"
	"github.com/bryanwahyu/trapscan/internal/application/jobs"
	"github.com/bryanwahyu/trapscan/internal/application/ratelimit"
	settingssvc "github.com/bryanwahyu/trapscan/internal/application/settings"
	usagesvc "github.com/bryanwahyu/trapscan/internal/application/usage"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	domain "github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	domainjobs "github.com/bryanwahyu/trapscan/internal/domain/jobs"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	"github.com/bryanwahyu/trapscan/internal/domain/settings"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
	"github.com/bryanwahyu/trapscan/internal/infra/db/kvstore"
	"github.com/bryanwahyu/trapscan/internal/infra/kv/memory"
)

const termsText = "You agree to binding arbitration. No refunds are given."

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	err   error
	last  ai.Request
}

func (f *fakeBackend) Analyze(_ context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.RawAnalysis{
		Findings: []domain.RawFinding{
			{Category: "REFUND", Severity: "high", Clause: "No refunds are given."},
			{Category: "BINDING_ARBITRATION", Severity: "CRITICAL", Clause: "You agree to binding arbitration."},
		},
		WhatItMeans: "Risky.",
	}, nil
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	svc     *Service
	backend *fakeBackend
	usage   *usagesvc.Tracker
	history *historysvc.Service
	store   kv.Store
	clock   *application.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clock := application.NewManualClock(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	queue := ratelimit.NewQueue(ratelimit.NewLimiter(store, clock, ratelimit.DefaultConfig()), clock, clock.Sleep)
	t.Cleanup(queue.Close)
	registry := jobs.NewRegistry(clock, time.Minute)
	t.Cleanup(registry.Close)

	backend := &fakeBackend{}
	tracker := usagesvc.NewTracker(store, clock, time.UTC)
	results := cache.New(store, clock, cache.Config{Key: kv.KeyAnalysisCache, MaxEntries: 50, TTL: 24 * time.Hour})
	offline := cache.NewOffline(cache.New(store, clock, cache.Config{Key: kv.KeyOfflineCache, MaxEntries: 100, TTL: 30 * 24 * time.Hour}))
	hist := historysvc.NewService(kvstore.NewHistoryRepository(store), clock)

	return &fixture{
		svc: &Service{
			Usage:    tracker,
			Settings: settingssvc.NewService(store, settings.Defaults()),
			Cache:    results,
			Offline:  offline,
			Backend:  aisvc.NewService(backend, queue),
			History:  hist,
			Jobs:     registry,
			Clock:    clock,
		},
		backend: backend,
		usage:   tracker,
		history: hist,
		store:   store,
		clock:   clock,
	}
}

func TestAnalyzeBuildsResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Analyze(ctx, Request{URL: "https://example.com/terms", Title: "Terms", Text: termsText})
	require.NoError(t, err)
	assert.False(t, out.FromCache)

	r := out.Result
	require.Len(t, r.Findings, 2)
	assert.Equal(t, domain.SeverityCritical, r.Findings[0].Severity)
	assert.Equal(t, domain.CategoryArbitration, r.Findings[0].Category)
	assert.Equal(t, 2, r.Stats.Total)
	assert.Equal(t, "Risky.", r.Summary)
	assert.Equal(t, "unknown", r.DocumentType)
	assert.Equal(t, "Unknown", r.CompanyName)
	assert.Equal(t, domain.RiskLevelFor(r.RiskScore), r.RiskLevel)
	assert.Equal(t, cache.HashText(termsText), r.Hash)
	assert.Equal(t, f.clock.Now(), r.AnalyzedAt)
	assert.Equal(t, string(ai.ModeStandard), r.AnalysisMode)

	require.NotNil(t, out.Usage)
	assert.Equal(t, 1, out.Usage.Used)

	entries, err := f.history.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.com/terms", entries[0].URL)
}

func TestCacheHitSkipsBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{URL: "https://example.com/terms", Text: termsText}

	_, err := f.svc.Analyze(ctx, req)
	require.NoError(t, err)
	out, err := f.svc.Analyze(ctx, req)
	require.NoError(t, err)

	assert.True(t, out.FromCache)
	assert.Equal(t, 1, f.backend.Calls())

	c, err := f.usage.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Used)

	out, err = f.svc.Analyze(ctx, Request{URL: req.URL, Text: termsText, SkipCache: true})
	require.NoError(t, err)
	assert.False(t, out.FromCache)
	assert.Equal(t, 2, f.backend.Calls())
}

func TestFreeTierFourthAnalysisDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Analyze(ctx, Request{URL: "https://example.com/terms", Text: termsText, SkipCache: true})
		require.NoError(t, err)
	}
	_, err := f.svc.Analyze(ctx, Request{URL: "https://example.com/terms", Text: termsText, SkipCache: true})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUsageLimit, apperr.KindOf(err))
	assert.Equal(t, "You've used all 3 weekly scans. Upgrade for more!", err.Error())
	assert.Equal(t, 3, f.backend.Calls())
}

func TestEmptyTextIsNoContent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Analyze(context.Background(), Request{URL: "https://example.com", Text: "   \n "})
	assert.Equal(t, apperr.KindNoContent, apperr.KindOf(err))
	assert.Zero(t, f.backend.Calls())
}

func TestTextIsClampedToMaxChars(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("a", 30000)
	_, err := f.svc.Analyze(context.Background(), Request{URL: "https://example.com", Text: long})
	require.NoError(t, err)
	assert.Len(t, f.backend.last.Text, settings.Defaults().MaxChars)
}

func TestModeGatedByTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, Request{URL: "https://example.com", Text: termsText, Mode: ai.ModeDeepDive})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "pro_plus")

	_, err = f.svc.Analyze(ctx, Request{URL: "https://example.com", Text: termsText, CustomPrompt: "be brief"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, f.usage.SetTier(ctx, usage.TierProPlus))
	_, err = f.svc.Analyze(ctx, Request{URL: "https://example.com", Text: termsText, Mode: ai.ModeDeepDive, CustomPrompt: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, ai.ModeDeepDive, f.backend.last.Mode)
	assert.Equal(t, "be brief", f.backend.last.CustomPrompt)

	calls := f.backend.Calls()
	_, err = f.svc.Analyze(ctx, Request{URL: "https://example.com", Text: termsText, Mode: ai.ModeNeural, SkipCache: true})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// the cache is consulted before gating, so a hit ignores the requested mode
	out, err := f.svc.Analyze(ctx, Request{URL: "https://example.com", Text: termsText, Mode: ai.ModeNeural})
	require.NoError(t, err)
	assert.True(t, out.FromCache)
	assert.Equal(t, string(ai.ModeDeepDive), out.Result.AnalysisMode)
	assert.Equal(t, calls, f.backend.Calls())
}

func TestUnknownModeIsInvalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Analyze(context.Background(), Request{URL: "https://example.com", Text: termsText, Mode: "turbo"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestNetworkErrorFallsBackToOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{URL: "https://example.com/terms", Text: termsText}

	_, err := f.svc.Analyze(ctx, req)
	require.NoError(t, err)

	f.backend.err = apperr.New(apperr.KindNetwork, "analysis service unreachable")
	out, err := f.svc.Analyze(ctx, Request{URL: req.URL, Text: termsText + " changed", SkipCache: true})
	require.NoError(t, err)
	assert.True(t, out.Offline)
	assert.True(t, out.FromCache)
	assert.Equal(t, req.URL, out.Result.URL)

	_, err = f.svc.Analyze(ctx, Request{URL: "https://other.example/terms", Text: termsText, SkipCache: true})
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
}

func TestBackendErrorIsNotCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.err = apperr.New(apperr.KindAuth, "not authenticated")

	_, err := f.svc.Analyze(ctx, Request{URL: "https://example.com", Text: termsText})
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	c, err := f.usage.Check(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Used)
}

func TestStartAsyncCompletes(t *testing.T) {
	f := newFixture(t)
	url := "https://example.com/terms"

	assert.Equal(t, domainjobs.StatusNone, f.svc.Status(url).Status)

	ack, err := f.svc.StartAsync(context.Background(), Request{URL: url, Text: termsText})
	require.NoError(t, err)
	assert.Equal(t, domainjobs.StatusAnalyzing, ack.Status)
	assert.NotEmpty(t, ack.JobID)

	require.Eventually(t, func() bool {
		return f.svc.Status(url).Status == domainjobs.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	v := f.svc.Status(url)
	require.NotNil(t, v.Result)
	assert.Equal(t, ack.JobID, v.JobID)
	assert.Len(t, v.Result.Findings, 2)
}

func TestStartAsyncRecordsFailure(t *testing.T) {
	f := newFixture(t)
	url := "https://example.com/empty"

	_, err := f.svc.StartAsync(context.Background(), Request{URL: url, Text: ""})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.svc.Status(url).Status == domainjobs.StatusError
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, apperr.KindNoContent, f.svc.Status(url).ErrorKind)
}

func TestStartAsyncRejectsBadURL(t *testing.T) {
	f := newFixture(t)
	for _, u := range []string{"", "ftp://example.com", "not a url", "https://"} {
		_, err := f.svc.StartAsync(context.Background(), Request{URL: u, Text: termsText})
		assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err), "url %q", u)
	}
	assert.Zero(t, f.svc.Jobs.Len())
}

func TestClampText(t *testing.T) {
	assert.Equal(t, "héll", ClampText("héllo", 4))
	assert.Equal(t, "abc", ClampText("abc", 10))
	assert.Equal(t, "abc", ClampText("abc", 0))
}
