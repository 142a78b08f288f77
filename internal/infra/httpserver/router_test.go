package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/application"
	aisvc "github.com/bryanwahyu/trapscan/internal/application/ai"
	"github.com/bryanwahyu/trapscan/internal/application/analysis"
	"github.com/bryanwahyu/trapscan/internal/application/cache"
	apphistory "github.com/bryanwahyu/trapscan/internal/application/history"
	"github.com/bryanwahyu/trapscan/internal/application/jobs"
	"github.com/bryanwahyu/trapscan/internal/application/ratelimit"
	"github.com/bryanwahyu/trapscan/internal/application/report"
	appsettings "github.com/bryanwahyu/trapscan/internal/application/settings"
	"github.com/bryanwahyu/trapscan/internal/application/usage"
	appwatchlist "github.com/bryanwahyu/trapscan/internal/application/watchlist"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	domain "github.com/bryanwahyu/trapscan/internal/domain/analysis"
	domainjobs "github.com/bryanwahyu/trapscan/internal/domain/jobs"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	"github.com/bryanwahyu/trapscan/internal/domain/settings"
	"github.com/bryanwahyu/trapscan/internal/infra/db/kvstore"
	"github.com/bryanwahyu/trapscan/internal/infra/kv/memory"
	"github.com/bryanwahyu/trapscan/internal/middleware"
)

const termsURL = "https://example.com/terms"

// gatedBackend blocks every call until release is closed.
type gatedBackend struct {
	release chan struct{}
	once    sync.Once
}

func (b *gatedBackend) Analyze(ctx context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &ai.RawAnalysis{
		Findings: []domain.RawFinding{{Category: "refund", Severity: "high", Clause: "No refunds."}},
		Summary:  "summary of " + req.URL,
	}, nil
}

func (b *gatedBackend) open() { b.once.Do(func() { close(b.release) }) }

type staticPages map[string]string

func (p staticPages) FetchText(_ context.Context, url string) (string, error) { return p[url], nil }

type testServer struct {
	*httptest.Server
	backend *gatedBackend
	usage   *usage.Tracker
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memory.New()
	clock := application.NewManualClock(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	queue := ratelimit.NewQueue(ratelimit.NewLimiter(store, clock, ratelimit.DefaultConfig()), clock, clock.Sleep)
	t.Cleanup(queue.Close)
	registry := jobs.NewRegistry(clock, time.Minute)
	t.Cleanup(registry.Close)

	backend := &gatedBackend{release: make(chan struct{})}
	t.Cleanup(backend.open)
	tracker := usage.NewTracker(store, clock, time.UTC)
	settingsSvc := appsettings.NewService(store, settings.Defaults())
	results := cache.New(store, clock, cache.Config{Key: kv.KeyAnalysisCache, MaxEntries: 50, TTL: 24 * time.Hour})
	offline := cache.NewOffline(cache.New(store, clock, cache.Config{Key: kv.KeyOfflineCache, MaxEntries: 100, TTL: 30 * 24 * time.Hour}))
	repo := kvstore.NewHistoryRepository(store)
	hist := apphistory.NewService(repo, clock)

	deps := Deps{
		Analysis: &analysis.Service{
			Usage: tracker, Settings: settingsSvc, Cache: results, Offline: offline,
			Backend: aisvc.NewService(backend, queue), History: hist, Jobs: registry, Clock: clock,
		},
		Usage:     tracker,
		Queue:     queue,
		Cache:     results,
		Offline:   offline,
		History:   hist,
		Reports:   report.NewService(repo, tracker, nil, clock),
		Watchlist: appwatchlist.NewService(store, tracker, settingsSvc, staticPages{termsURL: "terms"}, clock),
		Settings:  settingsSvc,
		Checkers:  map[string]middleware.HealthChecker{"kv": store},
	}
	srv := httptest.NewServer(NewRouter(deps, opts))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, backend: backend, usage: tracker}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInto[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) analyzeSync(t *testing.T) {
	t.Helper()
	s.backend.open()
	resp := s.do(t, http.MethodPost, "/v1/analyses/sync", map[string]any{"url": termsURL, "title": "Terms", "text": "No refunds."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).StatusCode)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/live", nil).StatusCode)
	ready := decodeInto[map[string]any](t, s.do(t, http.MethodGet, "/ready", nil))
	assert.Equal(t, "ready", ready["status"])

	m := decodeInto[map[string]any](t, s.do(t, http.MethodGet, "/metrics", nil))
	assert.Contains(t, m, "requests_total")
	routes, ok := m["routes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, routes, "GET /health 2xx")
}

func TestAsyncAnalysisWithLongPoll(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/v1/analyses", map[string]any{"url": termsURL, "text": "No refunds."})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ack := decodeInto[analysis.Ack](t, resp)
	assert.Equal(t, domainjobs.StatusAnalyzing, ack.Status)

	view := decodeInto[domainjobs.View](t, s.do(t, http.MethodGet, "/v1/analyses/status?url="+termsURL, nil))
	assert.Equal(t, domainjobs.StatusAnalyzing, view.Status)

	time.AfterFunc(50*time.Millisecond, s.backend.open)
	view = decodeInto[domainjobs.View](t, s.do(t, http.MethodGet, "/v1/analyses/status?wait=5s&url="+termsURL, nil))
	assert.Equal(t, domainjobs.StatusComplete, view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, "summary of "+termsURL, view.Result.Summary)
	assert.Equal(t, ack.JobID, view.JobID)
}

func TestStatusForUnknownURL(t *testing.T) {
	s := newTestServer(t, Options{})
	view := decodeInto[domainjobs.View](t, s.do(t, http.MethodGet, "/v1/analyses/status?url=https://nowhere.example", nil))
	assert.Equal(t, domainjobs.StatusNone, view.Status)

	resp := s.do(t, http.MethodGet, "/v1/analyses/status", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/v1/analyses/sync", map[string]any{"url": termsURL, "text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeInto[errorBody](t, resp)
	assert.Equal(t, "no_content", string(body.Kind))
	assert.False(t, body.Retryable)

	resp = s.do(t, http.MethodPost, "/v1/analyses/sync", map[string]any{"url": termsURL, "text": "x", "analysisMode": "neural"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/analyses/sync", map[string]any{"url": termsURL, "text": "x", "analysisMode": "turbo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, s.URL+"/v1/analyses", strings.NewReader("{"))
	raw, err := s.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestUsageLimitIs429(t *testing.T) {
	s := newTestServer(t, Options{})
	s.backend.open()
	for i := 0; i < 3; i++ {
		resp := s.do(t, http.MethodPost, "/v1/analyses/sync", map[string]any{"url": termsURL, "text": "No refunds.", "skipCache": true})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := s.do(t, http.MethodPost, "/v1/analyses/sync", map[string]any{"url": termsURL, "text": "No refunds.", "skipCache": true})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "usage_limit", string(decodeInto[errorBody](t, resp).Kind))

	c := decodeInto[map[string]any](t, s.do(t, http.MethodGet, "/v1/usage", nil))
	assert.Equal(t, false, c["allowed"])
	assert.EqualValues(t, 3, c["used"])
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, Options{APIKeys: map[string]string{"cli": "k1"}})
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/usage", nil).StatusCode)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).StatusCode)

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/v1/usage", nil)
	req.Header.Set("Authorization", "Bearer k1")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPut, "/v1/settings", map[string]any{"maxChars": 5000, "redactPII": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeInto[settings.Settings](t, resp)
	assert.Equal(t, 5000, got.MaxChars)
	assert.True(t, got.RedactPII)
	assert.True(t, got.CacheResults)

	resp = s.do(t, http.MethodPut, "/v1/settings", map[string]any{"maxChars": 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryAndExport(t *testing.T) {
	s := newTestServer(t, Options{})
	s.analyzeSync(t)

	list := decodeInto[[]map[string]any](t, s.do(t, http.MethodGet, "/v1/history", nil))
	require.Len(t, list, 1)
	assert.Equal(t, termsURL, list[0]["url"])

	// free tier has no export
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/history/export?format=csv", nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/history/compare?a="+termsURL+"&b="+termsURL, nil).StatusCode)

	resp := s.do(t, http.MethodPut, "/v1/subscription", map[string]any{"tier": "pro"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/history/export?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")

	cmp := decodeInto[report.Comparison](t, s.do(t, http.MethodGet, "/v1/history/compare?a="+termsURL+"&b="+termsURL, nil))
	assert.Equal(t, "tie", cmp.Better)
	assert.Equal(t, termsURL, cmp.A.URL)

	// no uploader configured
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/v1/history/export?format=md", nil).StatusCode)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/history/item?url="+termsURL, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/history/item?url="+termsURL, nil).StatusCode)
}

func TestWatchlistRequiresAnalysis(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/v1/watchlist", map[string]any{"url": termsURL})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.analyzeSync(t)
	resp = s.do(t, http.MethodPost, "/v1/watchlist", map[string]any{"url": termsURL})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/watchlist", map[string]any{"url": termsURL})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	items := decodeInto[[]map[string]any](t, s.do(t, http.MethodGet, "/v1/watchlist", nil))
	assert.Len(t, items, 1)
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})
	s.analyzeSync(t)

	v := decodeInto[cacheView](t, s.do(t, http.MethodGet, "/v1/cache", nil))
	assert.Equal(t, 1, v.Stats.Entries)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/cache", nil).StatusCode)
	v = decodeInto[cacheView](t, s.do(t, http.MethodGet, "/v1/cache", nil))
	assert.Zero(t, v.Stats.Entries)

	off := decodeInto[cacheView](t, s.do(t, http.MethodGet, "/v1/offline", nil))
	assert.Len(t, off.Entries, 1)
}

func TestExtractInlineHTML(t *testing.T) {
	s := newTestServer(t, Options{})
	html := `<html><head><title>Terms of Service</title></head><body><p>Contact me at jane@example.com.</p></body></html>`

	resp := s.do(t, http.MethodPost, "/v1/extract", map[string]any{"url": termsURL, "html": html, "redactPII": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeInto[map[string]any](t, resp)
	assert.Contains(t, page["text"], "[EMAIL]")
	assert.Equal(t, true, page["relevant"])
}

func TestExtractWithoutFetcher(t *testing.T) {
	s := newTestServer(t, Options{})
	resp := s.do(t, http.MethodPost, "/v1/extract", map[string]any{"url": "http://127.0.0.1/terms"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalysisEventsWebsocket(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/v1/analyses", map[string]any{"url": termsURL, "text": "No refunds."})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/analyses/events?url=" + termsURL
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first domainjobs.View
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, domainjobs.StatusAnalyzing, first.Status)

	s.backend.open()
	var final domainjobs.View
	require.NoError(t, conn.ReadJSON(&final))
	assert.Equal(t, domainjobs.StatusComplete, final.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestRateStatus(t *testing.T) {
	s := newTestServer(t, Options{})
	st := decodeInto[ratelimit.Status](t, s.do(t, http.MethodGet, "/v1/ratelimit", nil))
	assert.False(t, st.IsLimited)
	assert.Equal(t, 10, st.MaxRequests)
}

func TestSessionDisabled(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/session", nil).StatusCode)
}
