package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/application/analysis"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetClientFromContext(r.Context())))
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"extension": "secret"})(okHandler)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
		body   string
	}{
		{"bearer", "/v1/usage", map[string]string{"Authorization": "Bearer secret"}, 200, "extension"},
		{"x-api-key", "/v1/usage", map[string]string{"X-API-Key": "secret"}, 200, "extension"},
		{"missing", "/v1/usage", nil, 401, ""},
		{"wrong", "/v1/usage", map[string]string{"Authorization": "Bearer nope"}, 401, ""},
		{"health is public", "/health", nil, 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == 200 {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"kind":"auth"`)
			}
		})
	}
}

func TestAPIKeyAuthDisabledWithoutKeys(t *testing.T) {
	h := APIKeyAuth(nil)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/usage", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenBucket(t *testing.T) {
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	b := NewTokenBucket(2, 1, now)

	ok, _ := b.Allow(now)
	assert.True(t, ok)
	ok, _ = b.Allow(now)
	assert.True(t, ok)
	ok, wait := b.Allow(now)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = b.Allow(now.Add(1500 * time.Millisecond))
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 0.5)
	t.Cleanup(rl.Close)
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler)

	do := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, 200, do("/v1/usage", "1.2.3.4:1000").Code)
	rec := do("/v1/usage", "1.2.3.4:1001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, 200, do("/v1/usage", "5.6.7.8:1000").Code)
	assert.Equal(t, 200, do("/health", "1.2.3.4:1000").Code)

	now = now.Add(time.Hour)
	rl.prune(10 * time.Minute)
	assert.Empty(t, rl.buckets)
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{
		"kv":      CheckFunc(func(context.Context) error { return nil }),
		"history": CheckFunc(func(context.Context) error { return errors.New("db down") }),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var rep HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "unhealthy", rep.Status)
	assert.True(t, rep.Checks["kv"].Healthy)
	assert.False(t, rep.Checks["history"].Healthy)
	assert.Equal(t, "db down", rep.Checks["history"].Error)
}

func TestReadinessReportsCooldown(t *testing.T) {
	cd := 1500 * time.Millisecond
	h := ReadinessHandler(func(context.Context) time.Duration { return cd })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"status":"cooldown"`)

	cd = 0
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestAnalysisObserverCounts(t *testing.T) {
	before := GetMetrics()
	var o AnalysisObserver
	o.AnalysisStarted()
	o.AnalysisFinished(analysis.SourceCache, nil)
	o.AnalysisStarted()
	o.AnalysisFinished(analysis.SourceBackend, errors.New("boom"))

	after := GetMetrics()
	assert.Equal(t, before["analyses_total"].(uint64)+2, after["analyses_total"])
	assert.Equal(t, before["cache_hits"].(uint64)+1, after["cache_hits"])
	assert.Equal(t, before["analyses_failed"].(uint64)+1, after["analyses_failed"])
	assert.Equal(t, before["analyses_running"], after["analyses_running"])
}

func TestRegisterGauge(t *testing.T) {
	RegisterGauge("queue_length", func() any { return 3 })
	assert.Equal(t, 3, GetMetrics()["queue_length"])
}

func TestMetricsMiddlewareCountsFailures(t *testing.T) {
	before := GetMetrics()["requests_failed"].(uint64)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, before+1, GetMetrics()["requests_failed"])
}

func TestValidateFetchURL(t *testing.T) {
	require.NoError(t, ValidateFetchURL("https://example.com/terms"))
	for _, u := range []string{"", "ftp://example.com", "http://localhost:8080", "http://127.0.0.1", "http://10.0.0.5", "http://192.168.1.1", "http://[::1]/", "http://169.254.169.254/"} {
		assert.Error(t, ValidateFetchURL(u), u)
	}
	assert.NoError(t, ValidateURL("http://localhost:8080"))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateAnalysisMode(""))
	assert.NoError(t, ValidateAnalysisMode("DeepDive"))
	assert.Error(t, ValidateAnalysisMode("turbo"))

	tier, err := ValidateTier(" Pro ")
	require.NoError(t, err)
	assert.EqualValues(t, "pro", tier)

	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 30, ValidateDays(-1))
	assert.Equal(t, "a\tb", SanitizeString(" a\x00\x07\tb "))
}
