package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/trapscan/internal/application/analysis"
)

type counter struct{ n atomic.Uint64 }

func (c *counter) inc()         { c.n.Add(1) }
func (c *counter) dec()         { c.n.Add(^uint64(0)) }
func (c *counter) load() uint64 { return c.n.Load() }

// daemonMetrics holds process-wide counters for /metrics.
type daemonMetrics struct {
	requests   counter
	inFlight   counter
	succeeded  counter
	failed     counter
	analyses   counter
	running    counter
	analysisKO counter
	cacheHits  counter
	offline    counter
	started    time.Time

	// per route pattern and status class, e.g. "POST /v1/analyses 2xx"
	routesMu sync.Mutex
	routes   map[string]uint64

	gaugesMu sync.RWMutex
	gauges   map[string]func() any
}

var metrics = &daemonMetrics{
	started: time.Now(),
	routes:  map[string]uint64{},
	gauges:  map[string]func() any{},
}

// RegisterGauge adds a value read on every metrics snapshot, e.g. the queue
// length. Registering the same name again replaces it.
func RegisterGauge(name string, fn func() any) {
	metrics.gaugesMu.Lock()
	metrics.gauges[name] = fn
	metrics.gaugesMu.Unlock()
}

func (m *daemonMetrics) observeRoute(r *http.Request, status int) {
	pattern := "unmatched"
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		pattern = rc.RoutePattern()
	}
	key := r.Method + " " + pattern + " " + strconv.Itoa(status/100) + "xx"
	m.routesMu.Lock()
	m.routes[key]++
	m.routesMu.Unlock()
}

// AnalysisObserver feeds the analysis counters. It satisfies
// analysis.Observer.
type AnalysisObserver struct{}

func (AnalysisObserver) AnalysisStarted() {
	metrics.analyses.inc()
	metrics.running.inc()
}

func (AnalysisObserver) AnalysisFinished(source analysis.Source, err error) {
	metrics.running.dec()
	switch {
	case err != nil:
		metrics.analysisKO.inc()
	case source == analysis.SourceCache:
		metrics.cacheHits.inc()
	case source == analysis.SourceOffline:
		metrics.offline.inc()
	}
}

// GetMetrics returns current metrics
func GetMetrics() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := map[string]any{
		"requests_total":       metrics.requests.load(),
		"requests_in_progress": metrics.inFlight.load(),
		"requests_success":     metrics.succeeded.load(),
		"requests_failed":      metrics.failed.load(),
		"analyses_total":       metrics.analyses.load(),
		"analyses_running":     metrics.running.load(),
		"analyses_failed":      metrics.analysisKO.load(),
		"cache_hits":           metrics.cacheHits.load(),
		"offline_hits":         metrics.offline.load(),
		"uptime_seconds":       time.Since(metrics.started).Seconds(),
		"memory": map[string]any{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_gc":      mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}

	metrics.routesMu.Lock()
	routes := make(map[string]uint64, len(metrics.routes))
	for k, v := range metrics.routes {
		routes[k] = v
	}
	metrics.routesMu.Unlock()
	out["routes"] = routes

	metrics.gaugesMu.RLock()
	for name, fn := range metrics.gauges {
		out[name] = fn()
	}
	metrics.gaugesMu.RUnlock()
	return out
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.requests.inc()
		metrics.inFlight.inc()
		defer metrics.inFlight.dec()

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			metrics.succeeded.inc()
		} else {
			metrics.failed.inc()
		}
		metrics.observeRoute(r, wrapped.statusCode)
	})
}

func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
