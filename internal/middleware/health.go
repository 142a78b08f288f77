package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the history database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	TookMs  int64  `json:"tookMs"`
}

// runChecks calls every checker in parallel under one deadline.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) map[string]CheckResult {
	out := make(map[string]CheckResult, len(checkers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := c.Check(ctx)
			res := CheckResult{Healthy: err == nil, TookMs: time.Since(start).Milliseconds()}
			if err != nil {
				res.Error = err.Error()
			}
			mu.Lock()
			out[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// HealthHandler reports 503 when any store the daemon depends on fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		rep := HealthReport{Status: "healthy", Timestamp: time.Now(), Checks: runChecks(ctx, checkers)}
		code := http.StatusOK
		for _, c := range rep.Checks {
			if !c.Healthy {
				rep.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(rep)
	}
}

// CooldownProbe reports how long the analysis backend is paused for.
type CooldownProbe func(ctx context.Context) time.Duration

// ReadinessHandler answers "can I submit an analysis now". During a
// backend cooldown it still answers 200 but says so and sets Retry-After.
func ReadinessHandler(probe CooldownProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ready", "timestamp": time.Now()}
		if probe != nil {
			if cd := probe(r.Context()); cd > 0 {
				secs := int((cd + time.Second - 1) / time.Second)
				body["status"] = "cooldown"
				body["cooldownSeconds"] = secs
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	}
}

func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
