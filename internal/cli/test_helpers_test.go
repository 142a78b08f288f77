package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/jobs"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// writeConfig writes a client config with fast polling.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "client:\n  pollInterval: 5ms\n  maxAttempts: 20\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// fakeDaemon answers the subset of /v1 the CLI uses.
type fakeDaemon struct {
	mu          sync.Mutex
	started     []map[string]any
	polls       int
	readyAfter  int
	failWith    *jobs.View
	apiKey      string
	loggedOut   bool
	extractBody map[string]any
}

var sampleResult = &analysis.Result{
	URL:       "https://example.com/terms",
	Title:     "Example Terms",
	RiskScore: 72,
	RiskLevel: analysis.RiskHigh,
	Summary:   "Several clauses limit your rights.",
	WhatToDo:  "Keep receipts.",
	Findings: []analysis.Finding{{
		ID: "finding-1", Category: analysis.CategoryArbitration, Severity: analysis.SeverityCritical,
		Title: "Binding arbitration", Quote: "All disputes go to arbitration.",
	}},
	Stats:     analysis.Stats{Total: 1},
	RedFlags:  []string{"No class actions"},
	Positives: []string{},
}

func (d *fakeDaemon) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("POST /v1/extract", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		d.mu.Lock()
		d.extractBody = body
		d.mu.Unlock()
		reply(w, http.StatusOK, map[string]any{
			"url": body["url"], "domain": "example.com", "title": "Example Terms",
			"text": "Example Terms\n\nAll disputes go to arbitration.", "pageTypes": []string{"tos"}, "relevant": true,
		})
	})
	mux.HandleFunc("POST /v1/analyses", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		d.mu.Lock()
		d.started = append(d.started, body)
		d.mu.Unlock()
		reply(w, http.StatusAccepted, map[string]any{"status": "analyzing", "jobId": "01JOB", "url": body["url"]})
	})
	mux.HandleFunc("POST /v1/analyses/sync", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]any{"result": sampleResult, "fromCache": true})
	})
	mux.HandleFunc("GET /v1/analyses/status", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.polls++
		polls := d.polls
		d.mu.Unlock()
		reply(w, http.StatusOK, d.view(polls))
	})
	mux.HandleFunc("GET /v1/analyses/events", func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(jobs.View{Status: jobs.StatusAnalyzing})
		conn.WriteJSON(d.view(1 << 20))
	})
	mux.HandleFunc("GET /v1/usage", func(w http.ResponseWriter, r *http.Request) {
		if d.apiKey != "" && r.Header.Get("X-API-Key") != d.apiKey {
			reply(w, http.StatusUnauthorized, map[string]any{"error": "missing or invalid API key", "kind": "auth"})
			return
		}
		reply(w, http.StatusOK, map[string]any{
			"allowed": true, "remaining": 1, "used": 2, "limit": 3, "tier": "free", "tierName": "Free",
			"period": "week", "resetDate": time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		})
	})
	mux.HandleFunc("GET /v1/history", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []map[string]any{{
			"url": "https://example.com/terms", "riskScore": 72, "riskLevel": "high", "findingCount": 1,
			"analyzedAt": time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
		}})
	})
	mux.HandleFunc("POST /v1/watchlist", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusNotFound, map[string]any{"error": "analyze the page before adding it to the watchlist", "kind": "not_found"})
	})
	mux.HandleFunc("GET /v1/watchlist", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []map[string]any{{"id": "w1", "url": "https://example.com/terms", "hasChanges": true}})
	})
	mux.HandleFunc("POST /v1/watchlist/check", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]any{"checked": 2, "changed": 1, "failed": 0})
	})
	mux.HandleFunc("POST /v1/session", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			reply(w, http.StatusUnauthorized, map[string]any{"error": "invalid login credentials", "kind": "auth"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"signedIn": true, "email": body["email"]})
	})
	mux.HandleFunc("DELETE /v1/session", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.loggedOut = true
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (d *fakeDaemon) view(polls int) jobs.View {
	if d.failWith != nil {
		return *d.failWith
	}
	if polls < d.readyAfter {
		return jobs.View{Status: jobs.StatusAnalyzing, JobID: "01JOB"}
	}
	return jobs.View{Status: jobs.StatusComplete, JobID: "01JOB", Result: sampleResult}
}

// startDaemon runs d and returns the global args pointing at it.
func startDaemon(t *testing.T, d *fakeDaemon) []string {
	t.Helper()
	srv := httptest.NewServer(d.handler(t))
	t.Cleanup(srv.Close)
	return []string{"--config", writeConfig(t), "--server", srv.URL}
}
