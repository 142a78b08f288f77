// Package client talks to a running trapscan daemon over its /v1 API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/trapscan/internal/application/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/history"
	"github.com/bryanwahyu/trapscan/internal/domain/jobs"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
	"github.com/bryanwahyu/trapscan/internal/domain/watchlist"
	"github.com/bryanwahyu/trapscan/internal/infra/extract"
)

const maxBodyBytes = 8 << 20

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Session is the daemon's view of the signed in user.
type Session struct {
	SignedIn  bool       `json:"signedIn"`
	Email     string     `json:"email,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Extracted is a page as returned by /v1/extract.
type Extracted struct {
	extract.Page
	Relevant bool `json:"relevant"`
}

type errorBody struct {
	Error      string      `json:"error"`
	Kind       apperr.Kind `json:"kind"`
	Suggestion string      `json:"suggestion"`
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalid, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindUnknown {
			kind = apperr.KindNetwork
		}
		return apperr.Wrap(kind, "trapscan daemon unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindInvalid, "invalid response from daemon", err)
	}
	return nil
}

// decodeError rebuilds the daemon's tagged error from its JSON body.
func decodeError(resp *http.Response, raw []byte) error {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	kind := eb.Kind
	if kind == "" {
		kind = kindForStatus(resp.StatusCode)
	}
	msg := eb.Error
	if msg == "" {
		msg = fmt.Sprintf("daemon returned %d", resp.StatusCode)
	}
	e := &apperr.Error{Kind: kind, Message: msg, Status: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusUnauthorized:
		return apperr.KindAuth
	case http.StatusTooManyRequests:
		return apperr.KindRateLimit
	case http.StatusForbidden:
		return apperr.KindForbidden
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusBadRequest:
		return apperr.KindInvalid
	case http.StatusGatewayTimeout:
		return apperr.KindTimeout
	case http.StatusBadGateway:
		return apperr.KindNetwork
	}
	return apperr.KindUnknown
}

// Health returns nil when the daemon answers /health with 200.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
}

// StartAnalysis queues a background analysis.
func (c *Client) StartAnalysis(ctx context.Context, req analysis.Request) (analysis.Ack, error) {
	var ack analysis.Ack
	err := c.do(ctx, http.MethodPost, "/v1/analyses", nil, req, &ack)
	return ack, err
}

// Analyze runs an analysis and waits for it in the same request.
func (c *Client) Analyze(ctx context.Context, req analysis.Request) (*analysis.Outcome, error) {
	var out analysis.Outcome
	if err := c.do(ctx, http.MethodPost, "/v1/analyses/sync", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the current job view for pageURL.
func (c *Client) Status(ctx context.Context, pageURL string) (jobs.View, error) {
	var v jobs.View
	err := c.do(ctx, http.MethodGet, "/v1/analyses/status", url.Values{"url": {pageURL}}, nil, &v)
	return v, err
}

func (c *Client) Usage(ctx context.Context) (usage.Check, error) {
	var out usage.Check
	err := c.do(ctx, http.MethodGet, "/v1/usage", nil, nil, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, limit, offset int) ([]*history.Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out []*history.Entry
	err := c.do(ctx, http.MethodGet, "/v1/history", q, nil, &out)
	return out, err
}

func (c *Client) Watchlist(ctx context.Context) ([]watchlist.Item, error) {
	var out []watchlist.Item
	err := c.do(ctx, http.MethodGet, "/v1/watchlist", nil, nil, &out)
	return out, err
}

// Watch adds an already analyzed page to the watchlist.
func (c *Client) Watch(ctx context.Context, pageURL string) (watchlist.Item, error) {
	var out watchlist.Item
	err := c.do(ctx, http.MethodPost, "/v1/watchlist", nil, map[string]string{"url": pageURL}, &out)
	return out, err
}

func (c *Client) Unwatch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/watchlist", url.Values{"id": {id}}, nil, nil)
}

// CheckWatchlist triggers an immediate re-check of every watched page.
func (c *Client) CheckWatchlist(ctx context.Context) (watchlist.CheckReport, error) {
	var out watchlist.CheckReport
	err := c.do(ctx, http.MethodPost, "/v1/watchlist/check", nil, nil, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var out Session
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/v1/session", nil, body, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/session", nil, nil, nil)
}

func (c *Client) Session(ctx context.Context) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodGet, "/v1/session", nil, nil, &out)
	return out, err
}

// Extract asks the daemon to fetch pageURL, or to parse html when given,
// and return its readable text.
func (c *Client) Extract(ctx context.Context, pageURL, html string, redactPII *bool) (Extracted, error) {
	body := struct {
		URL       string `json:"url"`
		HTML      string `json:"html,omitempty"`
		RedactPII *bool  `json:"redactPII,omitempty"`
	}{pageURL, html, redactPII}
	var out Extracted
	err := c.do(ctx, http.MethodPost, "/v1/extract", nil, body, &out)
	return out, err
}
