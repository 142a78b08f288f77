// Package remote calls the hosted analysis function over HTTPS.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/session"
)

const maxResponseBytes = 4 << 20

type Client struct {
	Endpoint string
	AnonKey  string
	Tokens   session.TokenSource
	HTTP     *http.Client
}

func NewClient(endpoint, anonKey string, tokens session.TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		Endpoint: endpoint,
		AnonKey:  anonKey,
		Tokens:   tokens,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    *ai.RawAnalysis `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (e envelope) message(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != "" {
		return e.Error
	}
	return fallback
}

func (c *Client) Analyze(ctx context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	token, err := c.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if c.AnonKey != "" {
		httpReq.Header.Set("apikey", c.AnonKey)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindUnknown {
			kind = apperr.KindNetwork
		}
		return nil, apperr.Wrap(kind, "analysis service unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "read analysis response", err)
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	log.Debug().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Str("url", req.URL).Msg("analysis service responded")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := apperr.RateLimited(env.message("rate limit exceeded"), retryAfter(resp.Header.Get("Retry-After")))
		return nil, e
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &apperr.Error{Kind: apperr.KindAuth, Message: env.message("not authenticated"), Status: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &apperr.Error{Kind: apperr.KindForbidden, Message: env.message("forbidden"), Status: resp.StatusCode}
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, &apperr.Error{Kind: apperr.KindTimeout, Message: env.message("analysis timed out"), Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &apperr.Error{
			Kind:    apperr.KindUnknown,
			Message: env.message(fmt.Sprintf("analysis service returned %d", resp.StatusCode)),
			Status:  resp.StatusCode,
		}
	}

	if decodeErr != nil || !env.Success || env.Data == nil {
		return nil, apperr.New(apperr.KindInvalid, "invalid response from analysis service")
	}
	return env.Data, nil
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
