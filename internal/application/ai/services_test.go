package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/application/ratelimit"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/infra/kv/memory"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (c *scriptedClient) Analyze(_ context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return &ai.RawAnalysis{Summary: "ok " + req.URL}, nil
}

func newTestService(t *testing.T, client ai.Client) *Service {
	t.Helper()
	clock := application.NewManualClock(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	q := ratelimit.NewQueue(ratelimit.NewLimiter(memory.New(), clock, ratelimit.DefaultConfig()), clock, clock.Sleep)
	t.Cleanup(q.Close)
	return NewService(client, q)
}

func TestAnalyzeRetriesQuotaErrors(t *testing.T) {
	client := &scriptedClient{errs: []error{ai.ErrQuotaExceeded}}
	svc := newTestService(t, client)

	raw, err := svc.Analyze(context.Background(), ai.Request{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ok https://example.com", raw.Summary)
	assert.Equal(t, 2, client.calls)
}

func TestAnalyzePropagatesAuthErrors(t *testing.T) {
	client := &scriptedClient{errs: []error{apperr.New(apperr.KindAuth, "session expired")}}
	svc := newTestService(t, client)

	_, err := svc.Analyze(context.Background(), ai.Request{})
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, 1, client.calls)
}

func TestParseMode(t *testing.T) {
	m, err := ai.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ai.ModeStandard, m)
	_, err = ai.ParseMode("turbo")
	assert.Error(t, err)
	assert.Equal(t, 4, ai.ConfigFor(ai.ModeNeural).RequiredLevel)
	assert.Equal(t, 20000, ai.ConfigFor("bogus").MaxChars)
}
