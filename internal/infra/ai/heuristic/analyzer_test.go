package heuristic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

const predatory = `Welcome to Example. Your subscription will automatically renew each month.
All disputes will be resolved through binding arbitration. You waive any right to a class action.
All payments are non-refundable. We may share your information with our partners and advertisers.`

func TestAnalyzeFindsRedFlags(t *testing.T) {
	raw, err := New().Analyze(context.Background(), ai.Request{Text: predatory})
	require.NoError(t, err)

	titles := map[string]string{}
	for _, f := range raw.Findings {
		titles[f.Title] = f.Severity
	}
	assert.Equal(t, "critical", titles["Auto-renewal without clear opt-out"])
	assert.Equal(t, "critical", titles["Forced arbitration clause"])
	assert.Equal(t, "critical", titles["Class action waiver"])
	assert.Equal(t, "high", titles["No refund policy"])
	assert.Equal(t, "high", titles["Broad data sharing with partners"])

	require.NotNil(t, raw.RiskScore)
	assert.Equal(t, 100.0, *raw.RiskScore)
	assert.NotEmpty(t, raw.WhatItMeans)
	assert.Contains(t, raw.RedFlags, "Forced arbitration clause")
}

func TestAnalyzeQuotesSentence(t *testing.T) {
	raw, err := New().Analyze(context.Background(), ai.Request{Text: "Hello. All sales are final. Thanks."})
	require.NoError(t, err)
	require.Len(t, raw.Findings, 1)
	assert.Equal(t, "All sales are final.", raw.Findings[0].Quote)
}

func TestAnalyzeCleanDocument(t *testing.T) {
	raw, err := New().Analyze(context.Background(), ai.Request{Text: "You can cancel anytime from settings and get a full refund."})
	require.NoError(t, err)
	assert.Empty(t, raw.Findings)
	assert.Equal(t, 0.0, *raw.RiskScore)
	assert.NotEmpty(t, raw.Positives)
}

func TestAnalyzeEmpty(t *testing.T) {
	_, err := New().Analyze(context.Background(), ai.Request{Text: "   "})
	assert.True(t, apperr.Is(err, apperr.KindNoContent))
}

func TestAnalyzeRespectsMaxChars(t *testing.T) {
	raw, err := New().Analyze(context.Background(), ai.Request{Text: "Fine text here. No refunds.", MaxChars: 15})
	require.NoError(t, err)
	assert.Empty(t, raw.Findings)
}
