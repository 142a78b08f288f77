package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
)

func TestGetSystemPromptPerMode(t *testing.T) {
	assert.Contains(t, GetSystemPrompt(ai.ModeFlash), "QUICK SCAN")
	assert.Contains(t, GetSystemPrompt(ai.ModeNeural), "NEURAL SYNTHESIS")
	assert.Contains(t, GetSystemPrompt(ai.ModeDeepDive), `"clause": "exact quote with context"`)
	assert.Equal(t, GetSystemPrompt(ai.ModeStandard), GetSystemPrompt("unknown"))
}

func TestGetUserPromptDefaults(t *testing.T) {
	p := GetUserPrompt(ai.Request{Text: "body"})
	assert.Contains(t, p, "Title: Terms of Service")
	assert.Contains(t, p, "URL: Unknown")
	assert.Contains(t, p, "\n\nbody")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences(`  {"a":1} `))
}

func TestParseAnalysis(t *testing.T) {
	raw, err := ParseAnalysis("```json\n{\"riskScore\": 40, \"findings\": [{\"severity\": \"LOW\"}]}\n```")
	require.NoError(t, err)
	require.NotNil(t, raw.RiskScore)
	assert.Equal(t, 40.0, *raw.RiskScore)
	assert.Len(t, raw.Findings, 1)

	_, err = ParseAnalysis("not json")
	assert.Error(t, err)
}
