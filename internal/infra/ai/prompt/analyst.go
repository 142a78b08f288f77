package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
)

const findingSchema = `{ "category": "CANCELLATION|REFUND|DATA_PRIVACY|LIABILITY|AUTO_RENEWAL|BINDING_ARBITRATION|CLASS_ACTION_WAIVER|JURISDICTION|PRICE_CHANGE|ACCOUNT_TERMINATION|CONTENT_RIGHTS|WARRANTY|INDEMNITY|SURVIVAL", "severity": "LOW|MEDIUM|HIGH|CRITICAL", "clause": "%s", "explanation": "%s", "location": "%s" }`

type modePrompt struct {
	intro       string
	clause      string
	explanation string
	location    string
	whatItMeans string
	whatToDo    string
	redFlags    string
	positives   string
}

var modePrompts = map[ai.Mode]modePrompt{
	ai.ModeFlash: {
		intro:       "You are a legal analyst doing a QUICK SCAN. Focus ONLY on critical red flags and major issues. Return 3-7 findings maximum.",
		clause:      "exact quote",
		explanation: "why concerning",
		location:    "section ref",
		whatItMeans: "brief summary",
		whatToDo:    "quick advice",
		redFlags:    "warnings",
		positives:   "good aspects",
	},
	ai.ModeStandard: {
		intro:       "You are an expert legal analyst. Provide BALANCED analysis covering key issues across all categories. Return 5-12 findings.",
		clause:      "exact quote",
		explanation: "detailed reasoning",
		location:    "section ref",
		whatItMeans: "comprehensive summary",
		whatToDo:    "actionable steps",
		redFlags:    "key warnings",
		positives:   "consumer protections",
	},
	ai.ModeDeepDive: {
		intro:       "You are a senior legal analyst with expertise in consumer protection law. Conduct COMPREHENSIVE analysis with legal context, precedents, and industry comparisons. Return 10-25 findings with detailed explanations.",
		clause:      "exact quote with context",
		explanation: "legal analysis with precedents",
		location:    "precise section",
		whatItMeans: "detailed legal implications",
		whatToDo:    "strategic recommendations",
		redFlags:    "critical legal risks",
		positives:   "protective clauses",
	},
	ai.ModeNeural: {
		intro:       "You are an elite legal AI with advanced reasoning capabilities. Perform NEURAL SYNTHESIS: deep pattern recognition, cross-reference case law, identify subtle manipulation tactics, predict enforcement scenarios, and provide strategic legal insights. This is the most thorough analysis possible. Return 15-30 findings with extensive legal reasoning.",
		clause:      "full context quote",
		explanation: "multi-layered legal analysis with case citations, enforcement history, and strategic implications",
		location:    "exact section with surrounding context",
		whatItMeans: "comprehensive legal risk assessment with industry context",
		whatToDo:    "detailed strategic action plan with alternatives",
		redFlags:    "all legal vulnerabilities with severity justification",
		positives:   "all consumer protections with legal strength assessment",
	},
}

// GetSystemPrompt returns the system prompt for mode, standard if unknown.
func GetSystemPrompt(mode ai.Mode) string {
	p, ok := modePrompts[mode]
	if !ok {
		p = modePrompts[ai.ModeStandard]
	}
	finding := fmt.Sprintf(findingSchema, p.clause, p.explanation, p.location)
	return fmt.Sprintf(`%s

JSON structure:
{
  "findings": [%s],
  "riskScore": 0-100,
  "whatItMeans": "%s",
  "whatToDo": "%s",
  "redFlags": ["%s"],
  "positives": ["%s"]
}`, p.intro, finding, p.whatItMeans, p.whatToDo, p.redFlags, p.positives)
}

// GetUserPrompt wraps the document text.
func GetUserPrompt(req ai.Request) string {
	title := req.Title
	if title == "" {
		title = "Terms of Service"
	}
	url := req.URL
	if url == "" {
		url = "Unknown"
	}
	return fmt.Sprintf("Analyze this Terms of Service document and identify concerning clauses:\n\nTitle: %s\nURL: %s\n\n%s", title, url, req.Text)
}

// StripFences removes a surrounding ```json ... ``` block if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseAnalysis decodes a model answer into a RawAnalysis.
func ParseAnalysis(content string) (*ai.RawAnalysis, error) {
	var out ai.RawAnalysis
	if err := json.Unmarshal([]byte(StripFences(content)), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON response from model: %w", err)
	}
	return &out, nil
}
