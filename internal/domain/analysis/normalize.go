package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// RawFinding is a finding as returned by a backend, before normalization.
// Upstream services use clause/explanation where we use quote/summary.
type RawFinding struct {
	ID             string `json:"id,omitempty"`
	Category       string `json:"category,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Title          string `json:"title,omitempty"`
	Summary        string `json:"summary,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
	Description    string `json:"description,omitempty"`
	Quote          string `json:"quote,omitempty"`
	Clause         string `json:"clause,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Location       string `json:"location,omitempty"`
}

// upstream category names that have a direct equivalent
var categoryAliases = map[string]Category{
	"binding_arbitration": CategoryArbitration,
	"account_termination": CategoryTermination,
	"data_privacy":        CategoryDataSharing,
	"hidden_fees":         CategoryFees,
	"free_trial":          CategoryTrial,
}

const (
	maxTitleLen = 100
	maxQuoteLen = 250
)

// ParseCategory maps s onto the closed category set, OTHER if unknown.
func ParseCategory(s string) Category {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == key {
			return c
		}
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryOther
}

// ParseSeverity maps s onto the severity set, MEDIUM if unknown.
func ParseSeverity(s string) Severity {
	key := Severity(strings.ToLower(strings.TrimSpace(s)))
	if lo.Contains(Severities, key) {
		return key
	}
	return SeverityMedium
}

// NormalizeFindings converts raw backend findings into valid Findings.
func NormalizeFindings(raw []RawFinding) []Finding {
	out := make([]Finding, 0, len(raw))
	for i, f := range raw {
		sev := ParseSeverity(f.Severity)
		quote := firstNonEmpty(f.Clause, f.Quote)
		title := strings.TrimSpace(f.Title)
		if title == "" {
			title = fmt.Sprintf("%s %s concern", capitalize(string(sev)), categoryWords(f.Category))
		}
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("finding-%d", i+1)
		}
		out = append(out, Finding{
			ID:             id,
			Category:       ParseCategory(f.Category),
			Severity:       sev,
			Title:          truncate(title, maxTitleLen),
			Summary:        firstNonEmpty(f.Explanation, f.Summary, f.Description),
			Quote:          truncate(quote, maxQuoteLen),
			Recommendation: f.Recommendation,
			Location:       f.Location,
		})
	}
	return out
}

// SortBySeverity orders findings critical first. The sort is stable.
func SortBySeverity(findings []Finding) []Finding {
	out := append([]Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.rank() < out[j].Severity.rank()
	})
	return out
}

// ComputeStats counts findings by category and severity. All four
// severities are always present.
func ComputeStats(findings []Finding) Stats {
	st := Stats{
		ByCategory: lo.CountValuesBy(findings, func(f Finding) Category { return f.Category }),
		BySeverity: map[Severity]int{},
		Total:      len(findings),
	}
	for _, s := range Severities {
		st.BySeverity[s] = 0
	}
	for _, f := range findings {
		st.BySeverity[f.Severity]++
	}
	return st
}

func categoryWords(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "issue"
	}
	return strings.ToLower(strings.ReplaceAll(raw, "_", " "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
