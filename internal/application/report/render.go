// Package report renders analyses for export.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	}
	return "application/json"
}

// Render encodes results in format f.
func Render(f Format, results []*analysis.Result) ([]byte, error) {
	switch f {
	case FormatCSV:
		return CSV(results)
	case FormatMarkdown:
		parts := lo.Map(results, func(r *analysis.Result, _ int) string { return Markdown(r) })
		return []byte(strings.Join(parts, "\n---\n\n")), nil
	}
	return JSON(results)
}

func JSON(results []*analysis.Result) ([]byte, error) {
	if results == nil {
		results = []*analysis.Result{}
	}
	return json.MarshalIndent(results, "", "  ")
}

var csvHeader = []string{"url", "title", "risk_score", "risk_level", "critical", "high", "medium", "low", "top_category", "analyzed_at", "summary"}

// CSV writes one row per analysis.
func CSV(results []*analysis.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range results {
		st := r.Stats
		if st.BySeverity == nil {
			st = analysis.ComputeStats(r.Findings)
		}
		row := []string{
			r.URL,
			r.Title,
			strconv.Itoa(r.RiskScore),
			string(r.RiskLevel),
			strconv.Itoa(st.BySeverity[analysis.SeverityCritical]),
			strconv.Itoa(st.BySeverity[analysis.SeverityHigh]),
			strconv.Itoa(st.BySeverity[analysis.SeverityMedium]),
			strconv.Itoa(st.BySeverity[analysis.SeverityLow]),
			string(topCategory(st)),
			r.AnalyzedAt.UTC().Format("2006-01-02T15:04:05Z"),
			r.Summary,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func topCategory(st analysis.Stats) analysis.Category {
	var best analysis.Category
	n := 0
	for _, c := range analysis.Categories {
		if st.ByCategory[c] > n {
			best, n = c, st.ByCategory[c]
		}
	}
	return best
}

// Markdown renders a single analysis as a readable report.
func Markdown(r *analysis.Result) string {
	var b strings.Builder
	title := r.Title
	if title == "" {
		title = r.URL
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- URL: %s\n", r.URL)
	fmt.Fprintf(&b, "- Risk score: %d/100 (%s)\n", r.RiskScore, r.RiskLevel)
	if !r.AnalyzedAt.IsZero() {
		fmt.Fprintf(&b, "- Analyzed: %s\n", r.AnalyzedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	b.WriteString("\n")

	if r.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Summary)
	}
	if r.WhatItMeans != "" {
		fmt.Fprintf(&b, "## What it means\n\n%s\n\n", r.WhatItMeans)
	}
	if r.WhatToDo != "" {
		fmt.Fprintf(&b, "## What to do\n\n%s\n\n", r.WhatToDo)
	}
	writeList(&b, "Red flags", r.RedFlags)
	writeList(&b, "Positives", r.Positives)

	if len(r.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for _, f := range analysis.SortBySeverity(r.Findings) {
			fmt.Fprintf(&b, "### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), f.Title)
			fmt.Fprintf(&b, "Category: %s\n\n", f.Category)
			if f.Summary != "" {
				fmt.Fprintf(&b, "%s\n\n", f.Summary)
			}
			if f.Quote != "" {
				fmt.Fprintf(&b, "> %s\n\n", f.Quote)
			}
			if f.Recommendation != "" {
				fmt.Fprintf(&b, "Recommendation: %s\n\n", f.Recommendation)
			}
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
