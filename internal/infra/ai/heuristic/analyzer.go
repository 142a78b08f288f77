// Package heuristic is an offline analysis backend that matches known
// red-flag patterns in the document text.
package heuristic

import (
	"context"
	"regexp"
	"strings"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

const maxFindings = 20

type detector struct {
	re             *regexp.Regexp
	title          string
	severity       analysis.Severity
	category       analysis.Category
	recommendation string
}

var detectors = []detector{
	// critical
	{regexp.MustCompile(`(?i)\b(binding|mandatory|final)\s+(individual\s+)?arbitration\b|\bresolved\s+(exclusively\s+)?(by|through)\s+(binding\s+)?arbitration\b`), "Forced arbitration clause", analysis.SeverityCritical, analysis.CategoryArbitration, "Look for an arbitration opt-out window and use it if you may ever need to sue."},
	{regexp.MustCompile(`(?i)\bclass[\s-]+action\b[^.]{0,80}\b(waive|waiver|not\s+participate|may\s+not)\b|\bwaive[^.]{0,60}\bclass[\s-]+action`), "Class action waiver", analysis.SeverityCritical, analysis.CategoryClassActionWaiver, "You could only pursue claims individually. Keep records of any dispute."},
	{regexp.MustCompile(`(?i)\b(sell|sold|rent)\b[^.]{0,60}\b(personal\s+(data|information)|your\s+(data|information))`), "Selling personal data to third parties", analysis.SeverityCritical, analysis.CategoryDataSelling, "Use privacy opt-outs (Do Not Sell) and share as little personal data as possible."},
	{regexp.MustCompile(`(?i)\b(processing|service|convenience|administrative)\s+fees?\b[^.]{0,80}\b(may|will)\s+(apply|be\s+charged)`), "Hidden fees not disclosed upfront", analysis.SeverityCritical, analysis.CategoryFees, "Check the final price at checkout for additional fees."},
	{regexp.MustCompile(`(?i)\bautomatically\s+renew`), "Auto-renewal without clear opt-out", analysis.SeverityCritical, analysis.CategoryAutoRenewal, "Turn off auto-renewal right after signing up or set a reminder before the renewal date."},
	{regexp.MustCompile(`(?i)\b(free\s+)?trial\b[^.]{0,100}\b(convert|automatically\s+(be\s+)?charged|become\s+a\s+paid)`), "Trial converts to paid without notice", analysis.SeverityCritical, analysis.CategoryTrial, "Set a reminder a few days before the trial ends."},
	// high
	{regexp.MustCompile(`(?i)\b(all\s+)?(payments|fees|sales|purchases)\s+(are\s+)?(final|non[\s-]?refundable)\b|\bno\s+refunds?\b`), "No refund policy", analysis.SeverityHigh, analysis.CategoryRefund, "Assume you will not get your money back. Start with the smallest plan."},
	{regexp.MustCompile(`(?i)\b(change|modify|increase)\b[^.]{0,40}\b(prices?|fees|pricing)\b[^.]{0,60}\b(at\s+any\s+time|without\s+(prior\s+)?notice)`), "Prices can change without notice", analysis.SeverityHigh, analysis.CategoryPriceChange, "Review your billing statements for unexpected increases."},
	{regexp.MustCompile(`(?i)\bcancel[a-z]*\b[^.]{0,80}\b(by\s+(phone|mail|calling)|in\s+writing|certified\s+mail)`), "Difficult cancellation process", analysis.SeverityHigh, analysis.CategoryCancellation, "Write down the exact cancellation steps and keep proof you cancelled."},
	{regexp.MustCompile(`(?i)\bshare\b[^.]{0,60}\b(partners|affiliates|third[\s-]+parties|advertisers)\b`), "Broad data sharing with partners", analysis.SeverityHigh, analysis.CategoryDataSharing, "Review privacy settings and limit optional data collection."},
	{regexp.MustCompile(`(?i)\b(terminate|suspend)\b[^.]{0,80}\b(for\s+any\s+reason|without\s+(cause|reason|notice)|at\s+our\s+(sole\s+)?discretion)`), "Account termination without reason", analysis.SeverityHigh, analysis.CategoryTermination, "Back up anything you store with the service."},
	{regexp.MustCompile(`(?i)\b(30|45|60|90)\s+days?\b[^.]{0,40}\b(prior\s+)?notice\b[^.]{0,40}\bcancel`), "Requires 30+ days notice to cancel", analysis.SeverityHigh, analysis.CategoryCancellation, "Cancel well ahead of the renewal date."},
	// medium
	{regexp.MustCompile(`(?i)\brefund\b[^.]{0,60}\bwithin\s+\d+\s+(days|hours)\b`), "Limited refund window", analysis.SeverityMedium, analysis.CategoryRefund, "Note the refund deadline and test the service early."},
	{regexp.MustCompile(`(?i)\brenew[a-z]*\b[^.]{0,80}\b(remind|notify|notice)\b`), "Auto-renewal with notice", analysis.SeverityMedium, analysis.CategoryAutoRenewal, "Watch for the renewal reminder email."},
	{regexp.MustCompile(`(?i)\b(collect|track)\b[^.]{0,60}\b(usage|device|browsing|location)\s+(data|information)`), "Usage data collection", analysis.SeverityMedium, analysis.CategoryDataSharing, "Disable optional tracking where the settings allow."},
	{regexp.MustCompile(`(?i)\brestocking\s+fee`), "Restocking fees", analysis.SeverityMedium, analysis.CategoryFees, "Factor the restocking fee into any return decision."},
	{regexp.MustCompile(`(?i)\b(promotional|introductory)\s+(price|pricing|rate|period)\b`), "Promotional pricing expires", analysis.SeverityMedium, analysis.CategoryPriceChange, "Check what the regular price will be after the promotion."},
	// low
	{regexp.MustCompile(`(?i)\blimitation\s+of\s+liability\b|\bnot\s+be\s+liable\b`), "Liability limitations", analysis.SeverityLow, analysis.CategoryLiability, "Standard clause, but the company limits what it owes you if things go wrong."},
	{regexp.MustCompile(`(?i)\b(retain|store)\b[^.]{0,60}\b(data|information)\b[^.]{0,40}\b(as\s+long\s+as|indefinitely|after)`), "Data retention after account closure", analysis.SeverityLow, analysis.CategoryDataSharing, "Request deletion of your data when you close the account."},
	{regexp.MustCompile(`(?i)\b(modify|change|discontinue)\b[^.]{0,40}\b(the\s+)?service\b[^.]{0,40}\bat\s+any\s+time`), "Service modifications without notice", analysis.SeverityLow, analysis.CategoryOther, "Features you rely on may change. Avoid long prepaid plans."},
}

// Analyzer implements ai.Client without a network round trip.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Analyze(ctx context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := req.Text
	if req.MaxChars > 0 && len(content) > req.MaxChars {
		content = content[:req.MaxChars]
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.New(apperr.KindNoContent, "no text to analyze")
	}

	raw := make([]analysis.RawFinding, 0, 8)
	seenTitles := map[string]bool{}

	addFinding := func(d detector, quote string) {
		raw = append(raw, analysis.RawFinding{
			Category:       string(d.category),
			Severity:       string(d.severity),
			Title:          d.title,
			Summary:        d.title + " found in the document.",
			Quote:          quote,
			Recommendation: d.recommendation,
		})
		seenTitles[d.title] = true
	}

	for _, d := range detectors {
		if len(raw) >= maxFindings {
			break
		}
		if seenTitles[d.title] {
			continue
		}
		if loc := d.re.FindStringIndex(content); loc != nil {
			addFinding(d, sentenceAround(content, loc[0], loc[1]))
		}
	}

	findings := analysis.NormalizeFindings(raw)
	score := float64(analysis.CalculateRiskScore(findings))
	means, todo := analysis.PlainLanguageSummary(int(score), findings)

	out := &ai.RawAnalysis{
		RiskScore:   &score,
		WhatItMeans: means,
		WhatToDo:    todo,
		Findings:    raw,
	}
	if len(raw) == 0 {
		out.Summary = "No known red-flag patterns matched. A full model analysis may still find issues."
		out.Positives = []string{"No common predatory clauses detected"}
	} else {
		out.Summary = "Pattern scan matched known red flags."
		for _, f := range findings {
			if f.Severity == analysis.SeverityCritical || f.Severity == analysis.SeverityHigh {
				out.RedFlags = append(out.RedFlags, f.Title)
			}
		}
	}
	return out, nil
}

// sentenceAround returns the sentence containing content[start:end].
func sentenceAround(content string, start, end int) string {
	from := strings.LastIndexAny(content[:start], ".!?\n")
	from++
	to := strings.IndexAny(content[end:], ".!?\n")
	if to < 0 {
		to = len(content)
	} else {
		to = end + to + 1
	}
	return strings.TrimSpace(content[from:to])
}
