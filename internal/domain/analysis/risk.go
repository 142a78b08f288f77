package analysis

import "strings"

// RiskLevelFor buckets a 0-100 score.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ClampScore keeps a backend score in 0..100.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// categories that add an extra penalty per finding
var penaltyCategories = map[Category]bool{
	CategoryAutoRenewal: true,
	CategoryArbitration: true,
	CategoryDataSelling: true,
	CategoryFees:        true,
}

const maxCategoryPenalty = 20

// CalculateRiskScore scores findings locally, used when a backend does not
// supply its own score.
func CalculateRiskScore(findings []Finding) int {
	if len(findings) == 0 {
		return 0
	}
	total, penalty := 0, 0
	for _, f := range findings {
		total += f.Severity.Weight()
		if penaltyCategories[f.Category] {
			penalty += 5
		}
	}
	if penalty > maxCategoryPenalty {
		penalty = maxCategoryPenalty
	}
	return ClampScore(total + penalty)
}

// PlainLanguageSummary builds the what-it-means / what-to-do texts from the
// score and the categories present.
func PlainLanguageSummary(score int, findings []Finding) (whatItMeans, whatToDo string) {
	var means, todo strings.Builder
	switch RiskLevelFor(score) {
	case RiskLow:
		means.WriteString("This document appears relatively consumer-friendly with few concerning clauses. ")
		todo.WriteString("While this looks reasonable, still read key sections before agreeing. ")
	case RiskMedium:
		means.WriteString("This document has some clauses that could affect you financially or limit your rights. ")
		todo.WriteString("Pay attention to the highlighted issues before signing up. Consider alternatives if the terms don't work for you. ")
	case RiskHigh:
		means.WriteString("This document contains several concerning clauses that could cost you money or significantly limit your rights. ")
		todo.WriteString("Proceed with caution. Make sure you understand the cancellation and refund policies. Set calendar reminders for any trial periods. ")
	default:
		means.WriteString("This document has multiple red flags that strongly favor the company over consumers. ")
		todo.WriteString("We recommend carefully reconsidering this service. If you proceed, document everything, use virtual payment methods, and set reminders for all deadlines. ")
	}

	st := ComputeStats(findings)
	var concerns []string
	for _, c := range []struct {
		cat   Category
		label string
	}{
		{CategoryAutoRenewal, "auto-renewal"},
		{CategoryArbitration, "forced arbitration"},
		{CategoryDataSelling, "data selling"},
		{CategoryFees, "hidden fees"},
		{CategoryRefund, "refund restrictions"},
	} {
		if st.ByCategory[c.cat] > 0 {
			concerns = append(concerns, c.label)
		}
	}
	if len(concerns) > 0 {
		means.WriteString("Key concerns include: " + strings.Join(concerns, ", ") + ".")
	}
	if st.ByCategory[CategoryTrial] > 0 {
		todo.WriteString("Set a reminder before any trial period ends. ")
	}
	if st.ByCategory[CategoryCancellation] > 0 {
		todo.WriteString("Note exactly how and when you can cancel. ")
	}
	return strings.TrimSpace(means.String()), strings.TrimSpace(todo.String())
}
