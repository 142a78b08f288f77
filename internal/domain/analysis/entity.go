package analysis

import "time"

type Category string

const (
	CategoryAutoRenewal       Category = "auto_renewal"
	CategoryCancellation      Category = "cancellation"
	CategoryRefund            Category = "refund"
	CategoryTrial             Category = "trial"
	CategoryFees              Category = "fees"
	CategoryPriceChange       Category = "price_change"
	CategoryDataSharing       Category = "data_sharing"
	CategoryDataSelling       Category = "data_selling"
	CategoryArbitration       Category = "arbitration"
	CategoryClassActionWaiver Category = "class_action_waiver"
	CategoryTermination       Category = "termination"
	CategoryLiability         Category = "liability"
	CategoryDarkPattern       Category = "dark_pattern"
	CategoryOther             Category = "other"
)

// Categories in display order.
var Categories = []Category{
	CategoryAutoRenewal, CategoryCancellation, CategoryRefund, CategoryTrial,
	CategoryFees, CategoryPriceChange, CategoryDataSharing, CategoryDataSelling,
	CategoryArbitration, CategoryClassActionWaiver, CategoryTermination,
	CategoryLiability, CategoryDarkPattern, CategoryOther,
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Weight is the risk score contribution of a single finding.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 50
	case SeverityHigh:
		return 30
	case SeverityMedium:
		return 15
	default:
		return 5
	}
}

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Finding is one concerning clause.
type Finding struct {
	ID             string   `json:"id"`
	Category       Category `json:"category"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Quote          string   `json:"quote"`
	Recommendation string   `json:"recommendation,omitempty"`
	Location       string   `json:"location,omitempty"`
}

type Stats struct {
	ByCategory map[Category]int `json:"byCategory"`
	BySeverity map[Severity]int `json:"bySeverity"`
	Total      int              `json:"total"`
}

// Result is a completed analysis of one document.
type Result struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	PageType     []string  `json:"pageType,omitempty"`
	RiskScore    int       `json:"riskScore"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	Summary      string    `json:"summary"`
	WhatItMeans  string    `json:"whatItMeans"`
	WhatToDo     string    `json:"whatToDo"`
	DocumentType string    `json:"documentType,omitempty"`
	CompanyName  string    `json:"companyName,omitempty"`
	Positives    []string  `json:"positives"`
	RedFlags     []string  `json:"redFlags"`
	Findings     []Finding `json:"findings"`
	Stats        Stats     `json:"stats"`
	AnalysisMode string    `json:"analysisMode,omitempty"`
	AnalyzedAt   time.Time `json:"analyzedAt"`
	Hash         string    `json:"hash"`
	ScansUsed    int       `json:"scansUsed,omitempty"`
	ScansLimit   int       `json:"scansLimit,omitempty"`
}
