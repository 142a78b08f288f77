package ai

import (
	"context"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
)

// Request is the document sent to an analysis backend.
type Request struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	PageType     []string `json:"pageType,omitempty"`
	MaxChars     int      `json:"maxChars"`
	Mode         Mode     `json:"analysisMode"`
	CustomPrompt string   `json:"customPrompt"`
}

// RawAnalysis is a backend answer before normalization.
type RawAnalysis struct {
	RiskScore    *float64              `json:"riskScore,omitempty"`
	Summary      string                `json:"summary,omitempty"`
	WhatItMeans  string                `json:"whatItMeans,omitempty"`
	WhatToDo     string                `json:"whatToDo,omitempty"`
	DocumentType string                `json:"documentType,omitempty"`
	CompanyName  string                `json:"companyName,omitempty"`
	Positives    []string              `json:"positives,omitempty"`
	RedFlags     []string              `json:"redFlags,omitempty"`
	Findings     []analysis.RawFinding `json:"findings"`
	ScansUsed    int                   `json:"scans_used,omitempty"`
	ScansLimit   int                   `json:"scans_limit,omitempty"`
}

// Client analyzes one document.
type Client interface {
	Analyze(ctx context.Context, req Request) (*RawAnalysis, error)
}
