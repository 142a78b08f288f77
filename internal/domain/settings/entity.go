package settings

import (
	"fmt"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
)

const (
	MinMaxChars = 1000
	MaxMaxChars = 100000
)

// Settings are the user preferences that shape an analysis.
type Settings struct {
	MaxChars        int     `json:"maxChars"`
	CacheResults    bool    `json:"cacheResults"`
	AnalysisMode    ai.Mode `json:"analysisMode"`
	CustomPrompt    string  `json:"customPrompt"`
	RedactPII       bool    `json:"redactPII"`
	WatchlistAlerts bool    `json:"watchlistAlerts"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	MaxChars        *int     `json:"maxChars,omitempty"`
	CacheResults    *bool    `json:"cacheResults,omitempty"`
	AnalysisMode    *ai.Mode `json:"analysisMode,omitempty"`
	CustomPrompt    *string  `json:"customPrompt,omitempty"`
	RedactPII       *bool    `json:"redactPII,omitempty"`
	WatchlistAlerts *bool    `json:"watchlistAlerts,omitempty"`
}

// Apply returns s with p merged in, or an error for invalid values.
func (s Settings) Apply(p Patch) (Settings, error) {
	if p.MaxChars != nil {
		if *p.MaxChars < MinMaxChars || *p.MaxChars > MaxMaxChars {
			return s, fmt.Errorf("maxChars must be between %d and %d", MinMaxChars, MaxMaxChars)
		}
		s.MaxChars = *p.MaxChars
	}
	if p.AnalysisMode != nil {
		m, err := ai.ParseMode(string(*p.AnalysisMode))
		if err != nil {
			return s, err
		}
		s.AnalysisMode = m
	}
	if p.CacheResults != nil {
		s.CacheResults = *p.CacheResults
	}
	if p.CustomPrompt != nil {
		s.CustomPrompt = *p.CustomPrompt
	}
	if p.RedactPII != nil {
		s.RedactPII = *p.RedactPII
	}
	if p.WatchlistAlerts != nil {
		s.WatchlistAlerts = *p.WatchlistAlerts
	}
	return s, nil
}

// Defaults are used until the user saves settings.
func Defaults() Settings {
	return Settings{
		MaxChars:        20000,
		CacheResults:    true,
		AnalysisMode:    ai.ModeStandard,
		WatchlistAlerts: true,
	}
}
