package history

import (
	"net/url"
	"time"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
)

// MaxEntries bounds every history backend.
const MaxEntries = 100

// Entry is one saved analysis, at most one per URL.
type Entry struct {
	ID           string             `json:"id"`
	URL          string             `json:"url"`
	Domain       string             `json:"domain"`
	Title        string             `json:"title"`
	RiskScore    int                `json:"riskScore"`
	RiskLevel    analysis.RiskLevel `json:"riskLevel"`
	FindingCount int                `json:"findingCount"`
	AddedAt      time.Time          `json:"addedAt"`
	AnalyzedAt   time.Time          `json:"analyzedAt"`
	Result       *analysis.Result   `json:"result"`
}

// NewEntry builds an entry from a finished analysis.
func NewEntry(id string, r *analysis.Result, now time.Time) *Entry {
	e := &Entry{
		ID:           id,
		URL:          r.URL,
		Title:        r.Title,
		RiskScore:    r.RiskScore,
		RiskLevel:    r.RiskLevel,
		FindingCount: len(r.Findings),
		AddedAt:      now,
		AnalyzedAt:   r.AnalyzedAt,
		Result:       r,
	}
	if e.AnalyzedAt.IsZero() {
		e.AnalyzedAt = now
	}
	e.Domain = DomainOf(r.URL)
	return e
}

func DomainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// Summary is the analytics view over history.
type Summary struct {
	Total         int                        `json:"total"`
	AverageScore  float64                    `json:"averageScore"`
	UniqueSites   int                        `json:"uniqueSites"`
	HighRiskCount int                        `json:"highRiskCount"`
	ByRiskLevel   map[analysis.RiskLevel]int `json:"byRiskLevel"`
	TopCategories []CategoryCount            `json:"topCategories"`
	TopSites      []SiteCount                `json:"topSites"`
}

type CategoryCount struct {
	Category analysis.Category `json:"category"`
	Count    int               `json:"count"`
}

type SiteCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}
