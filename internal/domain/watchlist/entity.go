package watchlist

import (
	"context"
	"time"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
)

// Item is a watched legal page.
type Item struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Domain      string           `json:"domain"`
	Title       string           `json:"title"`
	LastHash    string           `json:"lastHash"`
	LastChecked time.Time        `json:"lastChecked"`
	AddedAt     time.Time        `json:"addedAt"`
	LastResult  *analysis.Result `json:"lastResult,omitempty"`
	HasChanges  bool             `json:"hasChanges"`
	LastError   string           `json:"lastError,omitempty"`
}

// Change is reported when a page's text differs from the last check.
type Change struct {
	Item       Item      `json:"item"`
	OldHash    string    `json:"oldHash"`
	NewHash    string    `json:"newHash"`
	DetectedAt time.Time `json:"detectedAt"`
}

// Notifier delivers change alerts.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// PageSource returns the extracted text of a page.
type PageSource interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// CheckReport summarizes one CheckAll pass.
type CheckReport struct {
	Checked int      `json:"checked"`
	Changed int      `json:"changed"`
	Failed  int      `json:"failed"`
	Skipped bool     `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}
