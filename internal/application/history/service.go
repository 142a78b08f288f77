package history

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	domain "github.com/bryanwahyu/trapscan/internal/domain/history"
)

const topN = 5

// Service wraps a history repository with recording and analytics.
type Service struct {
	Repo  domain.Repository
	Clock application.Clock
}

func NewService(repo domain.Repository, clock application.Clock) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{Repo: repo, Clock: clock}
}

// Record saves a finished analysis, keyed by its URL.
func (s *Service) Record(ctx context.Context, r *analysis.Result) error {
	return s.Repo.Save(ctx, domain.NewEntry(uuid.NewString(), r, s.Clock.Now()))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*domain.Entry, error) {
	return s.Repo.List(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, url string) (*domain.Entry, error) {
	return s.Repo.Get(ctx, url)
}

func (s *Service) Delete(ctx context.Context, url string) error {
	return s.Repo.Delete(ctx, url)
}

func (s *Service) Clear(ctx context.Context) error {
	return s.Repo.Clear(ctx)
}

// Summary aggregates entries analyzed within the last `within`, or all
// entries when within is 0.
func (s *Service) Summary(ctx context.Context, within time.Duration) (domain.Summary, error) {
	entries, err := s.Repo.List(ctx, domain.MaxEntries, 0)
	if err != nil {
		return domain.Summary{}, err
	}
	if within > 0 {
		cutoff := s.Clock.Now().Add(-within)
		entries = lo.Filter(entries, func(e *domain.Entry, _ int) bool { return !e.AnalyzedAt.Before(cutoff) })
	}
	return Summarize(entries), nil
}

// Summarize computes the analytics view over entries.
func Summarize(entries []*domain.Entry) domain.Summary {
	sum := domain.Summary{
		Total:         len(entries),
		ByRiskLevel:   map[analysis.RiskLevel]int{},
		TopCategories: []domain.CategoryCount{},
		TopSites:      []domain.SiteCount{},
	}
	if len(entries) == 0 {
		return sum
	}

	total := 0
	categories := map[analysis.Category]int{}
	sites := map[string]int{}
	for _, e := range entries {
		total += e.RiskScore
		level := e.RiskLevel
		if level == "" {
			level = analysis.RiskLevelFor(e.RiskScore)
		}
		sum.ByRiskLevel[level]++
		if level == analysis.RiskHigh || level == analysis.RiskCritical {
			sum.HighRiskCount++
		}
		sites[e.Domain]++
		if e.Result != nil {
			for _, f := range e.Result.Findings {
				categories[f.Category]++
			}
		}
	}
	sum.AverageScore = math.Round(float64(total)/float64(len(entries))*10) / 10
	sum.UniqueSites = len(sites)

	for c, n := range categories {
		sum.TopCategories = append(sum.TopCategories, domain.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(sum.TopCategories, func(i, j int) bool {
		a, b := sum.TopCategories[i], sum.TopCategories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	if len(sum.TopCategories) > topN {
		sum.TopCategories = sum.TopCategories[:topN]
	}

	for d, n := range sites {
		sum.TopSites = append(sum.TopSites, domain.SiteCount{Domain: d, Count: n})
	}
	sort.Slice(sum.TopSites, func(i, j int) bool {
		a, b := sum.TopSites[i], sum.TopSites[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Domain < b.Domain
	})
	if len(sum.TopSites) > topN {
		sum.TopSites = sum.TopSites[:topN]
	}
	return sum
}
