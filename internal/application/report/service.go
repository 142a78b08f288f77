package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/history"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
)

// Uploader stores a rendered report and returns where it lives.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type TierSource interface {
	Tier(ctx context.Context) (usage.Tier, error)
}

// Document is a rendered export.
type Document struct {
	Format      Format `json:"format"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Data        []byte `json:"-"`
	Location    string `json:"location,omitempty"`
}

type Service struct {
	History  history.Repository
	Tiers    TierSource
	Uploader Uploader
	Clock    application.Clock
}

func NewService(repo history.Repository, tiers TierSource, uploader Uploader, clock application.Clock) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{History: repo, Tiers: tiers, Uploader: uploader, Clock: clock}
}

// Export renders one history entry, or all of them when url is empty.
func (s *Service) Export(ctx context.Context, f Format, url string) (Document, error) {
	tier, err := s.Tiers.Tier(ctx)
	if err != nil {
		return Document{}, err
	}
	plan := usage.PlanFor(tier)
	if !plan.Features.Export {
		return Document{}, apperr.New(apperr.KindForbidden, fmt.Sprintf("export is not available on the %s plan", plan.Name))
	}

	var results []*analysis.Result
	if url != "" {
		e, err := s.History.Get(ctx, url)
		if err != nil {
			return Document{}, err
		}
		if e.Result != nil {
			results = append(results, e.Result)
		}
	} else {
		entries, err := s.History.List(ctx, history.MaxEntries, 0)
		if err != nil {
			return Document{}, err
		}
		for _, e := range entries {
			if e.Result != nil {
				results = append(results, e.Result)
			}
		}
	}

	data, err := Render(f, results)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Format:      f,
		ContentType: f.ContentType(),
		Filename:    s.filename(f, url),
		Data:        data,
	}, nil
}

// Publish exports and uploads the report.
func (s *Service) Publish(ctx context.Context, f Format, url string) (Document, error) {
	if s.Uploader == nil {
		return Document{}, apperr.New(apperr.KindForbidden, "report storage is not configured")
	}
	doc, err := s.Export(ctx, f, url)
	if err != nil {
		return doc, err
	}
	loc, err := s.Uploader.Put(ctx, "reports/"+doc.Filename, doc.Data, doc.ContentType)
	if err != nil {
		return doc, apperr.Wrap(apperr.KindNetwork, "upload report", err)
	}
	doc.Location = loc
	return doc, nil
}

func (s *Service) filename(f Format, url string) string {
	name := "history"
	if url != "" {
		name = slug(history.DomainOf(url))
	}
	return fmt.Sprintf("trapscan-%s-%s.%s", name, s.Clock.Now().UTC().Format("20060102-150405"), f)
}

func slug(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, s)
}
