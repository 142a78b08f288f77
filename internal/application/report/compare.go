package report

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
)

// Side is one document of a comparison.
type Side struct {
	URL       string             `json:"url"`
	Title     string             `json:"title"`
	RiskScore int                `json:"riskScore"`
	RiskLevel analysis.RiskLevel `json:"riskLevel"`
	Findings  int                `json:"findings"`
	Critical  int                `json:"critical"`
	High      int                `json:"high"`
}

// Comparison puts two analyzed documents side by side. Better is "a", "b"
// or "tie"; the lower risk score wins.
type Comparison struct {
	A      Side   `json:"a"`
	B      Side   `json:"b"`
	Better string `json:"better"`
}

func sideOf(r *analysis.Result) Side {
	return Side{
		URL:       r.URL,
		Title:     r.Title,
		RiskScore: r.RiskScore,
		RiskLevel: r.RiskLevel,
		Findings:  len(r.Findings),
		Critical:  r.Stats.BySeverity[analysis.SeverityCritical],
		High:      r.Stats.BySeverity[analysis.SeverityHigh],
	}
}

// Compare contrasts two history entries. Both must have been analyzed.
func (s *Service) Compare(ctx context.Context, urlA, urlB string) (Comparison, error) {
	tier, err := s.Tiers.Tier(ctx)
	if err != nil {
		return Comparison{}, err
	}
	plan := usage.PlanFor(tier)
	if !plan.Features.Compare {
		return Comparison{}, apperr.New(apperr.KindForbidden, fmt.Sprintf("compare is not available on the %s plan", plan.Name))
	}
	if urlA == "" || urlB == "" {
		return Comparison{}, apperr.New(apperr.KindInvalid, "two urls are required")
	}

	sides := make([]Side, 0, 2)
	for _, u := range []string{urlA, urlB} {
		e, err := s.History.Get(ctx, u)
		if err != nil {
			return Comparison{}, err
		}
		if e.Result == nil {
			return Comparison{}, apperr.New(apperr.KindNotFound, "no analysis stored for "+u)
		}
		sides = append(sides, sideOf(e.Result))
	}

	c := Comparison{A: sides[0], B: sides[1], Better: "tie"}
	switch {
	case c.A.RiskScore < c.B.RiskScore:
		c.Better = "a"
	case c.B.RiskScore < c.A.RiskScore:
		c.Better = "b"
	}
	return c, nil
}
