// Package analysis runs the end-to-end pipeline for one document: quota,
// cache, tier gating, the queued backend call and persistence.
package analysis

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/application/cache"
	"github.com/bryanwahyu/trapscan/internal/application/jobs"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	domain "github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	domainjobs "github.com/bryanwahyu/trapscan/internal/domain/jobs"
	"github.com/bryanwahyu/trapscan/internal/domain/settings"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
)

// UsageTracker is the quota view the pipeline needs.
type UsageTracker interface {
	Check(ctx context.Context) (usage.Check, error)
	Increment(ctx context.Context) (usage.Check, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type ResultCache interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool, error)
	Set(ctx context.Context, key, url string, result *domain.Result) error
}

type OfflineStore interface {
	Save(ctx context.Context, url string, result *domain.Result) error
	Lookup(ctx context.Context, url string) (*cache.Entry, bool, error)
}

type HistoryRecorder interface {
	Record(ctx context.Context, r *domain.Result) error
}

// Observer is told about every finished analysis, for metrics.
type Observer interface {
	AnalysisStarted()
	AnalysisFinished(source Source, err error)
}

// Source says where a result came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
)

// Request is one document to analyze.
type Request struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	PageType     []string `json:"pageType,omitempty"`
	SkipCache    bool     `json:"skipCache"`
	Mode         ai.Mode  `json:"analysisMode,omitempty"`
	CustomPrompt string   `json:"customPrompt,omitempty"`
}

// Outcome is a finished analysis plus how it was obtained.
type Outcome struct {
	Result    *domain.Result `json:"result"`
	FromCache bool           `json:"fromCache"`
	Offline   bool           `json:"offline"`
	Usage     *usage.Check   `json:"usage,omitempty"`
}

// Ack acknowledges a background analysis.
type Ack struct {
	Status    domainjobs.Status `json:"status"`
	JobID     string            `json:"jobId"`
	URL       string            `json:"url"`
	StartTime time.Time         `json:"startTime"`
}

type Service struct {
	Usage    UsageTracker
	Settings SettingsSource
	Cache    ResultCache
	Offline  OfflineStore
	Backend  ai.Client
	History  HistoryRecorder
	Jobs     *jobs.Registry
	Observer Observer
	Clock    application.Clock
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// UsageLimitError builds the quota exhausted error.
func UsageLimitError(c usage.Check) error {
	label := "monthly"
	if c.Period == usage.PeriodWeek {
		label = "weekly"
	}
	return apperr.New(apperr.KindUsageLimit, fmt.Sprintf("You've used all %d %s scans. Upgrade for more!", c.Limit, label))
}

// Analyze runs the pipeline synchronously.
func (s *Service) Analyze(ctx context.Context, req Request) (out *Outcome, err error) {
	source := SourceBackend
	if s.Observer != nil {
		s.Observer.AnalysisStarted()
		defer func() { s.Observer.AnalysisFinished(source, err) }()
	}

	check, err := s.Usage.Check(ctx)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, UsageLimitError(check)
	}

	cfg, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	mode := cfg.AnalysisMode
	if req.Mode != "" {
		mode = req.Mode
	}
	if mode, err = ai.ParseMode(string(mode)); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "invalid analysis mode", err)
	}
	customPrompt := cfg.CustomPrompt
	if req.CustomPrompt != "" {
		customPrompt = req.CustomPrompt
	}

	text := ClampText(req.Text, cfg.MaxChars)
	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.KindNoContent, "No text found on this page.")
	}

	hash := cache.HashText(text)
	useCache := cfg.CacheResults && !req.SkipCache
	if useCache && s.Cache != nil {
		if e, ok, err := s.Cache.Get(ctx, hash); err != nil {
			log.Warn().Err(err).Msg("cache read failed")
		} else if ok {
			source = SourceCache
			return &Outcome{Result: e.Data, FromCache: true}, nil
		}
	}

	plan := usage.PlanFor(check.Tier)
	modeCfg := ai.ConfigFor(mode)
	if plan.Level < modeCfg.RequiredLevel {
		return nil, apperr.New(apperr.KindForbidden, fmt.Sprintf("%s analysis requires %s tier or higher", mode, requiredTierName(modeCfg.RequiredLevel)))
	}
	if customPrompt != "" && plan.Level < ai.CustomPromptLevel {
		return nil, apperr.New(apperr.KindForbidden, fmt.Sprintf("custom prompts require %s tier or higher", requiredTierName(ai.CustomPromptLevel)))
	}

	raw, err := s.Backend.Analyze(ctx, ai.Request{
		URL:          req.URL,
		Title:        req.Title,
		Text:         text,
		PageType:     req.PageType,
		MaxChars:     cfg.MaxChars,
		Mode:         mode,
		CustomPrompt: customPrompt,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNetwork) && s.Offline != nil && req.URL != "" {
			if e, ok, lerr := s.Offline.Lookup(ctx, req.URL); lerr == nil && ok {
				log.Warn().Err(err).Str("url", req.URL).Msg("backend unreachable, serving offline copy")
				source = SourceOffline
				return &Outcome{Result: e.Data, FromCache: true, Offline: true}, nil
			}
		}
		return nil, err
	}

	result := s.build(req, raw, mode, hash)

	if useCache && s.Cache != nil {
		if err := s.Cache.Set(ctx, hash, req.URL, result); err != nil {
			log.Warn().Err(err).Msg("cache write failed")
		}
	}
	if s.Offline != nil && req.URL != "" {
		if err := s.Offline.Save(ctx, req.URL, result); err != nil {
			log.Warn().Err(err).Msg("offline save failed")
		}
	}
	after, err := s.Usage.Increment(ctx)
	if err != nil {
		log.Error().Err(err).Msg("usage increment failed")
	}
	if s.History != nil && req.URL != "" {
		if err := s.History.Record(ctx, result); err != nil {
			log.Warn().Err(err).Msg("history save failed")
		}
	}

	out = &Outcome{Result: result}
	if err == nil {
		out.Usage = &after
	}
	log.Info().Str("url", req.URL).Int("risk_score", result.RiskScore).Int("findings", len(result.Findings)).Str("mode", string(mode)).Msg("analysis complete")
	return out, nil
}

func (s *Service) build(req Request, raw *ai.RawAnalysis, mode ai.Mode, hash string) *domain.Result {
	findings := domain.SortBySeverity(domain.NormalizeFindings(raw.Findings))
	score := 0
	if raw.RiskScore != nil {
		score = domain.ClampScore(int(*raw.RiskScore + 0.5))
	} else {
		score = domain.CalculateRiskScore(findings)
	}

	whatItMeans, whatToDo := raw.WhatItMeans, raw.WhatToDo
	if whatItMeans == "" || whatToDo == "" {
		m, t := domain.PlainLanguageSummary(score, findings)
		if whatItMeans == "" {
			whatItMeans = m
		}
		if whatToDo == "" {
			whatToDo = t
		}
	}
	summary := firstNonEmpty(raw.Summary, raw.WhatItMeans, "Analysis complete.")

	return &domain.Result{
		URL:          req.URL,
		Title:        req.Title,
		PageType:     req.PageType,
		RiskScore:    score,
		RiskLevel:    domain.RiskLevelFor(score),
		Summary:      summary,
		WhatItMeans:  whatItMeans,
		WhatToDo:     whatToDo,
		DocumentType: firstNonEmpty(raw.DocumentType, "unknown"),
		CompanyName:  firstNonEmpty(raw.CompanyName, "Unknown"),
		Positives:    nonNil(raw.Positives),
		RedFlags:     nonNil(raw.RedFlags),
		Findings:     findings,
		Stats:        domain.ComputeStats(findings),
		AnalysisMode: string(mode),
		AnalyzedAt:   s.now(),
		Hash:         hash,
		ScansUsed:    raw.ScansUsed,
		ScansLimit:   raw.ScansLimit,
	}
}

// StartAsync registers a job for req.URL and runs the analysis in the
// background. A new start for the same URL supersedes the previous one.
func (s *Service) StartAsync(ctx context.Context, req Request) (Ack, error) {
	if err := ValidateURL(req.URL); err != nil {
		return Ack{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	job := s.Jobs.Start(req.URL)

	// pakai context.Background supaya gak kena cancel dari request HTTP
	go func() {
		out, err := s.Analyze(context.Background(), req)
		if err != nil {
			log.Warn().Err(err).Str("url", req.URL).Str("job", job.ID).Msg("background analysis failed")
			s.Jobs.Fail(job.ID, req.URL, err)
			return
		}
		s.Jobs.Complete(job.ID, req.URL, out.Result)
	}()

	return Ack{Status: domainjobs.StatusAnalyzing, JobID: job.ID, URL: req.URL, StartTime: job.StartTime}, nil
}

// Status returns the job view for url, status none when unknown.
func (s *Service) Status(url string) domainjobs.View {
	return s.Jobs.Status(url)
}

// ValidateURL accepts absolute http(s) URLs.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return apperr.New(apperr.KindInvalid, "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.KindInvalid, fmt.Sprintf("invalid url %q", raw))
	}
	return nil
}

// ClampText cuts text to at most maxChars runes. maxChars <= 0 keeps it all.
func ClampText(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}

func requiredTierName(level int) string {
	for _, t := range usage.Tiers {
		if p := usage.PlanFor(t); p.Level >= level {
			return string(p.Tier)
		}
	}
	return string(usage.TierAgency)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
