package client

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/jobs"
)

const (
	DefaultPollInterval  = time.Second
	DefaultGraceAttempts = 60
	DefaultMaxAttempts   = 600
)

// StatusSource answers "what is the job for this URL doing".
type StatusSource interface {
	Status(ctx context.Context, pageURL string) (jobs.View, error)
}

// Poller waits for a background analysis by asking for its status on an
// interval, reporting a simulated progress percentage as it goes.
type Poller struct {
	Source   StatusSource
	Interval time.Duration
	// GraceAttempts is how long a missing job or a failing poll is
	// tolerated before giving up.
	GraceAttempts int
	MaxAttempts   int
	Sleep         application.SleepFunc
	OnProgress    func(percent int)
}

func NewPoller(src StatusSource, interval time.Duration, grace int) *Poller {
	return &Poller{Source: src, Interval: interval, GraceAttempts: grace}
}

// Progress is the percentage shown after attempt polls.
func Progress(attempt int) int {
	return min(95, 10+2*attempt)
}

var errPollTimeout = apperr.New(apperr.KindTimeout, "Analysis timed out. Please try again.")

// Wait polls until the job for pageURL completes or fails.
func (p *Poller) Wait(ctx context.Context, pageURL string) (*analysis.Result, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	grace := p.GraceAttempts
	if grace <= 0 {
		grace = DefaultGraceAttempts
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = application.Sleep
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := sleep(ctx, interval); err != nil {
			return nil, apperr.Wrap(apperr.KindOf(err), "waiting for analysis", err)
		}
		p.report(Progress(attempt))

		view, err := p.Source.Status(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperr.Wrap(apperr.KindOf(ctx.Err()), "waiting for analysis", ctx.Err())
			}
			log.Debug().Err(err).Int("attempt", attempt).Msg("status poll failed")
			if attempt >= grace {
				return nil, errPollTimeout
			}
			continue
		}

		switch view.Status {
		case jobs.StatusComplete:
			p.report(100)
			if view.Result == nil {
				return nil, apperr.New(apperr.KindInvalid, "job completed without a result")
			}
			return view.Result, nil
		case jobs.StatusError:
			kind := view.ErrorKind
			if kind == "" {
				kind = apperr.KindUnknown
			}
			return nil, apperr.New(kind, view.Error)
		case jobs.StatusNone:
			if attempt >= grace {
				return nil, errPollTimeout
			}
		}
	}
	return nil, errPollTimeout
}

func (p *Poller) report(percent int) {
	if p.OnProgress != nil {
		p.OnProgress(percent)
	}
}
