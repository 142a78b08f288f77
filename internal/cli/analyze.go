package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/bryanwahyu/trapscan/internal/application/analysis"
	"github.com/bryanwahyu/trapscan/internal/client"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	domain "github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/jobs"
)

// Execute implements the go-flags Commander interface for AnalyzeCommand.
func (c *AnalyzeCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *AnalyzeCommand) run(ctx context.Context, s *session) error {
	if c.URL == "" {
		return apperr.New(apperr.KindInvalid, "--url is required")
	}
	if c.Mode != "" {
		if _, err := ai.ParseMode(c.Mode); err != nil {
			return apperr.Wrap(apperr.KindInvalid, "invalid --mode", err)
		}
	}

	req, err := c.request(ctx, s.api)
	if err != nil {
		return err
	}

	var res *domain.Result
	if c.Sync {
		out, err := s.api.Analyze(ctx, req)
		if err != nil {
			return err
		}
		res = out.Result
	} else {
		res, err = c.startAndWait(ctx, s, req)
		if err != nil {
			return err
		}
	}

	if c.globals.JSON {
		return printJSON(res)
	}
	printResult(res)
	return nil
}

// request builds the analysis input, asking the daemon to fetch the page
// when no local text was given.
func (c *AnalyzeCommand) request(ctx context.Context, api *client.Client) (analysis.Request, error) {
	req := analysis.Request{
		URL:          c.URL,
		Title:        c.Title,
		SkipCache:    c.SkipCache,
		Mode:         ai.Mode(c.Mode),
		CustomPrompt: c.Prompt,
	}
	text, err := readText(c.File, c.Stdin)
	if err != nil {
		return req, apperr.Wrap(apperr.KindInvalid, "read document", err)
	}
	if text != "" {
		req.Text = text
		return req, nil
	}

	page, err := api.Extract(ctx, c.URL, "", nil)
	if err != nil {
		return req, err
	}
	req.Text = page.Text
	req.PageType = page.PageTypes
	if req.Title == "" {
		req.Title = page.Title
	}
	if !page.Relevant && c.globals.Verbose {
		fmt.Fprintln(os.Stderr, "warning: page does not look like terms or a privacy policy")
	}
	return req, nil
}

func (c *AnalyzeCommand) startAndWait(ctx context.Context, s *session, req analysis.Request) (*domain.Result, error) {
	if _, err := s.api.StartAnalysis(ctx, req); err != nil {
		return nil, err
	}

	if c.Push {
		view, err := s.api.Await(ctx, req.URL)
		switch {
		case err == nil && view.Status == jobs.StatusComplete && view.Result != nil:
			return view.Result, nil
		case err == nil && view.Status == jobs.StatusError:
			return nil, &apperr.Error{Kind: kindOr(view.ErrorKind), Message: view.Error}
		case err != nil && ctx.Err() != nil:
			return nil, err
		}
		// stream ended early, keep waiting by polling
	}

	quiet := c.globals.JSON
	p := client.NewPoller(s.api, s.cfg.Client.PollInterval, s.cfg.Client.MaxAttempts)
	p.OnProgress = func(pct int) {
		if !quiet {
			fmt.Fprintf(os.Stderr, "\rAnalyzing %s %3d%%", progressBar(pct), pct)
		}
	}
	res, err := p.Wait(ctx, req.URL)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	return res, err
}

func kindOr(k apperr.Kind) apperr.Kind {
	if k == "" {
		return apperr.KindUnknown
	}
	return k
}
