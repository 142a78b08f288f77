package cli

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/jobs"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
)

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *StatusCommand) run(ctx context.Context, s *session) error {
	if c.URL == "" {
		return apperr.New(apperr.KindInvalid, "--url is required")
	}
	v, err := s.api.Status(ctx, c.URL)
	if err != nil {
		return err
	}
	if c.globals.JSON {
		return printJSON(v)
	}

	fmt.Printf("Status:        %s\n", v.Status)
	if v.JobID != "" {
		fmt.Printf("Job:           %s\n", v.JobID)
	}
	if v.StartTime != nil {
		fmt.Printf("Started:       %s\n", formatTime(*v.StartTime))
	}
	switch v.Status {
	case jobs.StatusComplete:
		if v.Result != nil {
			fmt.Printf("Risk:          %d/100 (%s)\n", v.Result.RiskScore, v.Result.RiskLevel)
		}
	case jobs.StatusError:
		fmt.Printf("Error:         %s (%s)\n", v.Error, v.ErrorKind)
	}
	return nil
}

// Execute implements the go-flags Commander interface for UsageCommand.
func (c *UsageCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *UsageCommand) run(ctx context.Context, s *session) error {
	u, err := s.api.Usage(ctx)
	if err != nil {
		return err
	}
	if c.globals.JSON {
		return printJSON(u)
	}

	period := "month"
	if u.Period == usage.PeriodWeek {
		period = "week"
	}
	fmt.Printf("Plan:          %s\n", u.TierName)
	fmt.Printf("Scans:         %d of %d used this %s\n", u.Used, u.Limit, period)
	fmt.Printf("Remaining:     %d\n", u.Remaining)
	fmt.Printf("Resets:        %s\n", u.ResetDate.Format("2006-01-02"))
	if !u.Allowed {
		fmt.Println()
		fmt.Println("Scan limit reached. Upgrade for more!")
	}
	return nil
}
