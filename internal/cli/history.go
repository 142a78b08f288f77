package cli

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *HistoryCommand) run(ctx context.Context, s *session) error {
	list, err := s.api.History(ctx, c.Limit, c.Offset)
	if err != nil {
		return err
	}
	if c.globals.JSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No analyses yet.")
		return nil
	}
	fmt.Printf("%-16s  %-5s  %-8s  %-4s  %s\n", "ANALYZED", "SCORE", "LEVEL", "HITS", "URL")
	for _, e := range list {
		fmt.Printf("%-16s  %5d  %-8s  %4d  %s\n", formatTime(e.AnalyzedAt), e.RiskScore, e.RiskLevel, e.FindingCount, e.URL)
	}
	return nil
}

// Execute implements the go-flags Commander interface for WatchCommand.
func (c *WatchCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *WatchCommand) run(ctx context.Context, s *session) error {
	switch {
	case c.Add != "" && c.Remove != "":
		return apperr.New(apperr.KindInvalid, "use only one of --add and --remove")
	case c.Add != "":
		item, err := s.api.Watch(ctx, c.Add)
		if err != nil {
			return err
		}
		if c.globals.JSON {
			return printJSON(item)
		}
		fmt.Printf("Watching %s (id %s)\n", item.URL, item.ID)
		return nil
	case c.Remove != "":
		if err := s.api.Unwatch(ctx, c.Remove); err != nil {
			return err
		}
		if !c.globals.JSON {
			fmt.Printf("Removed %s\n", c.Remove)
		}
		return nil
	case c.Check:
		rep, err := s.api.CheckWatchlist(ctx)
		if err != nil {
			return err
		}
		if c.globals.JSON {
			return printJSON(rep)
		}
		if rep.Skipped {
			fmt.Println("Watchlist alerts are disabled; nothing checked.")
			return nil
		}
		fmt.Printf("Checked %d, changed %d, failed %d\n", rep.Checked, rep.Changed, rep.Failed)
		for _, e := range rep.Errors {
			fmt.Printf("  ! %s\n", e)
		}
		return nil
	}

	items, err := s.api.Watchlist(ctx)
	if err != nil {
		return err
	}
	if c.globals.JSON {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("Watchlist is empty.")
		return nil
	}
	for _, it := range items {
		mark := " "
		if it.HasChanges {
			mark = "*"
		}
		fmt.Printf("%s %-36s  %-16s  %s\n", mark, it.ID, formatTime(it.LastChecked), it.URL)
	}
	return nil
}
