package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

// Execute implements the go-flags Commander interface for ExtractCommand.
func (c *ExtractCommand) Execute(args []string) error {
	s, err := c.globals.connect()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	return describe(c.run(ctx, s))
}

func (c *ExtractCommand) run(ctx context.Context, s *session) error {
	if c.URL == "" {
		return apperr.New(apperr.KindInvalid, "--url is required")
	}
	if c.Redact && c.NoRedact {
		return apperr.New(apperr.KindInvalid, "use only one of --redact and --no-redact")
	}
	var redact *bool
	switch {
	case c.Redact:
		v := true
		redact = &v
	case c.NoRedact:
		v := false
		redact = &v
	}

	var html string
	if c.File != "" {
		b, err := os.ReadFile(c.File)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalid, "read html", err)
		}
		html = string(b)
	}

	page, err := s.api.Extract(ctx, c.URL, html, redact)
	if err != nil {
		return err
	}
	if c.globals.JSON {
		return printJSON(page)
	}
	fmt.Printf("Title:         %s\n", page.Title)
	fmt.Printf("Domain:        %s\n", page.Domain)
	if len(page.PageTypes) > 0 {
		fmt.Printf("Page types:    %s\n", strings.Join(page.PageTypes, ", "))
	}
	fmt.Printf("Relevant:      %t\n", page.Relevant)
	fmt.Println()
	fmt.Println(page.Text)
	return nil
}
