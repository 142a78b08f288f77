package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/resendlabs/resend-go"

	"github.com/bryanwahyu/trapscan/internal/domain/watchlist"
)

type sendFunc func(*resend.SendEmailRequest) error

// EmailNotifier sends alerts through Resend.
type EmailNotifier struct {
	send      sendFunc
	fromEmail string
	fromName  string
	to        []string
}

func NewEmailNotifier(apiKey, fromEmail, fromName string, to []string) (*EmailNotifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("at least one alert recipient is required")
	}
	if fromEmail == "" {
		fromEmail = "alerts@trapscan.dev"
	}
	if fromName == "" {
		fromName = "trapscan"
	}
	client := resend.NewClient(apiKey)
	send := func(r *resend.SendEmailRequest) error {
		_, err := client.Emails.Send(r)
		return err
	}
	return &EmailNotifier{send: send, fromEmail: fromEmail, fromName: fromName, to: to}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, c watchlist.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail),
		To:      n.to,
		Subject: subject(c),
		Html:    body(c),
	}
	if err := n.send(params); err != nil {
		return fmt.Errorf("failed to send change alert via Resend: %w", err)
	}
	return nil
}

func subject(c watchlist.Change) string {
	return fmt.Sprintf("ToS Changed: %s", c.Item.Domain)
}

func body(c watchlist.Change) string {
	name := c.Item.Title
	if strings.TrimSpace(name) == "" {
		name = c.Item.URL
	}
	var b strings.Builder
	b.WriteString("<h2>Terms of Service updated</h2>")
	fmt.Fprintf(&b, "<p>%s's Terms of Service has been updated. Run a new analysis to see what changed.</p>", html.EscapeString(c.Item.Domain))
	fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, html.EscapeString(c.Item.URL), html.EscapeString(name))
	if r := c.Item.LastResult; r != nil {
		fmt.Fprintf(&b, "<p>Previous risk score: %d/100 (%s)</p>", r.RiskScore, r.RiskLevel)
	}
	fmt.Fprintf(&b, "<p><small>Detected %s</small></p>", c.DetectedAt.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}
