package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bryanwahyu/trapscan/internal/client"
	"github.com/bryanwahyu/trapscan/internal/config"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/logging"
)

const requestTimeout = 2 * time.Minute

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// session bundles what a command needs to talk to the daemon.
type session struct {
	api *client.Client
	cfg *config.Config
}

// connect loads the client config, applies flag overrides and sets up
// logging on stderr so stdout stays clean for --json.
func (g *GlobalFlags) connect() (*session, error) {
	level := "warn"
	if g.Verbose {
		level = "debug"
	}
	logging.SetupWriter(os.Stderr, level, true)

	cfg, err := config.LoadClient(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.Server != "" {
		cfg.Client.Server = g.Server
	}
	if g.APIKey != "" {
		cfg.Client.APIKey = g.APIKey
	}
	return &session{
		api: client.New(cfg.Client.Server, cfg.Client.APIKey, requestTimeout),
		cfg: cfg,
	}, nil
}

// commandContext is cancelled on Ctrl-C.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns a daemon error into the popup style message.
func describe(err error) error {
	if err == nil {
		return nil
	}
	rep := apperr.Classify(err)
	msg := rep.Title + ": " + rep.Message
	if rep.Suggestion != "" {
		msg += " (" + rep.Suggestion + ")"
	}
	return errors.New(msg)
}

// readText returns document text from a file or stdin.
func readText(file string, fromStdin bool) (string, error) {
	var r io.Reader
	switch {
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	case fromStdin:
		r = stdin
	default:
		return "", nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// promptLine reads one line from stdin.
func promptLine(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func progressBar(percent int) string {
	const width = 20
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func printResult(r *analysis.Result) {
	fmt.Println("Risk Report")
	fmt.Println("===========")
	if r.Title != "" {
		fmt.Printf("Title:         %s\n", r.Title)
	}
	fmt.Printf("URL:           %s\n", r.URL)
	fmt.Printf("Risk:          %d/100 (%s)\n", r.RiskScore, r.RiskLevel)
	if r.CompanyName != "" && r.CompanyName != "Unknown" {
		fmt.Printf("Company:       %s\n", r.CompanyName)
	}
	fmt.Printf("Findings:      %d\n", r.Stats.Total)

	if r.Summary != "" {
		fmt.Println()
		fmt.Println(r.Summary)
	}
	if len(r.Findings) > 0 {
		fmt.Println()
		for _, f := range r.Findings {
			fmt.Printf("  [%-8s] %s (%s)\n", strings.ToUpper(string(f.Severity)), f.Title, f.Category)
			if f.Quote != "" {
				fmt.Printf("             %q\n", truncate(f.Quote, 160))
			}
		}
	}
	if r.WhatToDo != "" {
		fmt.Println()
		fmt.Printf("What to do:    %s\n", r.WhatToDo)
	}
	for _, flag := range r.RedFlags {
		fmt.Printf("  ! %s\n", flag)
	}
	for _, p := range r.Positives {
		fmt.Printf("  + %s\n", p)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
