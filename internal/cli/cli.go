// Package cli implements the trapscan command line client.
package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Analyze *AnalyzeCommand
	Status  *StatusCommand
	Usage   *UsageCommand
	History *HistoryCommand
	Watch   *WatchCommand
	Login   *LoginCommand
	Logout  *LogoutCommand
	Extract *ExtractCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "trapscan"
	parser.LongDescription = "Find the traps in Terms of Service and Privacy Policy pages."

	cmds := &commands{
		Analyze: &AnalyzeCommand{globals: &globals, version: version},
		Status:  &StatusCommand{globals: &globals, version: version},
		Usage:   &UsageCommand{globals: &globals, version: version},
		History: &HistoryCommand{globals: &globals, version: version},
		Watch:   &WatchCommand{globals: &globals, version: version},
		Login:   &LoginCommand{globals: &globals, version: version},
		Logout:  &LogoutCommand{globals: &globals, version: version},
		Extract: &ExtractCommand{globals: &globals, version: version},
	}

	parser.AddCommand("analyze", "Analyze a document", "Fetch a page or read text, analyze it in the background and wait for the result.", cmds.Analyze)
	parser.AddCommand("status", "Show analysis status for a URL", "Show the background analysis state of a URL.", cmds.Status)
	parser.AddCommand("usage", "Show scan quota", "Show scans used and remaining in the current billing period.", cmds.Usage)
	parser.AddCommand("history", "List past analyses", "List past analyses, newest first.", cmds.History)
	parser.AddCommand("watch", "Manage the watchlist", "List, add, remove or re-check watched pages.", cmds.Watch)
	parser.AddCommand("login", "Sign in", "Sign in to the analysis service through the daemon.", cmds.Login)
	parser.AddCommand("logout", "Sign out", "Drop the daemon's stored session.", cmds.Logout)
	parser.AddCommand("extract", "Print extracted page text", "Print the readable text the daemon extracts from a page.", cmds.Extract)

	return parser, &globals, cmds
}

// Run is the main entry point for the trapscan CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("trapscan %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
