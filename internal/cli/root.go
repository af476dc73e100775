package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"fireside/internal/cli/subcommands"
	"fireside/internal/config"
	"fireside/internal/logging"
	"fireside/internal/tui"

	_ "fireside/engine/enginetest"
)

// Execute is the entry point for the fireside CLI.
func Execute() int {
	args := os.Args[1:]

	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if cfg.Logging.Quiet {
		logging.Discard()
	} else if err := logging.Init(cfg.Logging.ToFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return 1
	}
	defer logging.Close()

	if len(args) == 0 {
		return runRepl(cfg, []string{})
	}

	subcommand := args[0]
	switch subcommand {
	case "ask":
		return runAsk(cfg, args[1:])
	case "repl":
		return runRepl(cfg, args[1:])
	case "tui":
		// The TUI owns the terminal; logs must not hit stderr underneath it.
		if !cfg.Logging.ToFile && !cfg.Logging.Quiet {
			logging.Discard()
		}
		return tui.Run(cfg)
	case "history":
		return subcommands.RunHistory(cfg, args[1:])
	case "config":
		return subcommands.RunConfig(cfg)
	case "help", "-h", "--help":
		printHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", subcommand)
		printHelp()
		return 1
	}
}

func runAsk(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	message := fs.String("message", "", "Prompt to send to the configured backend")
	stream := fs.Bool("stream", false, "Stream tokens instead of waiting for the full response")
	resume := fs.String("resume", "", "Resume a stored conversation id before asking")
	noSave := fs.Bool("no-save", false, "Skip transcript persistence for this request")
	showTime := fs.Bool("time", false, "Show response time")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	remaining := fs.Args()
	if *message == "" && len(remaining) > 0 {
		*message = strings.Join(remaining, " ")
	}

	if strings.TrimSpace(*message) == "" {
		fmt.Fprintln(os.Stderr, "ask requires a message (--message) or positional argument")
		return 1
	}

	options := subcommands.AskOptions{
		Stream:   *stream,
		Resume:   *resume,
		NoSave:   *noSave,
		ShowTime: *showTime,
	}

	return subcommands.RunAsk(cfg, strings.TrimSpace(*message), options)
}

func runRepl(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	stream := fs.Bool("stream", true, "Stream tokens instead of waiting for the full response")
	resume := fs.String("resume", "", "Resume a stored conversation id")
	showTime := fs.Bool("time", false, "Show response time after each turn")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	options := subcommands.ReplOptions{
		Stream:   *stream,
		Resume:   *resume,
		ShowTime: *showTime,
	}

	return subcommands.RunRepl(cfg, options)
}

func printHelp() {
	fmt.Println(`fireside - local chat sessions on native inference engines

Usage:
  fireside [command] [flags]

Commands:
  ask       Run a single prompt against the configured backend
  repl      Interactive conversation mode
  tui       Full-screen terminal interface
  history   Inspect and manage stored transcripts
  config    Print the resolved configuration

Sessions persist transcripts to a local SQLite database; use
"fireside history" to list them and --resume to pick one up again.

Use "fireside [command] --help" for more information about a command.`)
}
