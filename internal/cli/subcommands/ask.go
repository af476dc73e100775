package subcommands

import (
	"fmt"
	"log"
	"os"
	"time"

	"fireside/internal/config"
)

// AskOptions capture per-invocation controls beyond CLI flags.
type AskOptions struct {
	Stream   bool
	Resume   string
	NoSave   bool
	ShowTime bool
}

// RunAsk executes a single prompt against the configured backend.
func RunAsk(cfg config.Config, message string, opts AskOptions) int {
	host, err := NewHost(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize session: %v\n", err)
		return 1
	}
	defer host.Close()

	if opts.NoSave {
		host.Store = nil
	}

	if opts.Resume != "" {
		if err := host.Resume(opts.Resume); err != nil {
			fmt.Fprintf(os.Stderr, "failed to resume conversation: %v\n", err)
			return 1
		}
	} else if err := host.StartConversation(message); err != nil {
		log.Printf("warning: could not register conversation: %v", err)
	}

	start := time.Now()

	var spinnerDone chan struct{}
	if !opts.Stream {
		spinnerDone = make(chan struct{})
		go runCLISpinner(spinnerDone, "Thinking")
	}

	stream := host.Session.Ask(message)

	if opts.Stream {
		for tok, ok := stream.Next(); ok; tok, ok = stream.Next() {
			fmt.Print(tok)
		}
	}

	final, err := stream.Completed()

	if spinnerDone != nil {
		close(spinnerDone)
		fmt.Print("\r\033[K")
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "generation error: %v\n", err)
		return 1
	}

	if opts.Stream {
		fmt.Println()
	} else {
		fmt.Println(final)
	}

	if err := host.SaveTranscript(); err != nil {
		log.Printf("warning: failed to save transcript: %v", err)
	}

	duration := time.Since(start)
	if opts.ShowTime {
		fmt.Printf("\033[90mDuration:\033[0m %s\n", duration.Truncate(time.Millisecond))
	}
	log.Printf("completed in %s", duration.Truncate(10*time.Millisecond))
	return 0
}
