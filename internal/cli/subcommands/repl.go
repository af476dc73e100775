package subcommands

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fireside/internal/config"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorBlue   = "\033[34m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

const logo = `
  ███████╗██╗██████╗ ███████╗███████╗██╗██████╗ ███████╗
  ██╔════╝██║██╔══██╗██╔════╝██╔════╝██║██╔══██╗██╔════╝
  █████╗  ██║██████╔╝█████╗  ███████╗██║██║  ██║█████╗
  ██╔══╝  ██║██╔══██╗██╔══╝  ╚════██║██║██║  ██║██╔══╝
  ██║     ██║██║  ██║███████╗███████║██║██████╔╝███████╗
  ╚═╝     ╚═╝╚═╝  ╚═╝╚══════╝╚══════╝╚═╝╚═════╝ ╚══════╝
`

// ReplOptions capture per-invocation controls beyond CLI flags.
type ReplOptions struct {
	Stream   bool
	Resume   string
	ShowTime bool
}

// RunRepl executes the interactive conversation mode (traditional ANSI
// interface).
func RunRepl(cfg config.Config, opts ReplOptions) int {
	host, err := NewHost(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize session: %v\n", err)
		return 1
	}
	defer host.Close()

	if opts.Resume != "" {
		if err := host.Resume(opts.Resume); err != nil {
			fmt.Fprintf(os.Stderr, "failed to resume conversation: %v\n", err)
			return 1
		}
		fmt.Printf("%sResumed conversation %s%s\n", colorGray, opts.Resume, colorReset)
	}

	fmt.Print(colorCyan + logo + colorReset)
	fmt.Printf("%sLocal chat sessions, by the fire%s\n\n", colorCyan, colorReset)
	fmt.Printf("%sfireside Interactive Mode%s\n", colorBold, colorReset)
	fmt.Printf("%sType 'exit' to quit | '/help' for commands%s\n", colorGray, colorReset)
	fmt.Printf("%sBackend: %s%s\n", colorGray, cfg.Engine.Backend, colorReset)
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Printf("%sYou: %s", colorBlue+colorBold, colorReset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			return 1
		}

		message := strings.TrimSpace(input)
		// Support multi-line input if ending with backslash
		for strings.HasSuffix(message, "\\") {
			message = strings.TrimSuffix(message, "\\")
			fmt.Printf("%s...  %s", colorGray, colorReset)
			nextPart, _ := reader.ReadString('\n')
			message += strings.TrimSpace(nextPart)
		}

		if message == "" {
			continue
		}

		if strings.HasPrefix(message, "/") {
			if handled := handleCommand(host, message, &opts); handled {
				continue
			}
		}

		lowerMsg := strings.ToLower(message)
		if lowerMsg == "exit" || lowerMsg == "quit" || lowerMsg == "/exit" || lowerMsg == "/quit" || lowerMsg == "/bye" {
			if err := host.SaveTranscript(); err != nil {
				log.Printf("warning: failed to save transcript: %v", err)
			}
			fmt.Printf("\n%sGoodbye!%s\n", colorCyan, colorReset)
			return 0
		}

		if host.ConversationID == "" {
			if err := host.StartConversation(message); err != nil {
				log.Printf("warning: could not register conversation: %v", err)
			}
		}

		start := time.Now()

		spinnerDone := make(chan struct{})
		go runCLISpinner(spinnerDone, "Thinking")

		stream := host.Session.Ask(message)

		var printedHeader bool
		if opts.Stream {
			for tok, ok := stream.Next(); ok; tok, ok = stream.Next() {
				if !printedHeader {
					close(spinnerDone)
					spinnerDone = nil
					fmt.Print("\r\033[K")
					fmt.Printf("%sfireside: %s", colorGreen+colorBold, colorReset)
					printedHeader = true
				}
				fmt.Print(tok)
			}
		}

		final, err := stream.Completed()

		if spinnerDone != nil {
			close(spinnerDone)
			fmt.Print("\r\033[K")
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "\r%sgeneration error: %v%s\n", colorRed, err, colorReset)
			continue
		}

		if opts.Stream {
			fmt.Println()
		} else {
			fmt.Printf("%sfireside: %s", colorGreen+colorBold, colorReset)
			fmt.Println(final)
		}

		if err := host.SaveTranscript(); err != nil {
			log.Printf("warning: failed to save transcript: %v", err)
		}

		duration := time.Since(start)
		if opts.ShowTime {
			fmt.Printf("%stook %s%s\n", colorGray, duration.Truncate(10*time.Millisecond), colorReset)
		}
		fmt.Println()
	}
}

// handleCommand processes special REPL commands. Returns true when the input
// was a command and should not reach the model.
func handleCommand(host *Host, cmd string, opts *ReplOptions) bool {
	lowerCmd := strings.ToLower(cmd)

	if strings.HasPrefix(lowerCmd, "/system ") {
		prompt := strings.TrimSpace(cmd[len("/system "):])
		if err := host.Session.SetSystemPrompt(prompt); err != nil {
			fmt.Printf(colorRed+"failed to set system prompt: %v"+colorReset+"\n", err)
		} else {
			fmt.Printf("%sSystem prompt updated.%s\n", colorCyan, colorReset)
		}
		return true
	}

	if strings.HasPrefix(lowerCmd, "/resume ") {
		id := strings.TrimSpace(cmd[len("/resume "):])
		if err := host.Resume(id); err != nil {
			fmt.Printf(colorRed+"failed to resume: %v"+colorReset+"\n", err)
		} else {
			fmt.Printf("%sResumed conversation %s%s\n", colorCyan, id, colorReset)
		}
		return true
	}

	if strings.HasPrefix(lowerCmd, "/set ") {
		parts := strings.SplitN(cmd[len("/set "):], " ", 2)
		if len(parts) < 2 {
			fmt.Println("Usage: /set <param> <value>")
			return true
		}
		handleSetParam(host, opts, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		return true
	}

	switch lowerCmd {
	case "/help":
		printReplHelp()
		return true
	case "/config":
		fmt.Printf("\n%s--- Current Session ---%s\n", colorBold, colorReset)
		fmt.Printf("  %sBackend:%s       %s\n", colorCyan, colorReset, host.Config.Engine.Backend)
		fmt.Printf("  %sContext:%s       %d tokens\n", colorCyan, colorReset, host.Config.Engine.ContextSize)
		fmt.Printf("  %sStream:%s        %v\n", colorCyan, colorReset, opts.Stream)
		fmt.Printf("  %sConversation:%s  %s\n", colorCyan, colorReset, orNone(host.ConversationID))
		return true
	case "/history":
		printHistory(host)
		return true
	case "/conversations":
		printConversations(host, 20)
		return true
	case "/reset":
		if err := host.Session.ResetHistory(); err != nil {
			fmt.Printf(colorRed+"failed to reset: %v"+colorReset+"\n", err)
		} else {
			host.ConversationID = ""
			fmt.Printf("%sConversation cleared.%s\n", colorCyan, colorReset)
		}
		return true
	case "/save":
		if host.ConversationID == "" {
			fmt.Println("Nothing to save yet.")
			return true
		}
		if err := host.SaveTranscript(); err != nil {
			fmt.Printf(colorRed+"failed to save: %v"+colorReset+"\n", err)
		} else {
			fmt.Printf("%sSaved as %s%s\n", colorCyan, host.ConversationID, colorReset)
		}
		return true
	case "/clear":
		fmt.Print("\033[H\033[2J")
		return true
	case "/exit", "/quit", "/bye":
		// Handled by the main loop's exit check.
		return false
	default:
		fmt.Printf(colorYellow+"Unknown command: %s (type /help for available commands)"+colorReset+"\n", cmd)
		return true
	}
}

func handleSetParam(host *Host, opts *ReplOptions, param, value string) {
	lowerVal := strings.ToLower(value)
	isTrue := lowerVal == "true" || lowerVal == "on" || lowerVal == "1" || lowerVal == "yes"
	isFalse := lowerVal == "false" || lowerVal == "off" || lowerVal == "0" || lowerVal == "no"

	switch strings.ToLower(param) {
	case "stream":
		if isTrue {
			opts.Stream = true
		} else if isFalse {
			opts.Stream = false
		}
		fmt.Printf("Param %sStream%s set to %v\n", colorCyan, colorReset, opts.Stream)
	case "time":
		if isTrue {
			opts.ShowTime = true
		} else if isFalse {
			opts.ShowTime = false
		}
		fmt.Printf("Param %sShowTime%s set to %v\n", colorCyan, colorReset, opts.ShowTime)
	case "thinking":
		if !isTrue && !isFalse {
			fmt.Println("Usage: /set thinking on|off")
			return
		}
		if err := host.Session.SetAllowThinking(isTrue); err != nil {
			fmt.Printf(colorRed+"failed: %v"+colorReset+"\n", err)
			return
		}
		fmt.Printf("Param %sThinking%s set to %v\n", colorCyan, colorReset, isTrue)
	case "temp", "temperature":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil || val < 0 {
			fmt.Println("Usage: /set temp <number>")
			return
		}
		sampler := host.Config.SamplerSettings()
		sampler.Temperature = val
		if err := host.Session.SetSamplerConfig(sampler); err != nil {
			fmt.Printf(colorRed+"failed: %v"+colorReset+"\n", err)
			return
		}
		fmt.Printf("Param %sTemperature%s set to %g\n", colorCyan, colorReset, val)
	default:
		fmt.Printf(colorYellow+"Unknown parameter: %s"+colorReset+"\n", param)
	}
}

func printReplHelp() {
	fmt.Printf("\n%sAvailable Commands:%s\n", colorBold, colorReset)
	fmt.Printf("  %s/help%s            Show this help message\n", colorCyan, colorReset)
	fmt.Printf("  %s/config%s          Show session configuration\n", colorCyan, colorReset)
	fmt.Printf("  %s/set <p> <v>%s     Set session parameter (stream, time, thinking, temp)\n", colorCyan, colorReset)
	fmt.Printf("  %s/system <text>%s   Replace the system prompt\n", colorCyan, colorReset)
	fmt.Printf("  %s/history%s         Print the current conversation\n", colorCyan, colorReset)
	fmt.Printf("  %s/conversations%s   List stored conversations\n", colorCyan, colorReset)
	fmt.Printf("  %s/resume <id>%s     Resume a stored conversation\n", colorCyan, colorReset)
	fmt.Printf("  %s/save%s            Save the transcript now\n", colorCyan, colorReset)
	fmt.Printf("  %s/reset%s           Clear the conversation\n", colorCyan, colorReset)
	fmt.Printf("  %s/clear%s           Clear the terminal screen\n", colorCyan, colorReset)
	fmt.Printf("  %s/exit%s, %s/quit%s     Exit\n", colorCyan, colorReset, colorCyan, colorReset)

	fmt.Printf("\n%sFlags (set at startup):%s\n", colorBold, colorReset)
	fmt.Println("  --stream       Stream tokens as they're generated")
	fmt.Println("  --resume <id>  Resume a stored conversation")
	fmt.Println("  --time         Show response time after each turn")
}

func printHistory(host *Host) {
	msgs, err := host.Session.GetHistory()
	if err != nil {
		fmt.Printf(colorRed+"failed to read history: %v"+colorReset+"\n", err)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	fmt.Println()
	for _, m := range msgs {
		label := formatRole(string(m.Role))
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			content = fmt.Sprintf("[%d tool call(s)]", len(m.ToolCalls))
		}
		fmt.Printf("%s%s:%s %s\n", colorCyan, label, colorReset, content)
	}
	fmt.Println()
}

func printConversations(host *Host, limit int) {
	if host.Store == nil {
		fmt.Println("Transcript persistence is disabled.")
		return
	}
	convs, err := host.Store.Conversations(limit)
	if err != nil {
		fmt.Printf(colorRed+"failed to list conversations: %v"+colorReset+"\n", err)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No stored conversations.")
		return
	}
	fmt.Printf("\n%sStored conversations:%s\n", colorBold, colorReset)
	for _, c := range convs {
		fmt.Printf("  %s%s%s  %s  %s(%s)%s\n",
			colorCyan, c.ID, colorReset, c.Title,
			colorGray, c.UpdatedAt.Format("2006-01-02 15:04"), colorReset)
	}
	fmt.Println()
}

func formatRole(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	case "tool":
		return "Tool"
	default:
		return role
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func runCLISpinner(done chan struct{}, message string) {
	spinnerChars := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			return
		default:
			fmt.Printf("\r%s%s %s...%s", colorCyan, spinnerChars[i], message, colorReset)
			i = (i + 1) % len(spinnerChars)
			time.Sleep(100 * time.Millisecond)
		}
	}
}
