// Package tui is the full-screen terminal frontend: a bubbletea program
// around one chat session, streaming tokens into a viewport and rendering
// completed turns as markdown.
package tui

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"fireside/internal/cli/subcommands"
	"fireside/internal/config"
)

// Styles define the UI theme
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C")).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 2)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			PaddingLeft(1)

	botStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C")).
			PaddingLeft(1)

	systemStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFE66D")).
			PaddingLeft(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true).
			PaddingLeft(2)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true).
			PaddingLeft(2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d3d5c"))

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#FFB86C"))

	suggestionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1a1a2e")).
			Background(lipgloss.Color("#FFB86C")).
			Padding(0, 1)

	normalSuggestionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666680")).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4a4a6a")).
			PaddingLeft(1)

	streamingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C")).
			Italic(true)
)

var placeholders = []string{
	"What's on your mind?",
	"Ask me anything...",
	"Pull up a chair.",
	"Type /help to see available commands",
	"Looking for something specific?",
}

var availableCommands = []string{
	"/help", "/config", "/clear", "/reset",
	"/system", "/conversations", "/resume", "/save",
	"/set", "/exit", "/quit",
}

type message struct {
	role     string
	content  string
	duration time.Duration
}

type tuiModel struct {
	host *subcommands.Host
	cfg  config.Config

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	messages []message
	ready    bool
	loading  bool
	thinking bool
	renderer *glamour.TermRenderer
	width    int
	height   int
	program  *tea.Program

	// Autocompletion
	suggestions     []string
	suggestionIdx   int
	showSuggestions bool

	// Menu/Popups
	menuOpen bool
	menuIdx  int
}

var menuOptions = []string{
	"Save Conversation",
	"Clear Conversation",
	"Toggle Thinking",
	"Exit fireside",
}

func initialModel(cfg config.Config, host *subcommands.Host) tuiModel {
	ta := textarea.New()
	ta.Placeholder = placeholders[rand.Intn(len(placeholders))]
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 10000

	ta.SetWidth(80)
	ta.SetHeight(5)

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	thinking := true
	if cfg.Session.AllowThinking != nil {
		thinking = *cfg.Session.AllowThinking
	}

	return tuiModel{
		host:     host,
		cfg:      cfg,
		textarea: ta,
		spinner:  s,
		renderer: renderer,
		thinking: thinking,
		messages: []message{},
	}
}

func (m tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

type streamToken struct {
	token string
}

type turnResult struct {
	final string
	err   error
	start time.Time
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.menuOpen {
			switch msg.Type {
			case tea.KeyUp:
				m.menuIdx = (m.menuIdx - 1 + len(menuOptions)) % len(menuOptions)
				return m, nil
			case tea.KeyDown:
				m.menuIdx = (m.menuIdx + 1) % len(menuOptions)
				return m, nil
			case tea.KeyEnter:
				m.menuOpen = false
				return m, m.handleMenuSelection()
			case tea.KeyEsc, tea.KeyCtrlO:
				m.menuOpen = false
				return m, nil
			}
			return m, nil
		}

		if m.showSuggestions {
			switch msg.Type {
			case tea.KeyUp:
				m.suggestionIdx--
				if m.suggestionIdx < 0 {
					m.suggestionIdx = len(m.suggestions) - 1
				}
				return m, nil
			case tea.KeyDown:
				m.suggestionIdx++
				if m.suggestionIdx >= len(m.suggestions) {
					m.suggestionIdx = 0
				}
				return m, nil
			case tea.KeyEnter, tea.KeyTab:
				if len(m.suggestions) > 0 {
					m.textarea.SetValue(m.suggestions[m.suggestionIdx] + " ")
					m.textarea.CursorEnd()
					m.showSuggestions = false
					return m, nil
				}
			case tea.KeyEsc:
				m.showSuggestions = false
				return m, nil
			}
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.loading {
				// Cooperative cancel; the running turn finishes with
				// whatever was generated so far.
				m.host.Session.StopGeneration()
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyCtrlO:
			m.menuOpen = !m.menuOpen
			m.menuIdx = 0
			return m, nil

		case tea.KeyCtrlS:
			if m.loading {
				return m, nil
			}

			userMsg := m.textarea.Value()
			if strings.TrimSpace(userMsg) == "" {
				return m, nil
			}

			low := strings.ToLower(strings.TrimSpace(userMsg))
			if handled, cmd := m.handleLocalCommand(low, userMsg); handled {
				m.textarea.Reset()
				return m, cmd
			}

			m.messages = append(m.messages, message{role: "User", content: userMsg})
			m.textarea.Reset()
			m.loading = true

			// Empty assistant message to be filled by the stream.
			m.messages = append(m.messages, message{role: "fireside", content: ""})

			m.updateViewport()

			return m, tea.Batch(
				m.spinner.Tick,
				m.runTurn(userMsg),
			)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		inputHeight := 5
		verticalMarginHeight := headerHeight + inputHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-verticalMarginHeight-4)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - verticalMarginHeight - 4
		}

		m.textarea.SetWidth(msg.Width - 6)

		r, _ := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.viewport.Width-4),
		)
		m.renderer = r
		m.updateViewport()

	case streamToken:
		m.messages[len(m.messages)-1].content += msg.token
		m.updateViewport()
		return m, nil

	case turnResult:
		m.loading = false
		if msg.err != nil {
			if m.messages[len(m.messages)-1].content == "" {
				m.messages[len(m.messages)-1].content = "Error: " + msg.err.Error()
			}
		} else {
			m.messages[len(m.messages)-1].content = msg.final
			m.messages[len(m.messages)-1].duration = time.Since(msg.start)
			if err := m.host.SaveTranscript(); err != nil {
				log.Printf("warning: failed to save transcript: %v", err)
			}
		}
		m.updateViewport()
		return m, nil

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd
	}

	m.textarea, taCmd = m.textarea.Update(msg)

	// Update autocompletion
	val := m.textarea.Value()
	if strings.HasPrefix(val, "/") {
		m.suggestions = []string{}
		for _, cmd := range availableCommands {
			if strings.HasPrefix(cmd, val) {
				m.suggestions = append(m.suggestions, cmd)
			}
		}
		if len(m.suggestions) > 0 {
			m.showSuggestions = true
			if m.suggestionIdx >= len(m.suggestions) {
				m.suggestionIdx = 0
			}
		} else {
			m.showSuggestions = false
		}
	} else {
		m.showSuggestions = false
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(taCmd, vpCmd)
}

func (m *tuiModel) handleMenuSelection() tea.Cmd {
	switch m.menuIdx {
	case 0: // Save
		if m.host.ConversationID == "" {
			m.messages = append(m.messages, message{role: "System", content: "Nothing to save yet."})
		} else if err := m.host.SaveTranscript(); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.messages = append(m.messages, message{role: "System", content: "Saved as " + m.host.ConversationID})
		}
	case 1: // Clear
		if err := m.host.Session.ResetHistory(); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.host.ConversationID = ""
			m.messages = []message{}
			m.viewport.SetContent("")
		}
	case 2: // Toggle Thinking
		m.thinking = !m.thinking
		if err := m.host.Session.SetAllowThinking(m.thinking); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.messages = append(m.messages, message{role: "System", content: fmt.Sprintf("Thinking: %v", m.thinking)})
		}
	case 3: // Exit
		return tea.Quit
	}
	m.updateViewport()
	return nil
}

func (m *tuiModel) handleLocalCommand(low, raw string) (bool, tea.Cmd) {
	if !strings.HasPrefix(low, "/") {
		return false, nil
	}

	switch {
	case low == "/clear":
		m.messages = []message{}
		m.viewport.SetContent("")
		return true, nil

	case low == "/reset":
		if err := m.host.Session.ResetHistory(); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.host.ConversationID = ""
			m.messages = append(m.messages, message{role: "System", content: "Conversation cleared."})
		}
		m.updateViewport()
		return true, nil

	case low == "/help":
		helpText := `
### Available Commands
- **/help**: Show this help message
- **/config**: Show current session configuration
- **/system <text>**: Replace the system prompt
- **/conversations**: List stored conversations
- **/resume <id>**: Resume a stored conversation
- **/save**: Save the transcript now
- **/reset**: Clear the conversation
- **/clear**: Clear the screen
- **/set <param> <value>**: Update session settings (thinking, temp)
- **exit/quit**: Close the application

Esc cancels a running generation.
`
		m.messages = append(m.messages, message{role: "System", content: helpText})
		m.updateViewport()
		return true, nil

	case low == "/config":
		confText := fmt.Sprintf(`
### Session Configuration
- **Backend**: %s
- **Context**: %d tokens
- **Thinking**: %v
- **Conversation**: %s
`, m.cfg.Engine.Backend, m.cfg.Engine.ContextSize, m.thinking, orNone(m.host.ConversationID))
		m.messages = append(m.messages, message{role: "System", content: confText})
		m.updateViewport()
		return true, nil

	case low == "/conversations":
		m.messages = append(m.messages, message{role: "System", content: m.listConversations()})
		m.updateViewport()
		return true, nil

	case strings.HasPrefix(low, "/resume "):
		id := strings.TrimSpace(raw[len("/resume "):])
		if err := m.host.Resume(id); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.messages = append(m.messages, message{role: "System", content: "Resumed " + id})
			m.reloadTranscript()
		}
		m.updateViewport()
		return true, nil

	case strings.HasPrefix(low, "/system "):
		prompt := strings.TrimSpace(raw[len("/system "):])
		if err := m.host.Session.SetSystemPrompt(prompt); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.messages = append(m.messages, message{role: "System", content: "System prompt updated."})
		}
		m.updateViewport()
		return true, nil

	case low == "/save":
		if m.host.ConversationID == "" {
			m.messages = append(m.messages, message{role: "System", content: "Nothing to save yet."})
		} else if err := m.host.SaveTranscript(); err != nil {
			m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		} else {
			m.messages = append(m.messages, message{role: "System", content: "Saved as " + m.host.ConversationID})
		}
		m.updateViewport()
		return true, nil

	case strings.HasPrefix(low, "/set "):
		parts := strings.SplitN(raw[len("/set "):], " ", 2)
		if len(parts) < 2 {
			m.messages = append(m.messages, message{role: "System", content: "Usage: /set <param> <value>"})
		} else {
			m.messages = append(m.messages, message{role: "System", content: m.setParam(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))})
		}
		m.updateViewport()
		return true, nil

	case low == "/exit" || low == "/quit" || low == "exit" || low == "quit":
		return true, tea.Quit
	}

	return false, nil
}

func (m *tuiModel) setParam(param, value string) string {
	lowerVal := strings.ToLower(value)
	isTrue := lowerVal == "true" || lowerVal == "on" || lowerVal == "1" || lowerVal == "yes"

	switch strings.ToLower(param) {
	case "thinking":
		m.thinking = isTrue
		if err := m.host.Session.SetAllowThinking(isTrue); err != nil {
			return "Error: " + err.Error()
		}
		return fmt.Sprintf("Thinking set to %v", isTrue)
	case "temp", "temperature":
		var val float64
		if _, err := fmt.Sscanf(value, "%g", &val); err != nil || val < 0 {
			return "Usage: /set temp <number>"
		}
		sampler := m.cfg.SamplerSettings()
		sampler.Temperature = val
		if err := m.host.Session.SetSamplerConfig(sampler); err != nil {
			return "Error: " + err.Error()
		}
		return fmt.Sprintf("Temperature set to %g", val)
	default:
		return "Unknown parameter: " + param
	}
}

func (m *tuiModel) listConversations() string {
	if m.host.Store == nil {
		return "Transcript persistence is disabled."
	}
	convs, err := m.host.Store.Conversations(20)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(convs) == 0 {
		return "No stored conversations."
	}
	var sb strings.Builder
	sb.WriteString("Stored conversations:\n")
	for _, c := range convs {
		sb.WriteString(fmt.Sprintf("- **%s** %s (%s)\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return sb.String()
}

// reloadTranscript replaces the on-screen messages with the session history
// after a resume.
func (m *tuiModel) reloadTranscript() {
	msgs, err := m.host.Session.GetHistory()
	if err != nil {
		m.messages = append(m.messages, message{role: "System", content: "Error: " + err.Error()})
		return
	}
	m.messages = m.messages[:0]
	for _, msg := range msgs {
		switch msg.Role {
		case "user":
			m.messages = append(m.messages, message{role: "User", content: msg.Content})
		case "assistant":
			if msg.Content != "" {
				m.messages = append(m.messages, message{role: "fireside", content: msg.Content})
			}
		}
	}
}

func (m *tuiModel) updateViewport() {
	var sb strings.Builder

	for i, msg := range m.messages {
		switch msg.role {
		case "System":
			sb.WriteString(systemStyle.Render("SYSTEM") + "\n")
			sb.WriteString(msg.content + "\n\n")

		case "User":
			sb.WriteString(userStyle.Render("YOU") + "\n")
			sb.WriteString(msg.content + "\n\n")

		case "fireside":
			sb.WriteString(botStyle.Render("FIRESIDE") + "\n")

			rendered := msg.content
			// Markdown-render only completed turns; partial streams stay raw.
			if msg.content != "" && !(m.loading && i == len(m.messages)-1) {
				r, err := m.renderer.Render(msg.content)
				if err == nil {
					rendered = r
				}
			}
			sb.WriteString(rendered)

			if i == len(m.messages)-1 && !m.loading && msg.duration > 0 {
				sb.WriteString("\n" + timeStyle.Render(msg.duration.Truncate(time.Millisecond).String()) + "\n")
			}
			sb.WriteString("\n")

		default:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true).Render(msg.role) + "\n")
			sb.WriteString(msg.content + "\n\n")
		}
	}

	if m.loading {
		sb.WriteString("\n" + m.spinner.View() + streamingStyle.Render(" Generating... (Esc to cancel)"))
	}

	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m tuiModel) runTurn(input string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		if m.host.ConversationID == "" {
			if err := m.host.StartConversation(input); err != nil {
				log.Printf("warning: could not register conversation: %v", err)
			}
		}

		stream := m.host.Session.Ask(input)
		for tok, ok := stream.Next(); ok; tok, ok = stream.Next() {
			if m.program != nil {
				m.program.Send(streamToken{token: tok})
			}
		}

		final, err := stream.Completed()
		return turnResult{final: final, err: err, start: start}
	}
}

func (m tuiModel) View() string {
	if !m.ready {
		return "\n  Lighting the fire..."
	}

	// Header
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(" fireside "),
		subtitleStyle.Render("Local Chat Sessions"),
	)

	// Main viewport
	viewport := borderStyle.Render(m.viewport.View())

	// Input area with suggestions
	inputArea := m.textarea.View()
	if m.showSuggestions && len(m.suggestions) > 0 {
		var suggBuilder strings.Builder
		for i, s := range m.suggestions {
			if i == m.suggestionIdx {
				suggBuilder.WriteString(suggestionStyle.Render(s) + "\n")
			} else {
				suggBuilder.WriteString(normalSuggestionStyle.Render(s) + "\n")
			}
		}
		inputArea = lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#FFB86C")).
				Padding(0, 1).
				Render(suggBuilder.String()),
			inputArea,
		)
	}

	input := inputBorderStyle.Render(inputArea)

	mainView := fmt.Sprintf("%s\n%s\n%s", header, viewport, input)

	// Menu overlay
	if m.menuOpen {
		var menuBuilder strings.Builder
		menuBuilder.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB86C")).Render("OPTIONS") + "\n\n")
		for i, opt := range menuOptions {
			if i == m.menuIdx {
				menuBuilder.WriteString(lipgloss.NewStyle().
					Background(lipgloss.Color("#FFB86C")).
					Foreground(lipgloss.Color("#1a1a2e")).
					Bold(true).
					Padding(0, 1).
					Render("> "+opt) + "\n")
			} else {
				menuBuilder.WriteString(lipgloss.NewStyle().
					Foreground(lipgloss.Color("#a0a0b0")).
					Padding(0, 1).
					Render("  "+opt) + "\n")
			}
		}

		menuPopup := lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#FFB86C")).
			Padding(1, 2).
			Render(menuBuilder.String())

		mainView = lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			menuPopup,
			lipgloss.WithWhitespaceChars(" "),
			lipgloss.WithWhitespaceForeground(lipgloss.Color("#0a0a14")),
		)
	}

	// Footer help line
	thinkStatus := "off"
	if m.thinking {
		thinkStatus = "on"
	}
	help := helpStyle.Render(fmt.Sprintf("Ctrl+S Send | Ctrl+O Menu | Esc Cancel | /help Commands | Thinking: %s", thinkStatus))

	return mainView + "\n" + help
}

// Run executes the full-screen TUI mode.
func Run(cfg config.Config) int {
	host, err := subcommands.NewHost(cfg, nil)
	if err != nil {
		fmt.Printf("failed to initialize session: %v\n", err)
		return 1
	}
	defer host.Close()

	m := initialModel(cfg, host)
	p := tea.NewProgram(
		&m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	m.program = p

	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		return 1
	}
	return 0
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
