package subcommands

import (
	"flag"
	"fmt"
	"os"

	"fireside/internal/config"
	"fireside/internal/history"
)

// RunHistory provides transcript inspection and management commands.
func RunHistory(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	limit := fs.Int("n", 20, "Number of conversations to list")
	show := fs.String("show", "", "Print the transcript of a conversation id")
	remove := fs.String("delete", "", "Delete a conversation id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	store, err := history.NewStore(cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open history store: %v\n", err)
		return 1
	}
	defer store.Close()

	if *show != "" {
		return showTranscript(store, *show)
	}
	if *remove != "" {
		if err := store.DeleteConversation(*remove); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete conversation: %v\n", err)
			return 1
		}
		fmt.Printf("Deleted %s\n", *remove)
		return 0
	}

	convs, err := store.Conversations(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list conversations: %v\n", err)
		return 1
	}
	if len(convs) == 0 {
		fmt.Println("No stored conversations yet")
		return 0
	}

	fmt.Printf("=== Last %d Conversations ===\n\n", len(convs))
	for _, c := range convs {
		fmt.Printf("%s  %s\n", c.ID, c.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("    %s\n", c.Title)
	}
	return 0
}

func showTranscript(store *history.Store, id string) int {
	msgs, err := store.Messages(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load transcript: %v\n", err)
		return 1
	}
	if len(msgs) == 0 {
		fmt.Println("Transcript is empty or the id is unknown")
		return 0
	}

	for _, m := range msgs {
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			content = fmt.Sprintf("[%d tool call(s)]", len(m.ToolCalls))
		}
		fmt.Printf("[%s] %s\n", formatRole(string(m.Role)), content)
	}
	return 0
}
