package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/service/conversation"
)

var (
	colorActive    = lipgloss.Color("#06B6D4")
	colorConsensus = lipgloss.Color("#10B981")
	colorMaxIter   = lipgloss.Color("#F59E0B")
	colorCancelled = lipgloss.Color("#9CA3AF")

	headerStyle = lipgloss.NewStyle().Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
)

func statusStyle(s core.ConversationStatus) lipgloss.Style {
	switch s {
	case core.StatusActive:
		return lipgloss.NewStyle().Foreground(colorActive).Bold(true)
	case core.StatusConsensusReached:
		return lipgloss.NewStyle().Foreground(colorConsensus)
	case core.StatusMaxIterationsReached:
		return lipgloss.NewStyle().Foreground(colorMaxIter)
	default:
		return lipgloss.NewStyle().Foreground(colorCancelled)
	}
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Inspect stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations, newest first",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print the transcript of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var listActiveOnly bool

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsListCmd.Flags().BoolVar(&listActiveOnly, "active", false, "Only show active conversations")
}

func runConversationsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	convs, err := st.ListConversations(cmd.Context())
	if err != nil {
		return err
	}
	writeConversationList(cmd.OutOrStdout(), convs, listActiveOnly)
	return nil
}

func writeConversationList(w io.Writer, convs []*core.Conversation, activeOnly bool) {
	shown := 0
	for _, c := range convs {
		if activeOnly && c.Status != core.StatusActive {
			continue
		}
		if shown == 0 {
			fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-22s  %-7s  %s", "ID", "STATUS", "ROUNDS", "TOPIC")))
		}
		fmt.Fprintf(w, "%s  %s  %-7s  %s\n",
			idStyle.Render(fmt.Sprintf("%-36s", c.ID)),
			statusStyle(c.Status).Render(fmt.Sprintf("%-22s", c.Status.Label())),
			fmt.Sprintf("%d/%d", c.CurrentIteration, c.MaxIterations),
			oneLine(c.Topic, 60),
		)
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(w, "No conversations found.")
	}
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	text, err := renderTranscript(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func renderTranscript(ctx context.Context, st core.ConversationStore, id string) (string, error) {
	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		return "", err
	}
	participants, err := st.ListParticipants(ctx, id)
	if err != nil {
		return "", err
	}
	messages, err := st.ListMessages(ctx, id)
	if err != nil {
		return "", err
	}
	return conversation.FormatTranscript(conv, participants, messages), nil
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}
