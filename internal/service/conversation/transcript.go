package conversation

import (
	"fmt"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

const transcriptTimeLayout = "2006-01-02 15:04:05"

// FormatTranscript renders the human-readable transcript delivered when a
// conversation ends. Private instructions are never included.
func FormatTranscript(conv *core.Conversation, participants []*core.Participant, messages []*core.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", conv.Topic)
	fmt.Fprintf(&sb, "Status: %s\n", conv.Status)
	fmt.Fprintf(&sb, "Iterations: %d/%d\n", conv.CurrentIteration, conv.MaxIterations)
	fmt.Fprintf(&sb, "Created: %s\n", conv.CreatedAt.Format(transcriptTimeLayout))
	if conv.ExitReason != "" {
		fmt.Fprintf(&sb, "Exit reason: %s\n", conv.ExitReason)
	}

	sb.WriteString("\nParticipants:\n")
	for _, p := range participants {
		marker := ""
		if p.HasAgreed {
			marker = " (agreed)"
		}
		fmt.Fprintf(&sb, "  - %s%s\n", p.Name(), marker)
	}

	names := make(map[string]string, len(participants))
	for _, p := range participants {
		names[p.UserID] = p.Name()
	}

	sb.WriteString("\nMessages:\n")
	round := -1
	for _, m := range core.VisibleMessages(messages) {
		if m.Iteration != round {
			round = m.Iteration
			fmt.Fprintf(&sb, "\n  -- Round %d --\n", round)
		}
		sender := names[m.SenderID]
		if sender == "" {
			sender = m.SenderID
		}
		fmt.Fprintf(&sb, "  [%s]: %s\n", sender, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
