package consensus

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// Summarizer renders human summaries of persisted conversations.
type Summarizer struct {
	store core.ConversationStore
}

// NewSummarizer creates a summarizer reading from store.
func NewSummarizer(store core.ConversationStore) *Summarizer {
	return &Summarizer{store: store}
}

// GenerateSummary renders topic, status, iteration count, per-participant
// agreement and the last few exchanged messages of a conversation.
func (s *Summarizer) GenerateSummary(ctx context.Context, conversationID string) (string, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	participants, err := s.store.ListParticipants(ctx, conversationID)
	if err != nil {
		return "", err
	}
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return RenderSummary(conv, participants, messages), nil
}

// RenderSummary formats a summary from already loaded records.
func RenderSummary(conv *core.Conversation, participants []*core.Participant, messages []*core.Message) string {
	names := make(map[string]string, len(participants))
	for _, p := range participants {
		names[p.UserID] = p.Name()
	}

	var sb strings.Builder
	sb.WriteString("Conversation Summary\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n", conv.Topic)
	fmt.Fprintf(&sb, "Status: %s\n", conv.Status)
	fmt.Fprintf(&sb, "Iterations: %d/%d\n\n", conv.CurrentIteration, conv.MaxIterations)
	sb.WriteString("Participants:\n")
	for _, p := range participants {
		mark := "❌ Did not agree"
		if p.HasAgreed {
			mark = "✅ Agreed"
		}
		fmt.Fprintf(&sb, "  - %s: %s\n", p.Name(), mark)
	}

	sb.WriteString("\nFinal Messages:\n")
	visible := core.VisibleMessages(messages)
	if len(visible) > core.SummaryMessageCount {
		visible = visible[len(visible)-core.SummaryMessageCount:]
	}
	for _, m := range visible {
		sender := names[m.SenderID]
		if sender == "" {
			sender = m.SenderID
		}
		fmt.Fprintf(&sb, "  [%s]: %s\n", sender, preview(m.Content, core.SummaryPreviewLength))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
