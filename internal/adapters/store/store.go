// Package store provides ConversationStore implementations: SQLite (the
// default), JSON files, Redis and an in-memory store for tests and
// ephemeral deployments.
package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// prepareMessage fills the generated fields of a message before insert.
func prepareMessage(msg *core.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}

func prepareParticipant(p *core.Participant) {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
}

func validateConversation(conv *core.Conversation) error {
	if strings.TrimSpace(conv.ID) == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "conversation id is required")
	}
	if conv.Status == "" {
		conv.Status = core.StatusActive
	}
	if !conv.Status.Valid() {
		return core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("unknown status %q", conv.Status))
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	return nil
}

func duplicateParticipant(conversationID, userID string) error {
	return core.ErrConflict(core.CodeDuplicateParticipant,
		fmt.Sprintf("user %s already participates in conversation %s", userID, conversationID))
}

func conversationNotFound(id string) error {
	return core.ErrNotFound("conversation", id)
}

func participantNotFound(conversationID, userID string) error {
	return core.ErrNotFound("participant", conversationID+"/"+userID)
}
