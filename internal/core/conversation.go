package core

import (
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle status of a persisted conversation.
type ConversationStatus string

const (
	StatusActive               ConversationStatus = "active"
	StatusConsensusReached     ConversationStatus = "consensus_reached"
	StatusMaxIterationsReached ConversationStatus = "max_iterations_reached"
	StatusCancelled            ConversationStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ConversationStatus) IsTerminal() bool {
	switch s {
	case StatusConsensusReached, StatusMaxIterationsReached, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	return s == StatusActive || s.IsTerminal()
}

// Label returns the human readable label used in termination messages.
func (s ConversationStatus) Label() string {
	switch s {
	case StatusConsensusReached:
		return "Consensus reached"
	case StatusMaxIterationsReached:
		return "Max iterations reached"
	case StatusCancelled:
		return "Cancelled"
	case StatusActive:
		return "Active"
	default:
		return "Ended"
	}
}

// CanTransitionTo reports whether moving from s to next is legal.
// ACTIVE may move to exactly one terminal state; terminal states are final.
func (s ConversationStatus) CanTransitionTo(next ConversationStatus) bool {
	return s == StatusActive && next.IsTerminal()
}

// ValidateTransition returns a state error when the transition is illegal.
func ValidateTransition(from, to ConversationStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrState(CodeInvalidTransition,
			fmt.Sprintf("cannot move conversation from %s to %s", from, to))
	}
	return nil
}

// Conversation is the persisted record of a multi-agent discussion.
type Conversation struct {
	ID               string             `json:"id"`
	CreatorID        string             `json:"creator_id"`
	Topic            string             `json:"topic"`
	MaxIterations    int                `json:"max_iterations"`
	CurrentIteration int                `json:"current_iteration"`
	Status           ConversationStatus `json:"status"`
	ExitReason       string             `json:"exit_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Participant is an agent taking part in a conversation.
type Participant struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	HasAgreed      bool      `json:"has_agreed"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Name returns the display name, falling back to the user id.
func (p *Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.UserID
}

// Message is a single persisted conversation entry.
// Private instructions come from an agent's owner and are never shown to
// other agents nor rendered in transcripts.
type Message struct {
	ID                   string    `json:"id"`
	ConversationID       string    `json:"conversation_id"`
	SenderID             string    `json:"sender_id"`
	Content              string    `json:"content"`
	Iteration            int       `json:"iteration"`
	IsPrivateInstruction bool      `json:"is_private_instruction"`
	CreatedAt            time.Time `json:"created_at"`
}

// VisibleMessages filters out private instructions, preserving order.
func VisibleMessages(msgs []*Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsPrivateInstruction {
			out = append(out, m)
		}
	}
	return out
}

// InstructionsFrom returns the private instruction texts sent by userID.
func InstructionsFrom(msgs []*Message, userID string) []string {
	var out []string
	for _, m := range msgs {
		if m.IsPrivateInstruction && m.SenderID == userID {
			out = append(out, m.Content)
		}
	}
	return out
}
