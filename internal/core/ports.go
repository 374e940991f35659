package core

import "context"

// =============================================================================
// Persistence Port
// =============================================================================

// ConversationStore persists conversations, participants and messages.
// Implementations must be safe for concurrent use across conversations.
type ConversationStore interface {
	// CreateConversation inserts a new ACTIVE conversation.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation returns the conversation or a not-found error.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns every conversation, newest first.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// UpdateStatus persists a terminal status and exit reason.
	// Moving out of a terminal state fails with CodeInvalidTransition.
	UpdateStatus(ctx context.Context, id string, status ConversationStatus, exitReason string) error

	// IncrementIteration bumps current_iteration and returns the new value.
	IncrementIteration(ctx context.Context, id string) (int, error)

	// AddParticipant registers a participant; duplicates fail with
	// CodeDuplicateParticipant.
	AddParticipant(ctx context.Context, p *Participant) error

	// ListParticipants returns participants ordered by join time.
	ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error)

	// MarkAgreed sets has_agreed for one participant.
	MarkAgreed(ctx context.Context, conversationID, userID string) error

	// AllAgreed reports whether every participant has agreed.
	AllAgreed(ctx context.Context, conversationID string) (bool, error)

	// AppendMessage stores a message; ID and CreatedAt are filled when empty.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns messages in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Close releases resources held by the store.
	Close() error
}

// PendingParticipants returns the participants that have not agreed yet,
// preserving join order.
func PendingParticipants(ctx context.Context, store ConversationStore, conversationID string) ([]*Participant, error) {
	all, err := store.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	pending := make([]*Participant, 0, len(all))
	for _, p := range all {
		if !p.HasAgreed {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// =============================================================================
// Reasoning Port
// =============================================================================

// Reasoner produces an agent's free-text reply for a prompt.
type Reasoner interface {
	Invoke(ctx context.Context, userID, prompt string) (string, error)
}

// ReasonerFunc adapts a function to the Reasoner interface.
type ReasonerFunc func(ctx context.Context, userID, prompt string) (string, error)

// Invoke calls f.
func (f ReasonerFunc) Invoke(ctx context.Context, userID, prompt string) (string, error) {
	return f(ctx, userID, prompt)
}

// =============================================================================
// Delivery Port
// =============================================================================

// Messenger pushes text to humans. Failures are reported but the engine
// never lets them affect conversation state.
type Messenger interface {
	// Send delivers text to an already resolved address.
	Send(ctx context.Context, address, text string) error

	// ResolveAddress maps a user id to a delivery address. ok is false when
	// the user is unknown.
	ResolveAddress(ctx context.Context, userID string) (address string, ok bool, err error)
}

// AddressSuggester is an optional Messenger capability: it proposes known
// user ids close to one that did not resolve.
type AddressSuggester interface {
	SuggestUsers(userID string, limit int) []string
}
