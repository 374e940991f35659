package events

// Event type constants for conversation events.
const (
	TypeConversationCreated    = "conversation_created"
	TypeInstructionReceived    = "instruction_received"
	TypeParticipantAdded       = "participant_added"
	TypeConversationStarted    = "conversation_started"
	TypeRoundStarted           = "round_started"
	TypeAgentReplied           = "agent_replied"
	TypeAgentFailed            = "agent_failed"
	TypeAgentAgreed            = "agent_agreed"
	TypeParametersUpdated      = "parameters_updated"
	TypeClarificationRequested = "clarification_requested"
	TypeClarificationResolved  = "clarification_resolved"
	TypeConversationEnded      = "conversation_ended"
	TypeConversationFailed     = "conversation_failed"
)

// Clarification outcomes.
const (
	ClarificationAnswered = "answered"
	ClarificationTimedOut = "timeout"
)

// ConversationCreatedEvent is emitted when a conversation is persisted.
type ConversationCreatedEvent struct {
	BaseEvent
	Topic         string   `json:"topic"`
	CreatorID     string   `json:"creator_id"`
	Participants  []string `json:"participants"`
	MaxIterations int      `json:"max_iterations"`
}

func NewConversationCreatedEvent(conversationID, topic, creatorID string, participants []string, maxIterations int) ConversationCreatedEvent {
	return ConversationCreatedEvent{
		BaseEvent:     NewBaseEvent(TypeConversationCreated, conversationID),
		Topic:         topic,
		CreatorID:     creatorID,
		Participants:  participants,
		MaxIterations: maxIterations,
	}
}

// InstructionReceivedEvent is emitted when an owner instructs an agent.
// The instruction text is private and never carried on the bus.
type InstructionReceivedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Awaiting int    `json:"awaiting"`
}

func NewInstructionReceivedEvent(conversationID, userID string, awaiting int) InstructionReceivedEvent {
	return InstructionReceivedEvent{
		BaseEvent: NewBaseEvent(TypeInstructionReceived, conversationID),
		UserID:    userID,
		Awaiting:  awaiting,
	}
}

// ParticipantAddedEvent is emitted when a user joins mid-conversation.
type ParticipantAddedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

func NewParticipantAddedEvent(conversationID, userID string) ParticipantAddedEvent {
	return ParticipantAddedEvent{
		BaseEvent: NewBaseEvent(TypeParticipantAdded, conversationID),
		UserID:    userID,
	}
}

// ConversationStartedEvent is emitted when the rounds begin.
type ConversationStartedEvent struct {
	BaseEvent
	Ready      []string `json:"ready"`
	Excluded   []string `json:"excluded,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
}

func NewConversationStartedEvent(conversationID string, ready, excluded, parameters []string) ConversationStartedEvent {
	return ConversationStartedEvent{
		BaseEvent:  NewBaseEvent(TypeConversationStarted, conversationID),
		Ready:      ready,
		Excluded:   excluded,
		Parameters: parameters,
	}
}

// RoundStartedEvent marks the start of a discussion round.
type RoundStartedEvent struct {
	BaseEvent
	Round         int `json:"round"`
	MaxIterations int `json:"max_iterations"`
}

func NewRoundStartedEvent(conversationID string, round, maxIterations int) RoundStartedEvent {
	return RoundStartedEvent{
		BaseEvent:     NewBaseEvent(TypeRoundStarted, conversationID),
		Round:         round,
		MaxIterations: maxIterations,
	}
}

// AgentRepliedEvent carries one agent turn.
type AgentRepliedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	AgentName  string `json:"agent_name"`
	Round      int    `json:"round"`
	Content    string `json:"content"`
	Structured bool   `json:"structured"`
}

func NewAgentRepliedEvent(conversationID, userID, agentName string, round int, content string, structured bool) AgentRepliedEvent {
	return AgentRepliedEvent{
		BaseEvent:  NewBaseEvent(TypeAgentReplied, conversationID),
		UserID:     userID,
		AgentName:  agentName,
		Round:      round,
		Content:    content,
		Structured: structured,
	}
}

// AgentFailedEvent is emitted when the reasoner fails for a turn.
type AgentFailedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Round  int    `json:"round"`
	Error  string `json:"error"`
}

func NewAgentFailedEvent(conversationID, userID string, round int, err error) AgentFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return AgentFailedEvent{
		BaseEvent: NewBaseEvent(TypeAgentFailed, conversationID),
		UserID:    userID,
		Round:     round,
		Error:     msg,
	}
}

// AgentAgreedEvent is emitted when a participant is marked as agreed.
type AgentAgreedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Round  int    `json:"round"`
	Reason string `json:"reason"`
}

func NewAgentAgreedEvent(conversationID, userID string, round int, reason string) AgentAgreedEvent {
	return AgentAgreedEvent{
		BaseEvent: NewBaseEvent(TypeAgentAgreed, conversationID),
		UserID:    userID,
		Round:     round,
		Reason:    reason,
	}
}

// ParametersUpdatedEvent reports the ledger state after a round.
type ParametersUpdatedEvent struct {
	BaseEvent
	Round      int      `json:"round"`
	AllAligned bool     `json:"all_aligned"`
	Unresolved []string `json:"unresolved,omitempty"`
}

func NewParametersUpdatedEvent(conversationID string, round int, allAligned bool, unresolved []string) ParametersUpdatedEvent {
	return ParametersUpdatedEvent{
		BaseEvent:  NewBaseEvent(TypeParametersUpdated, conversationID),
		Round:      round,
		AllAligned: allAligned,
		Unresolved: unresolved,
	}
}

// ClarificationRequestedEvent is emitted when an agent asks its owner.
type ClarificationRequestedEvent struct {
	BaseEvent
	UserID     string   `json:"user_id"`
	Parameters []string `json:"parameters"`
}

func NewClarificationRequestedEvent(conversationID, userID string, parameters []string) ClarificationRequestedEvent {
	return ClarificationRequestedEvent{
		BaseEvent:  NewBaseEvent(TypeClarificationRequested, conversationID),
		UserID:     userID,
		Parameters: parameters,
	}
}

// ClarificationResolvedEvent records how a clarification wait ended.
type ClarificationResolvedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	Outcome string `json:"outcome"`
}

func NewClarificationResolvedEvent(conversationID, userID, outcome string) ClarificationResolvedEvent {
	return ClarificationResolvedEvent{
		BaseEvent: NewBaseEvent(TypeClarificationResolved, conversationID),
		UserID:    userID,
		Outcome:   outcome,
	}
}

// ConversationEndedEvent is emitted once per conversation on termination.
type ConversationEndedEvent struct {
	BaseEvent
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Iterations int    `json:"iterations"`
}

func NewConversationEndedEvent(conversationID, status, reason string, iterations int) ConversationEndedEvent {
	return ConversationEndedEvent{
		BaseEvent:  NewBaseEvent(TypeConversationEnded, conversationID),
		Status:     status,
		Reason:     reason,
		Iterations: iterations,
	}
}

// ConversationFailedEvent is emitted when a conversation is evicted after
// a persistence failure.
type ConversationFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

func NewConversationFailedEvent(conversationID string, err error) ConversationFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ConversationFailedEvent{
		BaseEvent: NewBaseEvent(TypeConversationFailed, conversationID),
		Error:     msg,
	}
}
