package conversation

import (
	"sort"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// state is the in-memory record of a running conversation. It is owned by
// exactly one actor goroutine and never shared.
type state struct {
	id                  string
	topic               string
	creatorID           string
	maxIterations       int
	generalInstructions string
	instructionTimeout  time.Duration

	iteration      int
	started        bool
	startRequested bool
	terminated     bool
	currentAgent   string

	// awaiting holds users whose owners have not sent instructions yet.
	awaiting map[string]bool
	// clarifications holds the wait channel of every user whose agent is
	// blocked on an owner answer. At most one per user.
	clarifications map[string]chan string
	// pendingInput records the parameters each blocked user was asked about.
	pendingInput map[string][]string
	// addresses caches resolved delivery addresses.
	addresses map[string]string
	// names maps user ids to agent display names.
	names map[string]string

	analysis *core.ParameterAnalysis
	timer    startTimer
}

func newState(id string, req CreateRequest) *state {
	st := &state{
		id:                  id,
		topic:               req.Topic,
		creatorID:           req.CreatorID,
		maxIterations:       req.MaxIterations,
		generalInstructions: req.GeneralInstructions,
		instructionTimeout:  req.InstructionTimeout,
		awaiting:            make(map[string]bool),
		clarifications:      make(map[string]chan string),
		pendingInput:        make(map[string][]string),
		addresses:           make(map[string]string),
		names:               make(map[string]string),
	}
	for uid, name := range req.DisplayNames {
		if name != "" {
			st.names[uid] = name
		}
	}
	if addr := req.CreatorAddress; addr != "" {
		st.addresses[req.CreatorID] = addr
	}
	return st
}

// name returns the agent display name of userID.
func (st *state) name(userID string) string {
	if n := st.names[userID]; n != "" {
		return n
	}
	return userID
}

func (st *state) awaitingIDs() []string {
	ids := make([]string, 0, len(st.awaiting))
	for uid := range st.awaiting {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	return ids
}

func (st *state) snapshot() *Status {
	waiting := make([]string, 0, len(st.clarifications))
	for uid := range st.clarifications {
		waiting = append(waiting, uid)
	}
	sort.Strings(waiting)
	return &Status{
		ConversationID:        st.id,
		Topic:                 st.topic,
		CreatorID:             st.creatorID,
		Iteration:             st.iteration,
		MaxIterations:         st.maxIterations,
		Started:               st.started,
		Awaiting:              st.awaitingIDs(),
		CurrentAgent:          st.currentAgent,
		AwaitingClarification: waiting,
		Parameters:            st.analysis.Clone(),
	}
}

// Status is a point-in-time view of a running conversation.
type Status struct {
	ConversationID        string                  `json:"conversation_id"`
	Topic                 string                  `json:"topic"`
	CreatorID             string                  `json:"creator_id"`
	Iteration             int                     `json:"iteration"`
	MaxIterations         int                     `json:"max_iterations"`
	Started               bool                    `json:"started"`
	Awaiting              []string                `json:"awaiting_instructions"`
	CurrentAgent          string                  `json:"current_agent,omitempty"`
	AwaitingClarification []string                `json:"awaiting_clarification"`
	Parameters            *core.ParameterAnalysis `json:"parameters,omitempty"`
}

// startTimer is the deferred start of the round loop. The zero value is
// unarmed; arming always stops the previous timer so at most one is live.
type startTimer struct {
	t *time.Timer
}

func (s *startTimer) arm(d time.Duration) {
	s.cancel()
	s.t = time.NewTimer(d)
}

func (s *startTimer) cancel() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}

func (s *startTimer) armed() bool {
	return s.t != nil
}

// C returns the firing channel, or nil when unarmed. Receiving from a nil
// channel blocks forever, which keeps an unarmed timer out of selects.
func (s *startTimer) C() <-chan time.Time {
	if s.t == nil {
		return nil
	}
	return s.t.C
}
