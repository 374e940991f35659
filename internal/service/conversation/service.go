// Package conversation orchestrates multi-agent consensus conversations:
// the instruction-gathering window, sequential discussion rounds, owner
// clarification detours, and termination with transcript delivery.
//
// Every active conversation is owned by one actor goroutine. Public
// methods never touch conversation state directly; they send commands to
// the owning actor and wait for its reply.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliagerman/mordecai-sub000/internal/consensus"
	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/events"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
	"github.com/iliagerman/mordecai-sub000/internal/metrics"
)

// ShutdownReason is the exit reason recorded for conversations cancelled
// by Shutdown.
const ShutdownReason = "Service shutting down"

// DefaultCancelReason is used when Cancel is called without a reason.
const DefaultCancelReason = "Cancelled by user"

// Config holds engine-wide defaults.
type Config struct {
	DefaultMaxIterations int
	InstructionTimeout   time.Duration
	ClarificationTimeout time.Duration
	DeliveryTimeout      time.Duration
	ManagerUserID        string
}

// DefaultConfig returns the built-in engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMaxIterations: core.DefaultMaxIterations,
		InstructionTimeout:   core.DefaultInstructionTimeout,
		ClarificationTimeout: core.DefaultClarificationTimeout,
		DeliveryTimeout:      core.DefaultDeliveryTimeout,
		ManagerUserID:        core.ManagerUserID,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultMaxIterations <= 0 {
		c.DefaultMaxIterations = d.DefaultMaxIterations
	}
	if c.InstructionTimeout <= 0 {
		c.InstructionTimeout = d.InstructionTimeout
	}
	if c.ClarificationTimeout <= 0 {
		c.ClarificationTimeout = d.ClarificationTimeout
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = d.DeliveryTimeout
	}
	if c.ManagerUserID == "" {
		c.ManagerUserID = d.ManagerUserID
	}
	return c
}

// Option configures a Service.
type Option func(*Service)

// WithConfig overrides the engine defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithMetrics records prometheus metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// Service is the conversation orchestrator.
type Service struct {
	store     core.ConversationStore
	reasoner  core.Reasoner
	messenger core.Messenger
	cfg       Config
	logger    *logging.Logger
	bus       *events.EventBus
	metrics   *metrics.Collector

	registry *registry

	// ctx scopes background work; it outlives individual requests.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Service.
func New(store core.ConversationStore, reasoner core.Reasoner, messenger core.Messenger, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:     store,
		reasoner:  reasoner,
		messenger: messenger,
		cfg:       DefaultConfig(),
		logger:    logging.NewNop(),
		registry:  newRegistry(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("conversation")
	return s
}

// CreateRequest describes a new conversation.
type CreateRequest struct {
	CreatorID string
	// CreatorAddress is the creator's delivery address when the caller
	// already knows it; otherwise it is resolved like everyone else's.
	CreatorAddress string
	Topic          string
	// MaxIterations of zero uses the configured default.
	MaxIterations int
	// Participants are the invited user ids besides the creator.
	Participants []string
	// DisplayNames optionally maps user ids to agent names.
	DisplayNames map[string]string
	// GeneralInstructions are shown to every agent.
	GeneralInstructions string
	// InstructionTimeout of zero uses the configured default.
	InstructionTimeout time.Duration
	// Source labels where the request came from in metrics.
	Source string
}

func (r *CreateRequest) validate(defaults Config) error {
	r.CreatorID = strings.TrimSpace(r.CreatorID)
	r.Topic = strings.TrimSpace(r.Topic)
	if r.CreatorID == "" {
		return core.ErrValidation(core.CodeEmptyUser, "creator id is required")
	}
	if r.Topic == "" {
		return core.ErrValidation(core.CodeEmptyTopic, "topic is required")
	}
	if r.MaxIterations < 0 {
		return core.ErrValidation(core.CodeInvalidIterations, "max iterations must be positive")
	}
	if r.MaxIterations == 0 {
		r.MaxIterations = defaults.DefaultMaxIterations
	}
	if r.InstructionTimeout < 0 {
		return core.ErrValidation(core.CodeInvalidTimeout, "instruction timeout must be positive")
	}
	if r.InstructionTimeout == 0 {
		r.InstructionTimeout = defaults.InstructionTimeout
	}
	if r.Source == "" {
		r.Source = "api"
	}
	return nil
}

// participantIDs returns the creator followed by the unique invitees.
func (r *CreateRequest) participantIDs() []string {
	ids := []string{r.CreatorID}
	seen := map[string]bool{r.CreatorID: true}
	for _, uid := range r.Participants {
		uid = strings.TrimSpace(uid)
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		ids = append(ids, uid)
	}
	return ids
}

// abandon closes a conversation whose creation failed after it was
// persisted, so no ACTIVE row is left without an actor.
func (s *Service) abandon(ctx context.Context, conversationID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := "Creation failed: " + cause.Error()
	if err := s.store.UpdateStatus(ctx, conversationID, core.StatusCancelled, reason); err != nil {
		s.logger.Error("abandoning conversation failed", "conversation_id", conversationID, "error", err)
	}
}

// Create persists a conversation, registers its participants and starts
// the instruction window. Everyone, creator included, must instruct their
// agent before the window closes or be excluded.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	if s.isClosed() {
		return "", core.ErrState(core.CodeNotActive, "service is shutting down")
	}
	if err := req.validate(s.cfg); err != nil {
		return "", err
	}

	conv := &core.Conversation{
		ID:            uuid.NewString(),
		CreatorID:     req.CreatorID,
		Topic:         req.Topic,
		MaxIterations: req.MaxIterations,
		Status:        core.StatusActive,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return "", err
	}

	ids := req.participantIDs()
	for _, uid := range ids {
		p := &core.Participant{
			ConversationID: conv.ID,
			UserID:         uid,
			DisplayName:    req.DisplayNames[uid],
		}
		if err := s.store.AddParticipant(ctx, p); err != nil {
			s.abandon(ctx, conv.ID, err)
			return "", err
		}
	}

	st := newState(conv.ID, req)
	for _, uid := range ids {
		st.awaiting[uid] = true
	}
	a := newActor(s, st)
	s.registry.insert(a)

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"topic", req.Topic,
		"max_iterations", req.MaxIterations,
		"timeout", req.InstructionTimeout,
		"participants", ids,
	)
	s.metrics.ConversationCreated(req.Source)
	s.publish(events.NewConversationCreatedEvent(conv.ID, req.Topic, req.CreatorID, ids, req.MaxIterations))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		a.run()
	}()
	return conv.ID, nil
}

// AddParticipant invites userID into a running conversation. The new agent
// takes part once its owner sends instructions.
func (s *Service) AddParticipant(ctx context.Context, conversationID, userID, displayName string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.ErrValidation(core.CodeEmptyUser, "user id is required")
	}
	a, ok := s.registry.get(conversationID)
	if !ok {
		return core.ErrNotActive(conversationID)
	}
	reply := make(chan error, 1)
	if err := a.send(ctx, addParticipantCmd{userID: userID, name: displayName, reply: reply}); err != nil {
		return err
	}
	res, err := await[error](ctx, a, reply)
	if err != nil {
		return err
	}
	return res
}

// HandlePrivateInstruction records an owner's private instruction for their
// agent and returns a human readable acknowledgement. Without a
// conversation id the user's first active conversation is used.
func (s *Service) HandlePrivateInstruction(ctx context.Context, userID, instruction, conversationID string) (string, error) {
	userID = strings.TrimSpace(userID)
	instruction = strings.TrimSpace(instruction)
	if userID == "" {
		return "", core.ErrValidation(core.CodeEmptyUser, "user id is required")
	}
	if instruction == "" {
		return "", core.ErrValidation(core.CodeEmptyInstruction, "instruction is empty")
	}

	var a *actor
	if conversationID != "" {
		found, ok := s.registry.get(conversationID)
		if !ok {
			return "", core.ErrNotActive(conversationID)
		}
		a = found
	} else {
		found, err := s.findForParticipant(ctx, userID)
		if err != nil {
			return "", err
		}
		if found == nil {
			return "", core.ErrNoActiveConversation(userID)
		}
		a = found
	}

	reply := make(chan instructionResult, 1)
	if err := a.send(ctx, instructionCmd{userID: userID, text: instruction, reply: reply}); err != nil {
		return "", err
	}
	res, err := await[instructionResult](ctx, a, reply)
	if err != nil {
		return "", err
	}
	return res.ack, res.err
}

// Cancel ends a conversation with status CANCELLED and delivers its
// transcript. It returns once the conversation has been evicted.
func (s *Service) Cancel(ctx context.Context, conversationID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultCancelReason
	}
	a, ok := s.registry.get(conversationID)
	if !ok {
		return core.ErrNotActive(conversationID)
	}
	reply := make(chan error, 1)
	if err := a.send(ctx, cancelCmd{reason: reason, reply: reply}); err != nil {
		return err
	}
	res, err := await[error](ctx, a, reply)
	if err != nil {
		return err
	}
	return res
}

// Status returns a snapshot of a running conversation.
func (s *Service) Status(ctx context.Context, conversationID string) (*Status, error) {
	a, ok := s.registry.get(conversationID)
	if !ok {
		return nil, core.ErrNotActive(conversationID)
	}
	reply := make(chan *Status, 1)
	if err := a.send(ctx, statusCmd{reply: reply}); err != nil {
		return nil, err
	}
	return await[*Status](ctx, a, reply)
}

// IsActive reports whether the conversation is still running.
func (s *Service) IsActive(conversationID string) bool {
	_, ok := s.registry.get(conversationID)
	return ok
}

// ListActive returns the running conversation ids in creation order.
func (s *Service) ListActive() []string {
	return s.registry.ids()
}

// ActiveConversationFor returns the first running conversation userID
// created or participates in.
func (s *Service) ActiveConversationFor(ctx context.Context, userID string) (string, bool, error) {
	for _, a := range s.registry.actors() {
		if a.creatorID == userID {
			return a.id, true, nil
		}
		ok, err := s.isParticipant(ctx, a.id, userID)
		if err != nil {
			return "", false, err
		}
		if ok {
			return a.id, true, nil
		}
	}
	return "", false, nil
}

// Transcript renders the transcript of any persisted conversation.
func (s *Service) Transcript(ctx context.Context, conversationID string) (string, error) {
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
	return FormatTranscript(conv, participants, messages), nil
}

// Summary renders the short summary of any persisted conversation.
func (s *Service) Summary(ctx context.Context, conversationID string) (string, error) {
	return consensus.NewSummarizer(s.store).GenerateSummary(ctx, conversationID)
}

// Shutdown cancels every running conversation and waits for their actors
// to finish. When ctx expires first, in-flight reasoning is aborted.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, id := range s.registry.ids() {
		if err := s.Cancel(ctx, id, ShutdownReason); err != nil && !core.IsNotActive(err) {
			s.logger.Warn("cancel on shutdown failed", "conversation_id", id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) findForParticipant(ctx context.Context, userID string) (*actor, error) {
	for _, a := range s.registry.actors() {
		ok, err := s.isParticipant(ctx, a.id, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			return a, nil
		}
	}
	return nil, nil
}

func (s *Service) isParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	participants, err := s.store.ListParticipants(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) publish(e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func timeoutLabel(d time.Duration) string {
	return core.FormatTimeout(d)
}

func placeholderReply(agentName string) string {
	return fmt.Sprintf("[Agent %s failed to respond this round]", agentName)
}
