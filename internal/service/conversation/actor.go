package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/events"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
)

const mailboxSize = 32

// errTerminated is returned by blocking helpers when the conversation ended
// while they were waiting.
var errTerminated = errors.New("conversation terminated")

type command interface {
	command()
}

type instructionResult struct {
	ack string
	err error
}

type instructionCmd struct {
	userID string
	text   string
	reply  chan<- instructionResult
}

type addParticipantCmd struct {
	userID string
	name   string
	reply  chan<- error
}

type cancelCmd struct {
	reason string
	reply  chan<- error
}

type statusCmd struct {
	reply chan<- *Status
}

func (instructionCmd) command()    {}
func (addParticipantCmd) command() {}
func (cancelCmd) command()         {}
func (statusCmd) command()         {}

// actor owns one conversation. Its goroutine is the only one that reads or
// writes the conversation's state; everything else talks to it through the
// mailbox.
type actor struct {
	id        string
	creatorID string

	svc     *Service
	st      *state
	mailbox chan command
	done    chan struct{}
	logger  *logging.Logger

	// fatal is the persistence failure that stopped the conversation.
	fatal error
}

func newActor(s *Service, st *state) *actor {
	return &actor{
		id:        st.id,
		creatorID: st.creatorID,
		svc:       s,
		st:        st,
		mailbox:   make(chan command, mailboxSize),
		done:      make(chan struct{}),
		logger:    s.logger.WithConversation(st.id),
	}
}

// send enqueues cmd, failing once the actor has stopped.
func (a *actor) send(ctx context.Context, cmd command) error {
	select {
	case a.mailbox <- cmd:
		return nil
	case <-a.done:
		return core.ErrNotActive(a.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await reads the actor's reply to a command. A command left unprocessed
// when the actor stops yields ErrNotActive.
func await[T any](ctx context.Context, a *actor, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-a.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, core.ErrNotActive(a.id)
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// storeCtx scopes datastore and delivery calls. Terminal writes must land
// even while the service is being torn down.
func (a *actor) storeCtx() context.Context {
	return context.WithoutCancel(a.svc.ctx)
}

func (a *actor) run() {
	defer close(a.done)

	a.gather()
	if !a.st.terminated {
		a.begin()
	}
	for !a.st.terminated {
		a.round()
	}

	if a.fatal != nil {
		a.logger.Error("conversation failed", "error", a.fatal)
		a.svc.registry.remove(a.id)
		a.svc.metrics.ConversationFailed()
		a.svc.publish(events.NewConversationFailedEvent(a.id, a.fatal))
	}
}

// fail stops the conversation after a required write or read failed.
func (a *actor) fail(op string, err error) {
	if a.st.terminated {
		return
	}
	a.st.terminated = true
	a.st.timer.cancel()
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		a.fatal = fmt.Errorf("%s: %w", op, err)
		return
	}
	a.fatal = core.ErrPersistence(op, err)
}

// gather runs the instruction window: it announces the conversation, arms
// the deferred start and serves commands until every invitee has
// instructed their agent or the window closes.
func (a *actor) gather() {
	a.announce()
	a.st.timer.arm(a.st.instructionTimeout)

	for !a.st.startRequested && !a.st.terminated {
		select {
		case cmd := <-a.mailbox:
			a.handle(cmd)
		case <-a.st.timer.C():
			a.st.timer.t = nil
			a.st.startRequested = true
			a.logger.Info("instruction window closed", "awaiting", a.st.awaitingIDs())
		case <-a.svc.ctx.Done():
			a.end(core.StatusCancelled, ShutdownReason)
		}
	}
	a.st.timer.cancel()
}

// handle applies one command to the state.
func (a *actor) handle(cmd command) {
	switch c := cmd.(type) {
	case instructionCmd:
		ack, err := a.storeInstruction(c.userID, c.text)
		c.reply <- instructionResult{ack: ack, err: err}
	case addParticipantCmd:
		c.reply <- a.addParticipant(c.userID, c.name)
	case cancelCmd:
		a.end(core.StatusCancelled, c.reason)
		c.reply <- a.fatal
	case statusCmd:
		c.reply <- a.st.snapshot()
	}
}

// storeInstruction persists a private instruction and updates the
// instruction window. An owner blocked on a clarification is answered by
// the same instruction.
func (a *actor) storeInstruction(userID, text string) (string, error) {
	ctx := a.storeCtx()
	ok, err := a.svc.isParticipant(ctx, a.id, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.ErrNotParticipant(a.id, userID)
	}

	msg := &core.Message{
		ConversationID:       a.id,
		SenderID:             userID,
		Content:              text,
		Iteration:            a.st.iteration,
		IsPrivateInstruction: true,
	}
	if err := a.svc.store.AppendMessage(ctx, msg); err != nil {
		return "", core.ErrPersistence("store instruction", err)
	}

	delete(a.st.awaiting, userID)
	name := a.st.name(userID)
	clarifying := false
	if ch, ok := a.st.clarifications[userID]; ok {
		clarifying = true
		select {
		case ch <- text:
		default:
		}
	}

	if userID != a.creatorID {
		a.notify(a.creatorID, fmt.Sprintf("Agent '%s' received instructions from owner.", name))
	}
	a.logger.Info("instruction received", "user_id", userID, "awaiting", len(a.st.awaiting))
	a.svc.publish(events.NewInstructionReceivedEvent(a.id, userID, len(a.st.awaiting)))

	switch {
	case clarifying:
		return fmt.Sprintf("Clarification received for %s. Your agent will continue now.", name), nil
	case !a.st.started && len(a.st.awaiting) == 0:
		a.st.startRequested = true
		return fmt.Sprintf("Instructions saved for %s. Conversation is starting now!", name), nil
	case !a.st.started:
		return fmt.Sprintf("Instructions saved for %s. Waiting for other agents to receive instructions.", name), nil
	default:
		return fmt.Sprintf("Instructions saved for %s. They will be used on your agent's next turn.", name), nil
	}
}

func (a *actor) addParticipant(userID, displayName string) error {
	p := &core.Participant{
		ConversationID: a.id,
		UserID:         userID,
		DisplayName:    displayName,
	}
	if err := a.svc.store.AddParticipant(a.storeCtx(), p); err != nil {
		return err
	}
	if displayName != "" {
		a.st.names[userID] = displayName
	}
	a.st.awaiting[userID] = true
	name := a.st.name(userID)

	a.notify(a.creatorID, fmt.Sprintf("Agent '%s' joined conversation %s.", name, a.id))
	if a.st.started {
		a.notify(userID, a.midConversationInvite())
	} else {
		a.notify(userID, a.invite())
	}
	a.logger.Info("participant added", "user_id", userID)
	a.svc.publish(events.NewParticipantAddedEvent(a.id, userID))
	return nil
}

type invokeResult struct {
	reply string
	err   error
}

// invoke calls the reasoner and keeps serving the mailbox until it
// returns. When the conversation ends meanwhile the result is discarded
// and errTerminated is returned.
func (a *actor) invoke(userID, prompt, purpose string) (string, error) {
	ctx, cancel := context.WithCancel(a.svc.ctx)
	defer cancel()

	results := make(chan invokeResult, 1)
	start := time.Now()
	go func() {
		reply, err := a.svc.reasoner.Invoke(ctx, userID, prompt)
		results <- invokeResult{reply: reply, err: err}
	}()

	for {
		select {
		case r := <-results:
			a.svc.metrics.ObserveReasoner(purpose, time.Since(start))
			if r.err == nil && strings.TrimSpace(r.reply) == "" {
				r.err = core.ErrExecution(core.CodeReasonerFailed, "reasoner returned an empty reply")
			}
			return strings.TrimSpace(r.reply), r.err
		case cmd := <-a.mailbox:
			a.handle(cmd)
			if a.st.terminated {
				return "", errTerminated
			}
		case <-a.svc.ctx.Done():
			a.end(core.StatusCancelled, ShutdownReason)
			return "", errTerminated
		}
	}
}

// end persists the terminal status, delivers the transcript and evicts the
// conversation. Only the first call has any effect.
func (a *actor) end(status core.ConversationStatus, reason string) {
	if a.st.terminated {
		return
	}
	a.st.timer.cancel()

	ctx := a.storeCtx()
	if err := a.svc.store.UpdateStatus(ctx, a.id, status, reason); err != nil {
		a.fail("update conversation status", err)
		return
	}
	a.st.terminated = true

	transcript, err := a.svc.Transcript(ctx, a.id)
	if err != nil {
		a.logger.Warn("rendering transcript failed", "error", err)
		transcript = "(transcript unavailable)"
	}
	a.broadcast(fmt.Sprintf("Conversation ended: %s\nReason: %s\n\n--- TRANSCRIPT ---\n%s",
		status.Label(), reason, transcript))

	a.svc.registry.remove(a.id)
	a.logger.Info("conversation ended",
		"status", status,
		"reason", reason,
		"iterations", a.st.iteration,
	)
	a.svc.metrics.ConversationEnded(string(status))
	a.svc.publish(events.NewConversationEndedEvent(a.id, string(status), reason, a.st.iteration))
}
