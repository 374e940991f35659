package conversation

import (
	"fmt"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/consensus"
	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/events"
)

// begin closes the instruction window: owners that never instructed their
// agent are excluded, the parameter ledger is extracted and the start is
// announced.
func (a *actor) begin() {
	a.st.timer.cancel()
	a.st.started = true
	ctx := a.storeCtx()

	participants, err := a.svc.store.ListParticipants(ctx, a.id)
	if err != nil {
		a.fail("list participants", err)
		return
	}

	var excluded []string
	for _, p := range participants {
		if !a.st.awaiting[p.UserID] {
			continue
		}
		name := a.st.name(p.UserID)
		excluded = append(excluded, name)
		a.notify(a.creatorID, fmt.Sprintf("Agent '%s' did not provide instructions in time and was excluded.", name))
		a.notify(p.UserID, fmt.Sprintf("The conversation '%s' has started without your agent because you didn't provide instructions in time.", a.st.topic))
		if err := a.svc.store.MarkAgreed(ctx, a.id, p.UserID); err != nil {
			a.fail("exclude participant", err)
			return
		}
	}
	clear(a.st.awaiting)

	ready, err := core.PendingParticipants(ctx, a.svc.store, a.id)
	if err != nil {
		a.fail("list pending participants", err)
		return
	}
	if len(ready) == 0 {
		a.notify(a.creatorID, "No agents provided instructions. Conversation cancelled.")
		a.end(core.StatusCancelled, "No agents provided instructions before the timeout.")
		return
	}

	a.extractParameters(ready)
	if a.st.terminated {
		return
	}

	names := make([]string, len(ready))
	for i, p := range ready {
		names[i] = a.st.name(p.UserID)
	}
	text := fmt.Sprintf("Conversation started!\n\nTopic: %s\nParticipating agents: %s\nMax iterations: %d\nUse 'conversation status %s' for a live transcript.",
		a.st.topic, strings.Join(names, ", "), a.st.maxIterations, a.id)
	var params []string
	if a.st.analysis.Active() {
		for _, p := range a.st.analysis.Parameters {
			params = append(params, p.Name)
		}
		if !a.st.analysis.AllAligned {
			text += fmt.Sprintf("\n\nParameter analysis:\n%s\nUnresolved: %s",
				a.st.analysis.Summary, strings.Join(a.st.analysis.UnresolvedNames(), ", "))
		}
	}
	a.broadcast(text)

	a.logger.Info("conversation started", "ready", names, "excluded", excluded, "parameters", params)
	a.svc.publish(events.NewConversationStartedEvent(a.id, names, excluded, params))
}

// extractParameters asks the manager for the decision parameters hidden in
// the owners' instructions. It needs at least two instructed agents; any
// failure leaves the ledger empty and keyword detection takes over.
func (a *actor) extractParameters(ready []*core.Participant) {
	messages, err := a.svc.store.ListMessages(a.storeCtx(), a.id)
	if err != nil {
		a.logger.Warn("listing messages for parameter extraction failed", "error", err)
		return
	}

	var briefs []consensus.AgentBrief
	for _, p := range ready {
		instructions := core.InstructionsFrom(messages, p.UserID)
		if len(instructions) == 0 {
			continue
		}
		briefs = append(briefs, consensus.AgentBrief{
			UserID:       p.UserID,
			Name:         a.st.name(p.UserID),
			Instructions: strings.Join(instructions, " | "),
		})
	}
	if len(briefs) < 2 {
		return
	}

	prompt := consensus.BuildParameterExtractionPrompt(a.st.topic, briefs)
	reply, err := a.invoke(a.svc.cfg.ManagerUserID, prompt, "extraction")
	if a.st.terminated {
		return
	}
	if err != nil {
		a.logger.Warn("parameter extraction failed", "error", err)
		return
	}
	analysis := consensus.ParseParameterAnalysis(reply)
	if !analysis.Active() {
		a.logger.Info("no decision parameters extracted, using keyword agreement")
		return
	}
	a.st.analysis = analysis
}

// round runs one pass over the pending participants followed by the
// consensus check.
func (a *actor) round() {
	ctx := a.storeCtx()
	limit := a.st.maxIterations
	if a.st.iteration >= limit {
		a.end(core.StatusMaxIterationsReached, fmt.Sprintf("Max iterations (%d) reached", limit))
		return
	}

	iter, err := a.svc.store.IncrementIteration(ctx, a.id)
	if err != nil {
		a.fail("increment iteration", err)
		return
	}
	a.st.iteration = iter

	pending, err := core.PendingParticipants(ctx, a.svc.store, a.id)
	if err != nil {
		a.fail("list pending participants", err)
		return
	}
	if len(pending) == 0 {
		a.endWithoutPending()
		return
	}

	a.broadcast(fmt.Sprintf("--- Round %d/%d ---", iter, limit))
	a.svc.metrics.RoundStarted()
	a.svc.publish(events.NewRoundStartedEvent(a.id, iter, limit))

	for _, p := range pending {
		if a.st.terminated {
			return
		}
		if a.st.awaiting[p.UserID] {
			a.broadcast(fmt.Sprintf("Agent '%s' is still waiting for instructions and sits out this round.", a.st.name(p.UserID)))
			continue
		}
		a.turn(p)
	}
	if a.st.terminated {
		return
	}

	if a.st.analysis.Active() {
		if a.checkAlignment() || a.st.terminated {
			return
		}
	} else {
		all, err := a.svc.store.AllAgreed(ctx, a.id)
		if err != nil {
			a.fail("check agreement", err)
			return
		}
		if all {
			a.end(core.StatusConsensusReached, "All participants agreed")
			return
		}
	}

	if iter >= limit {
		a.end(core.StatusMaxIterationsReached, fmt.Sprintf("Max iterations (%d) reached", limit))
	}
}

func (a *actor) endWithoutPending() {
	all, err := a.svc.store.AllAgreed(a.storeCtx(), a.id)
	if err != nil {
		a.fail("check agreement", err)
		return
	}
	if all {
		a.end(core.StatusConsensusReached, "All participants agreed")
		return
	}
	a.end(core.StatusMaxIterationsReached, fmt.Sprintf("Max iterations (%d) reached", a.st.maxIterations))
}

// checkAlignment runs the deterministic pass and, when that is not enough,
// the semantic fallback. It reports whether the conversation ended.
func (a *actor) checkAlignment() bool {
	iter := a.st.iteration
	aligned := consensus.CheckParameterAlignment(a.st.analysis)
	if !aligned {
		aligned = a.semanticAlignment()
		if a.st.terminated {
			return true
		}
	}
	a.st.analysis.LastUpdatedIteration = iter

	if !aligned {
		names := a.st.analysis.UnresolvedNames()
		a.broadcast(fmt.Sprintf("After round %d: %d parameter(s) still unresolved: %s", iter, len(names), strings.Join(names, ", ")))
		a.svc.publish(events.NewParametersUpdatedEvent(a.id, iter, false, names))
		return false
	}

	a.svc.publish(events.NewParametersUpdatedEvent(a.id, iter, true, nil))
	ctx := a.storeCtx()
	participants, err := a.svc.store.ListParticipants(ctx, a.id)
	if err != nil {
		a.fail("list participants", err)
		return true
	}
	for _, p := range participants {
		if p.HasAgreed {
			continue
		}
		if err := a.svc.store.MarkAgreed(ctx, a.id, p.UserID); err != nil {
			a.fail("mark agreed", err)
			return true
		}
	}
	a.end(core.StatusConsensusReached, "All parameters aligned: "+consensus.AlignedValues(a.st.analysis))
	return true
}

// semanticAlignment asks the manager whether the agents converged on
// values the deterministic pass could not match. The returned ledger
// replaces the current one only when it parses.
func (a *actor) semanticAlignment() bool {
	messages, err := a.svc.store.ListMessages(a.storeCtx(), a.id)
	if err != nil {
		a.logger.Warn("listing messages for alignment check failed", "error", err)
		return false
	}
	prompt := consensus.BuildAlignmentCheckPrompt(a.st.topic, a.st.analysis, a.history(messages))
	reply, err := a.invoke(a.svc.cfg.ManagerUserID, prompt, "alignment")
	if a.st.terminated {
		return false
	}
	if err != nil {
		a.logger.Warn("semantic alignment check failed", "error", err)
		return false
	}
	updated := consensus.ParseParameterAnalysis(reply)
	if !updated.Active() {
		a.logger.Debug("semantic alignment reply carried no ledger")
		return false
	}
	a.st.analysis = updated
	return updated.Recompute()
}

// turn obtains, records and interprets one agent's reply.
func (a *actor) turn(p *core.Participant) {
	uid := p.UserID
	name := a.st.name(uid)
	logger := a.logger.WithAgent(uid).WithRound(a.st.iteration)

	a.st.currentAgent = uid
	defer func() { a.st.currentAgent = "" }()

	prompt, err := a.agentPrompt(uid)
	if err != nil {
		a.fail("build agent context", err)
		return
	}

	reply, err := a.invoke(uid, prompt, "turn")
	if a.st.terminated {
		return
	}
	failed := err != nil
	if failed {
		logger.Warn("agent failed to respond", "error", err)
		reply = placeholderReply(name)
		a.svc.metrics.AgentTurn("failed")
		a.svc.publish(events.NewAgentFailedEvent(a.id, uid, a.st.iteration, err))
	} else {
		a.svc.metrics.AgentTurn("replied")
	}

	if !a.record(uid, reply) {
		return
	}
	a.broadcast(fmt.Sprintf("[%s]: %s", name, reply))
	if failed {
		return
	}

	parsed := consensus.ParseReply(reply)
	structured, isStructured := parsed.(core.StructuredReply)
	a.svc.publish(events.NewAgentRepliedEvent(a.id, uid, name, a.st.iteration, reply, isStructured))

	if a.st.analysis.Active() {
		if !isStructured {
			return
		}
		consensus.MergeUpdates(a.st.analysis, uid, name, structured.Updates, core.SourceConversation)
		if need := structured.NeedsOwnerInput(); len(need) > 0 {
			a.clarify(p, need)
		}
		return
	}

	verdict := consensus.DetectAgreement(parsed.Raw())
	logger.Debug("agreement check", "agreed", verdict.Agreed, "reason", verdict.Reason)
	if !verdict.Agreed {
		return
	}
	ctx := a.storeCtx()
	if err := a.svc.store.MarkAgreed(ctx, a.id, uid); err != nil {
		a.fail("mark agreed", err)
		return
	}
	a.broadcast(fmt.Sprintf("Agent '%s' has indicated agreement.", name))
	a.svc.publish(events.NewAgentAgreedEvent(a.id, uid, a.st.iteration, verdict.Reason))

	all, err := a.svc.store.AllAgreed(ctx, a.id)
	if err != nil {
		a.fail("check agreement", err)
		return
	}
	if all {
		a.end(core.StatusConsensusReached, "All participants agreed")
	}
}

// record persists an agent reply for the current round.
func (a *actor) record(userID, content string) bool {
	msg := &core.Message{
		ConversationID: a.id,
		SenderID:       userID,
		Content:        content,
		Iteration:      a.st.iteration,
	}
	if err := a.svc.store.AppendMessage(a.storeCtx(), msg); err != nil {
		a.fail("store reply", err)
		return false
	}
	return true
}

// agentPrompt assembles the context for userID's turn from persisted state.
func (a *actor) agentPrompt(userID string) (string, error) {
	messages, err := a.svc.store.ListMessages(a.storeCtx(), a.id)
	if err != nil {
		return "", err
	}
	return BuildAgentContext(AgentContext{
		Topic:               a.st.topic,
		Round:               a.st.iteration,
		MaxIterations:       a.st.maxIterations,
		AgentUserID:         userID,
		AgentName:           a.st.name(userID),
		GeneralInstructions: a.st.generalInstructions,
		OwnerInstructions:   core.InstructionsFrom(messages, userID),
		Parameters:          a.st.analysis,
		History:             a.history(messages),
	}), nil
}

func (a *actor) history(messages []*core.Message) []consensus.HistoryLine {
	visible := core.VisibleMessages(messages)
	lines := make([]consensus.HistoryLine, len(visible))
	for i, m := range visible {
		lines[i] = consensus.HistoryLine{Sender: a.st.name(m.SenderID), Content: m.Content}
	}
	return lines
}
