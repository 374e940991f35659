package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/consensus"
	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/events"
)

// clarify pauses p's turn while its owner is asked about the parameters
// the agent could not decide alone. An answer re-invokes the agent with
// the new instruction in context; a timeout leaves its reply as it was.
func (a *actor) clarify(p *core.Participant, need []core.ParameterUpdate) {
	uid := p.UserID
	name := a.st.name(uid)
	if _, busy := a.st.clarifications[uid]; busy {
		return
	}

	params := make([]string, 0, len(need))
	lines := make([]string, 0, len(need))
	for _, u := range need {
		params = append(params, u.Name)
		position := strings.TrimSpace(u.MyPosition)
		if param := a.st.analysis.Find(u.Name); param != nil {
			if pos, ok := param.PositionOf(uid); ok {
				position = pos.Position
			}
		}
		if position == "" {
			position = core.NoPreference
		}
		lines = append(lines, fmt.Sprintf("  - %s: current position = %s", u.Name, position))
	}

	ch := make(chan string, 1)
	a.st.clarifications[uid] = ch
	a.st.pendingInput[uid] = params

	timeout := a.svc.cfg.ClarificationTimeout
	label := timeoutLabel(timeout)
	a.notify(uid, fmt.Sprintf("Your agent '%s' needs your input on:\n\n%s\n\nYou have %s to respond.\n"+
		"Use: conversation instruct <your clarification>\n\n"+
		"If you don't respond, your agent will proceed with its best judgment.",
		name, strings.Join(lines, "\n"), label))
	a.broadcast(fmt.Sprintf("Waiting for %s's owner to clarify: %s (up to %s)...", name, strings.Join(params, ", "), label))
	a.logger.Info("clarification requested", "user_id", uid, "parameters", params)
	a.svc.publish(events.NewClarificationRequestedEvent(a.id, uid, params))

	answered := a.awaitClarification(ch, timeout)
	delete(a.st.clarifications, uid)
	delete(a.st.pendingInput, uid)
	if a.st.terminated {
		return
	}

	if !answered {
		a.broadcast(fmt.Sprintf("%s's owner did not respond in time. Agent will proceed with available information.", name))
		a.svc.metrics.Clarification(events.ClarificationTimedOut)
		a.svc.publish(events.NewClarificationResolvedEvent(a.id, uid, events.ClarificationTimedOut))
		return
	}

	a.broadcast(fmt.Sprintf("%s's owner provided clarification. Continuing...", name))
	a.svc.metrics.Clarification(events.ClarificationAnswered)
	a.svc.publish(events.NewClarificationResolvedEvent(a.id, uid, events.ClarificationAnswered))

	prompt, err := a.agentPrompt(uid)
	if err != nil {
		a.fail("build agent context", err)
		return
	}
	followup, err := a.invoke(uid, prompt, "clarification")
	if a.st.terminated {
		return
	}
	if err != nil {
		a.logger.Warn("follow-up after clarification failed", "user_id", uid, "error", err)
		return
	}
	if !a.record(uid, followup) {
		return
	}
	a.broadcast(fmt.Sprintf("[%s (after owner clarification)]: %s", name, followup))

	updates, ok := consensus.ParseAgentParameterResponse(followup)
	a.svc.publish(events.NewAgentRepliedEvent(a.id, uid, name, a.st.iteration, followup, ok))
	if ok {
		consensus.MergeUpdates(a.st.analysis, uid, name, updates, core.SourceClarification)
	}
}

// awaitClarification blocks until the owner answers through ch or the
// timeout passes, serving commands meanwhile.
func (a *actor) awaitClarification(ch <-chan string, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ch:
			return true
		case <-timer.C:
			return false
		case cmd := <-a.mailbox:
			a.handle(cmd)
			if a.st.terminated {
				return false
			}
		case <-a.svc.ctx.Done():
			a.end(core.StatusCancelled, ShutdownReason)
			return false
		}
	}
}
