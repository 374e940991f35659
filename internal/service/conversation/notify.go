package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// announce tells invitees about the conversation and confirms creation to
// its creator.
func (a *actor) announce() {
	participants, err := a.svc.store.ListParticipants(a.storeCtx(), a.id)
	if err != nil {
		a.logger.Warn("listing participants for invitations failed", "error", err)
		return
	}

	var others []string
	for _, p := range participants {
		if p.UserID == a.creatorID {
			continue
		}
		others = append(others, a.st.name(p.UserID))
		a.notify(p.UserID, a.invite())
	}

	invited := "none"
	if len(others) > 0 {
		invited = strings.Join(others, ", ")
	}
	a.notify(a.creatorID, fmt.Sprintf("Conversation created! Waiting for all agents to provide instructions.\n\n"+
		"Topic: %s\n"+
		"Conversation ID: %s\n"+
		"Timeout: %s\n"+
		"Other agents invited: %s\n\n"+
		"You also need to provide instructions for YOUR agent:\n"+
		"  conversation instruct <your instructions>\n\n"+
		"The conversation will start automatically when all agents respond or when the timeout expires.",
		a.st.topic, a.id, timeoutLabel(a.st.instructionTimeout), invited))
}

func (a *actor) invite() string {
	return fmt.Sprintf("Your agent has been invited to a conversation.\n\n"+
		"Topic: %s\n"+
		"Conversation ID: %s\n"+
		"Max iterations: %d\n\n"+
		"You have %s to provide instructions.\n"+
		"Use: conversation instruct <your instructions>\n\n"+
		"If you don't respond in time, your agent will not participate.",
		a.st.topic, a.id, a.st.maxIterations, timeoutLabel(a.st.instructionTimeout))
}

func (a *actor) midConversationInvite() string {
	return fmt.Sprintf("Your agent has been added to an ongoing conversation.\n\n"+
		"Topic: %s\n"+
		"Conversation ID: %s\n"+
		"Current round: %d/%d\n\n"+
		"Provide instructions for your agent:\n"+
		"  conversation instruct <your instructions>\n\n"+
		"The conversation will continue while you decide. Your agent will participate once you send instructions.",
		a.st.topic, a.id, a.st.iteration, a.st.maxIterations)
}

// broadcast sends text to the creator and every participant, once each.
func (a *actor) broadcast(text string) {
	participants, err := a.svc.store.ListParticipants(a.storeCtx(), a.id)
	if err != nil {
		a.logger.Warn("listing participants for broadcast failed", "error", err)
		a.notify(a.creatorID, text)
		return
	}
	seen := map[string]bool{a.creatorID: true}
	a.notify(a.creatorID, text)
	for _, p := range participants {
		if seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		a.notify(p.UserID, text)
	}
}

// notify delivers text to one user. Delivery problems are logged and never
// affect the conversation.
func (a *actor) notify(userID, text string) {
	ctx, cancel := context.WithTimeout(a.storeCtx(), a.svc.cfg.DeliveryTimeout)
	defer cancel()

	addr, ok := a.st.addresses[userID]
	if !ok {
		resolved, found, err := a.svc.messenger.ResolveAddress(ctx, userID)
		if err != nil {
			a.logger.Warn("resolving address failed", "user_id", userID, "error", err)
			a.svc.metrics.Delivery("failed")
			return
		}
		if !found {
			attrs := []any{"user_id", userID}
			if hint := a.svc.addressHint(userID); hint != "" {
				attrs = append(attrs, "did_you_mean", hint)
			}
			a.logger.Warn("no delivery address for user", attrs...)
			a.svc.metrics.Delivery("unresolved")
			return
		}
		addr = resolved
		a.st.addresses[userID] = addr
	}

	if err := a.svc.messenger.Send(ctx, addr, text); err != nil {
		a.logger.Warn("delivery failed", "user_id", userID, "error", err)
		a.svc.metrics.Delivery("failed")
		return
	}
	a.svc.metrics.Delivery("sent")
}

const maxAddressHints = 3

// addressHint lists known user ids resembling an unresolved one, when the
// messenger can offer any.
func (s *Service) addressHint(userID string) string {
	sg, ok := s.messenger.(core.AddressSuggester)
	if !ok {
		return ""
	}
	return strings.Join(sg.SuggestUsers(userID, maxAddressHints), ", ")
}
