package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

func TestBuildParameterExtractionPrompt(t *testing.T) {
	prompt := BuildParameterExtractionPrompt("Team offsite", []AgentBrief{
		{UserID: "u1", Name: "Alice", Instructions: "Friday only | budget under 500"},
		{UserID: "u2", Instructions: "Prefer Monday"},
	})

	assert.Contains(t, prompt, "Topic: Team offsite")
	assert.Contains(t, prompt, "- Alice (u1): Friday only | budget under 500")
	assert.Contains(t, prompt, "- u2 (u2): Prefer Monday")
	assert.Contains(t, prompt, core.NoPreference)
	assert.Contains(t, prompt, `"all_aligned"`)
}

func TestBuildAlignmentCheckPrompt(t *testing.T) {
	analysis := &core.ParameterAnalysis{Parameters: []core.ConversationParameter{{Name: "day"}}}
	prompt := BuildAlignmentCheckPrompt("Offsite", analysis, []HistoryLine{
		{Sender: "Alice", Content: "Friday works"},
	})

	assert.Contains(t, prompt, `"name": "day"`)
	assert.Contains(t, prompt, "Alice: Friday works")
	assert.Contains(t, prompt, "SAME\nSPECIFIC value")
}

func TestRenderSummary(t *testing.T) {
	conv := &core.Conversation{Topic: "Offsite", Status: core.StatusConsensusReached, CurrentIteration: 2, MaxIterations: 5}
	participants := []*core.Participant{
		{UserID: "u1", DisplayName: "Alice", HasAgreed: true},
		{UserID: "u2"},
	}
	long := ""
	for i := 0; i < 30; i++ {
		long += "word "
	}
	var messages []*core.Message
	messages = append(messages, &core.Message{SenderID: "u1", Content: "secret", IsPrivateInstruction: true})
	for i := 0; i < 6; i++ {
		messages = append(messages, &core.Message{SenderID: "u1", Content: "msg", CreatedAt: time.Now()})
	}
	messages = append(messages, &core.Message{SenderID: "u2", Content: long})

	out := RenderSummary(conv, participants, messages)

	assert.Contains(t, out, "Topic: Offsite")
	assert.Contains(t, out, "Status: consensus_reached")
	assert.Contains(t, out, "Iterations: 2/5")
	assert.Contains(t, out, "  - Alice: ✅ Agreed")
	assert.Contains(t, out, "  - u2: ❌ Did not agree")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "...")
}
