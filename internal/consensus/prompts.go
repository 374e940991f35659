package consensus

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// AgentBrief is one agent's input to ledger extraction.
type AgentBrief struct {
	UserID       string
	Name         string
	Instructions string
}

// HistoryLine is one visible message rendered for the manager.
type HistoryLine struct {
	Sender  string
	Content string
}

const analysisFormat = `{
  "parameters": [
    {
      "name": "short_parameter_name",
      "description": "what the parameter decides",
      "positions": [
        {"agent_user_id": "<user id>", "agent_name": "<name>", "position": "<stated preference>"}
      ],
      "is_aligned": false,
      "aligned_value": null
    }
  ],
  "summary": "one sentence on where agents agree and conflict",
  "all_aligned": false
}`

// BuildParameterExtractionPrompt asks the manager to list the decision
// parameters hidden in the owners' instructions.
func BuildParameterExtractionPrompt(topic string, agents []AgentBrief) string {
	var sb strings.Builder
	sb.WriteString("You are preparing a multi-agent conversation by extracting its decision parameters.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n\n", topic)
	sb.WriteString("Instructions each agent received from its owner:\n")
	for _, a := range agents {
		name := a.Name
		if name == "" {
			name = a.UserID
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", name, a.UserID, a.Instructions)
	}
	sb.WriteString(`
List the KEY DECISION PARAMETERS: every point on which the agents must settle
one concrete value (a time, a place, a budget, an approach, ...).
For every parameter record each agent's position as stated in its instructions.
If an agent's instructions do not mention a parameter, record its position as
"` + core.NoPreference + `".

Return ONLY JSON, without markdown fences or commentary, shaped like:
`)
	sb.WriteString(analysisFormat)
	sb.WriteString("\n")
	return sb.String()
}

// BuildAlignmentCheckPrompt asks the manager to judge semantic alignment of
// the ledger against the visible history.
func BuildAlignmentCheckPrompt(topic string, analysis *core.ParameterAnalysis, history []HistoryLine) string {
	ledger, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		ledger = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("You are moderating a multi-agent conversation and must decide which decision parameters are settled.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n\n", topic)
	sb.WriteString("Current parameter ledger:\n")
	sb.Write(ledger)
	sb.WriteString("\n\nConversation so far:\n")
	for _, h := range history {
		fmt.Fprintf(&sb, "%s: %s\n", h.Sender, h.Content)
	}
	sb.WriteString(`
Update every agent's position from what it said most recently.
Mark a parameter aligned ONLY when the agents explicitly settled on the SAME
SPECIFIC value. Vague approval such as "sounds good" or "works for me" without
a concrete value does NOT count as alignment. Put the agreed value in
aligned_value.

Return ONLY JSON, without markdown fences or commentary, shaped like:
`)
	sb.WriteString(analysisFormat)
	sb.WriteString("\n")
	return sb.String()
}
