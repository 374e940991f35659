package conversation

import (
	"fmt"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/consensus"
	"github.com/iliagerman/mordecai-sub000/internal/core"
)

const ruleWidth = 50

// AgentContext is everything an agent sees on its turn.
type AgentContext struct {
	Topic               string
	Round               int
	MaxIterations       int
	AgentUserID         string
	AgentName           string
	GeneralInstructions string
	OwnerInstructions   []string
	Parameters          *core.ParameterAnalysis
	History             []consensus.HistoryLine
}

// unresolved reports whether the ledger still has open conflicts, in which
// case agents are asked for a structured parameter block.
func (c AgentContext) unresolved() bool {
	return c.Parameters.Active() && !c.Parameters.AllAligned
}

const parameterReplyInstructions = `IMPORTANT: There are unresolved parameter conflicts. Focus on resolving these specific points. Do NOT say 'I agree' generically. Use the parameter structure below to indicate your position on each point.

If you need your owner's input on a parameter, set its status to 'need_owner_input'.

You MUST include a [PARAMETERS] block at the end of your response:

[PARAMETERS]
{
  "parameters": [
    {"name": "<param_name>", "my_position": "<your proposed value>", "status": "proposing|accepted|need_owner_input"}
  ]
}
[/PARAMETERS]

Status values:
- "proposing": you suggest this value
- "accepted": you accept the other agent's proposed value
- "need_owner_input": you need to ask your owner before deciding`

const plainReplyInstructions = "Please respond to the conversation. If you agree with the current direction, clearly express your agreement."

// BuildAgentContext renders the prompt for one agent turn.
func BuildAgentContext(c AgentContext) string {
	round := c.Round
	if round < 1 {
		round = 1
	}
	name := c.AgentName
	if name == "" {
		name = c.AgentUserID
	}

	lines := []string{
		"You are participating in a multi-agent conversation.",
		"",
		"Topic: " + c.Topic,
		fmt.Sprintf("Current round: %d/%d", round, c.MaxIterations),
		"",
		fmt.Sprintf("Your role: You are '%s', an AI agent working with other agents to reach consensus.", name),
	}

	if c.GeneralInstructions != "" {
		lines = append(lines, "\nGeneral instructions: "+c.GeneralInstructions)
	}

	if len(c.OwnerInstructions) > 0 {
		lines = append(lines, "\nInstructions from your owner:")
		for i, instr := range c.OwnerInstructions {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, instr))
		}
	} else {
		lines = append(lines, "\nNo specific instructions from your owner.")
	}

	if c.unresolved() {
		lines = append(lines, parameterTable(c.Parameters, c.AgentUserID)...)
	}

	lines = append(lines, "", "CONVERSATION HISTORY:")
	for _, h := range c.History {
		lines = append(lines, h.Sender+": "+h.Content)
	}
	lines = append(lines, "")

	if c.unresolved() {
		lines = append(lines, parameterReplyInstructions)
	} else {
		lines = append(lines, plainReplyInstructions)
	}
	return strings.Join(lines, "\n")
}

func parameterTable(analysis *core.ParameterAnalysis, userID string) []string {
	rule := strings.Repeat("=", ruleWidth)
	lines := []string{"", rule, "DECISION PARAMETERS", rule}
	for _, p := range analysis.Parameters {
		label := "CONFLICT"
		if p.IsAligned {
			label = "ALIGNED"
		}
		lines = append(lines, fmt.Sprintf("\n[%s] %s: %s", label, p.Name, p.Description))
		for _, pos := range p.Positions {
			who := pos.AgentName
			if who == "" {
				who = pos.AgentUserID
			}
			marker := ""
			if pos.AgentUserID == userID {
				marker = "  <-- YOUR POSITION"
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s%s", who, pos.Position, marker))
		}
		if p.IsAligned {
			lines = append(lines, "  Agreed value: "+p.AlignedValue)
		}
	}
	if names := analysis.UnresolvedNames(); len(names) > 0 {
		lines = append(lines, "\nUNRESOLVED: "+strings.Join(names, ", "))
	}
	return append(lines, rule)
}
