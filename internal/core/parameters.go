package core

import "strings"

// NoPreference is the sentinel position recorded for an agent whose
// instructions do not mention a parameter.
const NoPreference = "no preference stated"

// PositionSource records where a stated position came from.
type PositionSource string

const (
	SourceInitialInstruction PositionSource = "initial_instruction"
	SourceClarification      PositionSource = "clarification"
	SourceConversation       PositionSource = "conversation"
)

// ParameterPosition is one agent's stance on a parameter.
type ParameterPosition struct {
	AgentUserID string         `json:"agent_user_id"`
	AgentName   string         `json:"agent_name"`
	Position    string         `json:"position"`
	Source      PositionSource `json:"source,omitempty"`
}

// IsNoPreference reports whether the position is the sentinel value.
func (p ParameterPosition) IsNoPreference() bool {
	return NormalizePosition(p.Position) == NoPreference
}

// ConversationParameter is a single decision point tracked per agent.
type ConversationParameter struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Positions    []ParameterPosition `json:"positions"`
	IsAligned    bool                `json:"is_aligned"`
	AlignedValue string              `json:"aligned_value,omitempty"`
}

// PositionOf returns the position recorded for userID.
func (p *ConversationParameter) PositionOf(userID string) (ParameterPosition, bool) {
	for _, pos := range p.Positions {
		if pos.AgentUserID == userID {
			return pos, true
		}
	}
	return ParameterPosition{}, false
}

// SetPosition updates the position for userID or appends a new one.
func (p *ConversationParameter) SetPosition(userID, name, position string, source PositionSource) {
	for i := range p.Positions {
		if p.Positions[i].AgentUserID == userID {
			p.Positions[i].Position = position
			p.Positions[i].Source = source
			if name != "" {
				p.Positions[i].AgentName = name
			}
			return
		}
	}
	p.Positions = append(p.Positions, ParameterPosition{
		AgentUserID: userID,
		AgentName:   name,
		Position:    position,
		Source:      source,
	})
}

// ParameterAnalysis is the decision-parameter ledger of a conversation.
// AllAligned is true iff every parameter is aligned; call Recompute after
// changing any parameter's alignment.
type ParameterAnalysis struct {
	Parameters           []ConversationParameter `json:"parameters"`
	Summary              string                  `json:"summary"`
	AllAligned           bool                    `json:"all_aligned"`
	LastUpdatedIteration int                     `json:"last_updated_iteration"`
}

// Active reports whether the ledger drives consensus detection.
func (a *ParameterAnalysis) Active() bool {
	return a != nil && len(a.Parameters) > 0
}

// Recompute refreshes AllAligned from the per-parameter flags.
func (a *ParameterAnalysis) Recompute() bool {
	all := true
	for i := range a.Parameters {
		if !a.Parameters[i].IsAligned {
			all = false
			break
		}
	}
	a.AllAligned = all
	return all
}

// Find returns the parameter matching name case-insensitively.
func (a *ParameterAnalysis) Find(name string) *ConversationParameter {
	for i := range a.Parameters {
		if strings.EqualFold(strings.TrimSpace(a.Parameters[i].Name), strings.TrimSpace(name)) {
			return &a.Parameters[i]
		}
	}
	return nil
}

// Unresolved returns the parameters that are not aligned yet.
func (a *ParameterAnalysis) Unresolved() []ConversationParameter {
	if a == nil {
		return nil
	}
	var out []ConversationParameter
	for _, p := range a.Parameters {
		if !p.IsAligned {
			out = append(out, p)
		}
	}
	return out
}

// UnresolvedNames lists the names of parameters that are not aligned.
func (a *ParameterAnalysis) UnresolvedNames() []string {
	var names []string
	for _, p := range a.Unresolved() {
		names = append(names, p.Name)
	}
	return names
}

// Clone returns a deep copy safe to hand outside the owning goroutine.
func (a *ParameterAnalysis) Clone() *ParameterAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Parameters = make([]ConversationParameter, len(a.Parameters))
	for i, p := range a.Parameters {
		p.Positions = append([]ParameterPosition(nil), p.Positions...)
		out.Parameters[i] = p
	}
	return &out
}

// NormalizePosition case-folds and trims a stated position for comparison.
func NormalizePosition(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
