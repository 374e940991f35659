package consensus

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

var parameterBlockPattern = regexp.MustCompile(`(?s)\[PARAMETERS\]\s*(.*?)\s*\[/PARAMETERS\]`)

type rawAnalysis struct {
	Parameters []rawParameter `json:"parameters"`
	Summary    string         `json:"summary"`
	AllAligned bool           `json:"all_aligned"`
}

type rawParameter struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Positions    []rawPosition `json:"positions"`
	IsAligned    bool          `json:"is_aligned"`
	AlignedValue *string       `json:"aligned_value"`
}

type rawPosition struct {
	AgentUserID string `json:"agent_user_id"`
	AgentName   string `json:"agent_name"`
	Position    string `json:"position"`
	Source      string `json:"source"`
}

// ParseParameterAnalysis turns the manager's raw reply into a ledger.
// It returns nil when no JSON object can be recovered.
func ParseParameterAnalysis(raw string) *core.ParameterAnalysis {
	body, ok := ExtractJSONObject(raw)
	if !ok || !strings.HasPrefix(body, "{") {
		return nil
	}

	var parsed rawAnalysis
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil
	}

	analysis := &core.ParameterAnalysis{Summary: parsed.Summary}
	for _, rp := range parsed.Parameters {
		name := strings.TrimSpace(rp.Name)
		if name == "" {
			continue
		}
		param := core.ConversationParameter{
			Name:        name,
			Description: rp.Description,
			IsAligned:   rp.IsAligned,
		}
		if rp.AlignedValue != nil {
			param.AlignedValue = *rp.AlignedValue
		}
		for _, pos := range rp.Positions {
			if pos.AgentUserID == "" {
				continue
			}
			source := core.PositionSource(pos.Source)
			if source == "" {
				source = core.SourceInitialInstruction
			}
			param.Positions = append(param.Positions, core.ParameterPosition{
				AgentUserID: pos.AgentUserID,
				AgentName:   pos.AgentName,
				Position:    pos.Position,
				Source:      source,
			})
		}
		analysis.Parameters = append(analysis.Parameters, param)
	}
	analysis.Recompute()
	return analysis
}

// ParseAgentParameterResponse extracts the [PARAMETERS] block of an agent
// reply. ok is false when the block is missing or malformed.
func ParseAgentParameterResponse(reply string) (updates []core.ParameterUpdate, ok bool) {
	m := parameterBlockPattern.FindStringSubmatch(reply)
	if m == nil {
		return nil, false
	}
	body, found := ExtractJSON(m[1])
	if !found {
		return nil, false
	}

	var items []core.ParameterUpdate
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, false
		}
	} else {
		var wrapper struct {
			Parameters []core.ParameterUpdate `json:"parameters"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return nil, false
		}
		items = wrapper.Parameters
	}

	updates = make([]core.ParameterUpdate, 0, len(items))
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		it.Status = normalizeStatus(it.Status)
		updates = append(updates, it)
	}
	return updates, true
}

// ParseReply classifies an agent reply.
func ParseReply(reply string) core.ParsedReply {
	updates, ok := ParseAgentParameterResponse(reply)
	if !ok {
		return core.PlainReply{Text: reply}
	}
	return core.StructuredReply{Text: reply, Updates: updates}
}

func normalizeStatus(s core.UpdateStatus) core.UpdateStatus {
	switch core.UpdateStatus(strings.ToLower(strings.TrimSpace(string(s)))) {
	case core.UpdateAccepted:
		return core.UpdateAccepted
	case core.UpdateNeedOwnerInput:
		return core.UpdateNeedOwnerInput
	default:
		return core.UpdateProposing
	}
}

// MergeUpdates applies an agent's parameter updates to the ledger. Updates
// naming parameters the ledger does not track are ignored. It returns the
// number of positions changed.
func MergeUpdates(analysis *core.ParameterAnalysis, userID, agentName string, updates []core.ParameterUpdate, source core.PositionSource) int {
	if analysis == nil {
		return 0
	}
	changed := 0
	for _, u := range updates {
		param := analysis.Find(u.Name)
		if param == nil || strings.TrimSpace(u.MyPosition) == "" {
			continue
		}
		param.SetPosition(userID, agentName, u.MyPosition, source)
		changed++
	}
	return changed
}
