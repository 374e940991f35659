package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

func TestParseParameterAnalysis(t *testing.T) {
	raw := "```json\n" + `{
  "parameters": [
    {"name": "day", "description": "meeting day",
     "positions": [
       {"agent_user_id": "u1", "agent_name": "Alice", "position": "Friday"},
       {"agent_user_id": "u2", "agent_name": "Bob", "position": "Monday"}
     ],
     "is_aligned": false, "aligned_value": null},
    {"name": "  ", "positions": []}
  ],
  "summary": "They disagree on the day",
  "all_aligned": true
}` + "\n```"

	analysis := ParseParameterAnalysis(raw)
	require.NotNil(t, analysis)
	require.Len(t, analysis.Parameters, 1)

	day := analysis.Parameters[0]
	assert.Equal(t, "day", day.Name)
	assert.Len(t, day.Positions, 2)
	assert.Equal(t, core.SourceInitialInstruction, day.Positions[0].Source)
	assert.Empty(t, day.AlignedValue)
	assert.Equal(t, "They disagree on the day", analysis.Summary)
	assert.False(t, analysis.AllAligned, "all_aligned is recomputed from parameters")
	assert.True(t, analysis.Active())
}

func TestParseParameterAnalysis_BracketedProseBeforeObject(t *testing.T) {
	raw := "Analysis for [Team Offsite] below:\n" +
		`{"parameters": [{"name": "day", "positions": [{"agent_user_id": "u1", "agent_name": "Alice", "position": "Friday"}]}], "summary": "one voice"}`

	analysis := ParseParameterAnalysis(raw)
	require.NotNil(t, analysis)
	require.Len(t, analysis.Parameters, 1)
	assert.Equal(t, "day", analysis.Parameters[0].Name)
	assert.Equal(t, "one voice", analysis.Summary)
}

func TestParseParameterAnalysis_Failures(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not find any parameters.",
		`{"parameters": "nope"}`,
		`["day", "time"]`,
		`{"parameters": [`,
	} {
		assert.Nil(t, ParseParameterAnalysis(raw), "input %q", raw)
	}
}

func TestParseAgentParameterResponse(t *testing.T) {
	reply := `I can do Friday afternoon.

[PARAMETERS]
{"parameters": [
  {"name": "day", "my_position": "Friday", "status": "ACCEPTED"},
  {"name": "budget", "my_position": "unsure", "status": "need_owner_input"},
  {"name": "venue", "my_position": "office", "status": "whatever"}
]}
[/PARAMETERS]`

	updates, ok := ParseAgentParameterResponse(reply)
	require.True(t, ok)
	require.Len(t, updates, 3)
	assert.Equal(t, core.UpdateAccepted, updates[0].Status)
	assert.Equal(t, core.UpdateNeedOwnerInput, updates[1].Status)
	assert.Equal(t, core.UpdateProposing, updates[2].Status)
}

func TestParseAgentParameterResponse_BareList(t *testing.T) {
	updates, ok := ParseAgentParameterResponse(`ok [PARAMETERS] [{"name":"day","my_position":"Friday","status":"proposing"}] [/PARAMETERS]`)
	require.True(t, ok)
	require.Len(t, updates, 1)
	assert.Equal(t, "Friday", updates[0].MyPosition)
}

func TestParseReply(t *testing.T) {
	_, plain := ParseReply("I agree").(core.PlainReply)
	assert.True(t, plain)

	_, plain = ParseReply("[PARAMETERS] not json [/PARAMETERS]").(core.PlainReply)
	assert.True(t, plain, "malformed block falls back to plain text")

	structured, ok := ParseReply(`x [PARAMETERS]{"parameters":[]}[/PARAMETERS]`).(core.StructuredReply)
	require.True(t, ok)
	assert.Empty(t, structured.Updates)
}

func TestMergeUpdates(t *testing.T) {
	analysis := &core.ParameterAnalysis{Parameters: []core.ConversationParameter{
		{Name: "Day", Positions: []core.ParameterPosition{
			{AgentUserID: "u1", AgentName: "Alice", Position: "Friday"},
		}},
	}}

	n := MergeUpdates(analysis, "u2", "Bob", []core.ParameterUpdate{
		{Name: "day", MyPosition: "friday", Status: core.UpdateAccepted},
		{Name: "unknown", MyPosition: "x"},
		{Name: "day", MyPosition: "  "},
	}, core.SourceConversation)

	assert.Equal(t, 1, n)
	pos, ok := analysis.Parameters[0].PositionOf("u2")
	require.True(t, ok)
	assert.Equal(t, "friday", pos.Position)
	assert.Equal(t, core.SourceConversation, pos.Source)
	assert.Zero(t, MergeUpdates(nil, "u", "n", nil, core.SourceConversation))
}
