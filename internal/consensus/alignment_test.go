package consensus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

func positions(values ...string) []core.ParameterPosition {
	out := make([]core.ParameterPosition, len(values))
	for i, v := range values {
		out[i] = core.ParameterPosition{AgentUserID: string(rune('a' + i)), Position: v}
	}
	return out
}

func TestCheckParameterAlignment_CaseAndWhitespace(t *testing.T) {
	analysis := &core.ParameterAnalysis{Parameters: []core.ConversationParameter{
		{Name: "day", Positions: positions("Friday", "friday", " Friday ")},
	}}

	assert.True(t, CheckParameterAlignment(analysis))
	assert.True(t, analysis.Parameters[0].IsAligned)
	assert.Equal(t, "Friday", analysis.Parameters[0].AlignedValue)
	assert.True(t, analysis.AllAligned)
}

func TestCheckParameterAlignment_Cases(t *testing.T) {
	tests := []struct {
		name      string
		values    []string
		aligned   bool
		wantValue string
	}{
		{name: "conflict", values: []string{"Friday", "Monday"}, aligned: false},
		{name: "sentinel ignored", values: []string{"no preference stated", "Tuesday"}, aligned: true, wantValue: "Tuesday"},
		{name: "trimmed value", values: []string{"  Friday\t", "friday"}, aligned: true, wantValue: "Friday"},
		{name: "only sentinels", values: []string{"No Preference Stated", "no preference stated"}, aligned: true},
		{name: "no positions", values: nil, aligned: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := &core.ParameterAnalysis{Parameters: []core.ConversationParameter{
				{Name: "p", Positions: positions(tt.values...)},
			}}
			got := CheckParameterAlignment(analysis)
			assert.Equal(t, tt.aligned, got)
			assert.Equal(t, tt.aligned, analysis.Parameters[0].IsAligned)
			assert.Equal(t, tt.wantValue, analysis.Parameters[0].AlignedValue)
		})
	}
}

func TestCheckParameterAlignment_KeepsAlignedParameters(t *testing.T) {
	analysis := &core.ParameterAnalysis{Parameters: []core.ConversationParameter{
		{Name: "day", IsAligned: true, AlignedValue: "Friday", Positions: positions("Friday", "Monday")},
		{Name: "time", Positions: positions("9am", "10am")},
	}}
	assert.False(t, CheckParameterAlignment(analysis))
	assert.True(t, analysis.Parameters[0].IsAligned)
	assert.Equal(t, "Friday", analysis.Parameters[0].AlignedValue)
	assert.False(t, CheckParameterAlignment(nil))
}

func TestCheckParameterAlignment_AllAlignedInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		vocab := []string{"Friday", "friday", " FRIDAY", "Monday", core.NoPreference}
		n := rapid.IntRange(0, 6).Draw(rt, "parameters")
		analysis := &core.ParameterAnalysis{}
		for i := 0; i < n; i++ {
			vals := rapid.SliceOfN(rapid.SampledFrom(vocab), 0, 5).Draw(rt, "positions")
			analysis.Parameters = append(analysis.Parameters, core.ConversationParameter{
				Name:      strings.Repeat("p", i+1),
				Positions: positions(vals...),
			})
		}

		got := CheckParameterAlignment(analysis)

		every := true
		for _, p := range analysis.Parameters {
			every = every && p.IsAligned
			if p.IsAligned && p.AlignedValue != "" {
				require.NotEqual(rt, core.NoPreference, core.NormalizePosition(p.AlignedValue))
			}
			hasMonday, hasFriday := false, false
			for _, pos := range p.Positions {
				switch core.NormalizePosition(pos.Position) {
				case "monday":
					hasMonday = true
				case "friday":
					hasFriday = true
				}
			}
			require.Equal(rt, !(hasMonday && hasFriday), p.IsAligned)
		}
		require.Equal(rt, every, got)
		require.Equal(rt, every, analysis.AllAligned)
	})
}

func TestAlignedValues(t *testing.T) {
	analysis := &core.ParameterAnalysis{Parameters: []core.ConversationParameter{
		{Name: "day", IsAligned: true, AlignedValue: "Friday"},
		{Name: "venue"},
		{Name: "time", IsAligned: true, AlignedValue: "9am"},
	}}
	assert.Equal(t, "day=Friday, time=9am", AlignedValues(analysis))
}
