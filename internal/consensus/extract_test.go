package consensus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "bare object", input: `{"a":1}`, want: `{"a":1}`, ok: true},
		{name: "fenced", input: "Here you go:\n```json\n{\"a\": {\"b\": 2}}\n```\nthanks", want: `{"a": {"b": 2}}`, ok: true},
		{name: "prose before", input: `Sure! {"x":"y"} trailing`, want: `{"x":"y"}`, ok: true},
		{name: "brace inside string", input: `{"s":"a } b"}`, want: `{"s":"a } b"}`, ok: true},
		{name: "array first", input: `[{"name":"day"},{"name":"time"}]`, want: `[{"name":"day"},{"name":"time"}]`, ok: true},
		{name: "unbalanced", input: `{"a": 1`, ok: false},
		{name: "no json", input: "just words", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "bracketed prose first", input: "Notes for [Team Offsite]:\n{\"a\":[1]}", want: `{"a":[1]}`, ok: true},
		{name: "object inside array", input: `[{"name":"day"}]`, want: `{"name":"day"}`, ok: true},
		{name: "array only", input: `["day"]`, want: `["day"]`, ok: true},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`, ok: true},
		{name: "no json", input: "nothing here", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractJSON_RecoversEmbeddedObject(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "key")
		value := rapid.StringMatching(`[ -~]{0,30}`).Draw(rt, "value")
		prefix := rapid.StringMatching(`[A-Za-z .,!]{0,40}`).Draw(rt, "prefix")

		payload, err := json.Marshal(map[string]string{key: value})
		require.NoError(rt, err)

		got, ok := ExtractJSON(prefix + string(payload) + " done.")
		require.True(rt, ok)

		var decoded map[string]string
		require.NoError(rt, json.Unmarshal([]byte(got), &decoded))
		assert.Equal(rt, value, decoded[key])
	})
}
