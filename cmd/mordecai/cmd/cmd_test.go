package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliagerman/mordecai-sub000/internal/adapters/store"
	"github.com/iliagerman/mordecai-sub000/internal/config"
	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/testutil"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

// runCLI executes the root command with args and returns its output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	listActiveOnly = false
	initForce = false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")
	out := captureStdout(t, func() { versionCmd.Run(versionCmd, nil) })

	assert.Contains(t, out, "mordecai v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2026-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")

	out, err := runCLI(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, string(data))

	_, err = runCLI(t, "init", "--config", path)
	require.Error(t, err)

	_, err = runCLI(t, "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestEngineConfig(t *testing.T) {
	cfg := &config.Config{Conversation: config.ConversationConfig{
		DefaultMaxIterations: 8,
		InstructionTimeout:   "90s",
		ClarificationTimeout: "bogus",
		DeliveryTimeout:      "2s",
		ManagerUserID:        "mgr",
	}}
	ec := engineConfig(cfg)

	assert.Equal(t, 8, ec.DefaultMaxIterations)
	assert.Equal(t, 90*time.Second, ec.InstructionTimeout)
	assert.Equal(t, core.DefaultClarificationTimeout, ec.ClarificationTimeout)
	assert.Equal(t, 2*time.Second, ec.DeliveryTimeout)
	assert.Equal(t, "mgr", ec.ManagerUserID)

	ec = engineConfig(&config.Config{})
	assert.Equal(t, core.DefaultMaxIterations, ec.DefaultMaxIterations)
	assert.Equal(t, core.ManagerUserID, ec.ManagerUserID)
}

func TestNewReasoner_AgentOverrides(t *testing.T) {
	cfg := &config.Config{Reasoner: config.ReasonerConfig{
		Command: "cat",
		Timeout: "1m",
		Agents:  map[string]config.AgentReasonerConfig{"alice": {Command: "tee"}},
	}}
	r, err := newReasoner(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "tee", r.CommandFor("alice"))
	assert.Equal(t, "cat", r.CommandFor("bob"))
}

func seedJSONStore(t *testing.T, dir string) {
	t.Helper()
	st, err := store.New(store.Options{Backend: store.BackendJSON, Path: dir})
	require.NoError(t, err)
	defer st.Close()

	testutil.SeedConversation(t, st, testutil.Seed{
		ID:           "conv-active",
		Topic:        "Pick a   day\nfor the offsite",
		Participants: []string{"alice"},
	})
	testutil.SeedConversation(t, st, testutil.Seed{
		ID:           "conv-done",
		Topic:        "Lunch venue",
		Participants: []string{"bob"},
		Messages:     []string{"bob: Tacos?"},
		Status:       core.StatusConsensusReached,
		ExitReason:   "All participants agreed",
	})
}

func writeJSONStoreConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "conversations")
	seedJSONStore(t, storeDir)

	path := filepath.Join(dir, "config.yaml")
	yaml := "store:\n  backend: json\n  path: " + storeDir + "\nmetrics:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestConversationsList(t *testing.T) {
	path := writeJSONStoreConfig(t)

	out, err := runCLI(t, "conversations", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "conv-active")
	assert.Contains(t, out, "conv-done")
	assert.Contains(t, out, "Consensus reached")
	assert.Contains(t, out, "Pick a day for the offsite")

	out, err = runCLI(t, "conv", "list", "--active", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "conv-active")
	assert.NotContains(t, out, "conv-done")
}

func TestConversationsShow(t *testing.T) {
	path := writeJSONStoreConfig(t)

	out, err := runCLI(t, "conversations", "show", "conv-done", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Topic: Lunch venue")
	assert.Contains(t, out, "Exit reason: All participants agreed")
	assert.Contains(t, out, "[bob]: Tacos?")

	_, err = runCLI(t, "conversations", "show", "missing", "--config", path)
	require.Error(t, err)
	assert.Equal(t, core.ErrCatNotFound, core.GetCategory(err))
}

func TestWriteConversationList_Empty(t *testing.T) {
	var buf bytes.Buffer
	writeConversationList(&buf, nil, false)
	assert.Equal(t, "No conversations found.\n", buf.String())
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("  a\n b\tc ", 20))
	assert.Equal(t, "abcdefg...", oneLine("abcdefghijklmnop", 10))
}
