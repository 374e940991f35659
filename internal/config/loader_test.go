package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoader_Defaults(t *testing.T) {
	isolateHome(t)

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "auto" {
		t.Errorf("Log = %+v, want info/auto", cfg.Log)
	}
	if cfg.Conversation.DefaultMaxIterations != 5 {
		t.Errorf("DefaultMaxIterations = %d, want 5", cfg.Conversation.DefaultMaxIterations)
	}
	if got := cfg.Conversation.InstructionWindow(0); got != 5*time.Minute {
		t.Errorf("InstructionWindow = %v, want 5m", got)
	}
	if got := cfg.Conversation.DeliveryWindow(0); got != 10*time.Second {
		t.Errorf("DeliveryWindow = %v, want 10s", got)
	}
	if cfg.Conversation.ManagerUserID != "__conversation_manager__" {
		t.Errorf("ManagerUserID = %q", cfg.Conversation.ManagerUserID)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != ".mordecai/conversations.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.Redis.KeyPrefix != "mordecai:" {
		t.Errorf("Store.Redis.KeyPrefix = %q", cfg.Store.Redis.KeyPrefix)
	}
	if cfg.Reasoner.Command != "claude -p" {
		t.Errorf("Reasoner.Command = %q", cfg.Reasoner.Command)
	}
	if cfg.Delivery.Mode != "log" {
		t.Errorf("Delivery.Mode = %q", cfg.Delivery.Mode)
	}
	if cfg.Server.Addr != "localhost:8080" || len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != "mordecai" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	isolateHome(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
conversation:
  default_max_iterations: 8
  instruction_timeout: 90s
store:
  backend: redis
  redis:
    addr: cache:6379
reasoner:
  agents:
    alice:
      command: echo alice
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.LoadAndValidate()
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}
	if cfg.Conversation.DefaultMaxIterations != 8 {
		t.Errorf("DefaultMaxIterations = %d, want 8", cfg.Conversation.DefaultMaxIterations)
	}
	if got := cfg.Conversation.InstructionWindow(0); got != 90*time.Second {
		t.Errorf("InstructionWindow = %v, want 90s", got)
	}
	// Untouched keys keep their defaults.
	if got := cfg.Conversation.ClarificationWindow(0); got != 5*time.Minute {
		t.Errorf("ClarificationWindow = %v, want 5m", got)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "cache:6379" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Reasoner.Agents["alice"].Command != "echo alice" {
		t.Errorf("Reasoner.Agents = %+v", cfg.Reasoner.Agents)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("MORDECAI_STORE_BACKEND", "memory")
	t.Setenv("MORDECAI_LOG_LEVEL", "debug")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoader_MalformedFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().WithConfigFile(path).Load(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestWriteDefault(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), ".mordecai", "config.yaml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Fatal("expected error when file exists without force")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Fatalf("WriteDefault(force) error = %v", err)
	}

	cfg, err := NewLoader().WithConfigFile(path).LoadAndValidate()
	if err != nil {
		t.Fatalf("default YAML should load and validate: %v", err)
	}
	if cfg.Store.Redis.KeyPrefix != "mordecai:" {
		t.Errorf("KeyPrefix = %q", cfg.Store.Redis.KeyPrefix)
	}
}

func TestParseDurationOr(t *testing.T) {
	if got := parseDurationOr("", time.Second); got != time.Second {
		t.Errorf("empty -> %v", got)
	}
	if got := parseDurationOr("nope", time.Second); got != time.Second {
		t.Errorf("invalid -> %v", got)
	}
	if got := parseDurationOr("-5s", time.Second); got != time.Second {
		t.Errorf("negative -> %v", got)
	}
	if got := parseDurationOr("2m", time.Second); got != 2*time.Minute {
		t.Errorf("2m -> %v", got)
	}
}
