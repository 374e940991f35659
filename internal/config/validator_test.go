package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Conversation: ConversationConfig{
			DefaultMaxIterations: 5,
			InstructionTimeout:   "5m",
			ClarificationTimeout: "5m",
			DeliveryTimeout:      "10s",
			ManagerUserID:        "__conversation_manager__",
		},
		Store:    StoreConfig{Backend: "sqlite", Path: "x.db"},
		Reasoner: ReasonerConfig{Command: "claude -p", Timeout: "5m"},
		Delivery: DeliveryConfig{Mode: "log"},
		Server:   ServerConfig{Addr: ":8080"},
		Metrics:  MetricsConfig{Enabled: true, Namespace: "mordecai"},
	}
}

func TestValidator_Valid(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Fatalf("ValidateConfig() error = %v", err)
	}
}

func TestValidator_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"iterations", func(c *Config) { c.Conversation.DefaultMaxIterations = 0 }, "conversation.default_max_iterations"},
		{"instruction timeout", func(c *Config) { c.Conversation.InstructionTimeout = "soon" }, "conversation.instruction_timeout"},
		{"zero clarification", func(c *Config) { c.Conversation.ClarificationTimeout = "0s" }, "conversation.clarification_timeout"},
		{"manager id", func(c *Config) { c.Conversation.ManagerUserID = " " }, "conversation.manager_user_id"},
		{"backend", func(c *Config) { c.Store.Backend = "mongo" }, "store.backend"},
		{"sqlite path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"redis addr", func(c *Config) { c.Store.Backend = "redis" }, "store.redis.addr"},
		{"reasoner command", func(c *Config) { c.Reasoner.Command = "" }, "reasoner.command"},
		{"rate limit", func(c *Config) { c.Reasoner.RateLimitPerMinute = -1 }, "reasoner.rate_limit_per_minute"},
		{"agent override", func(c *Config) {
			c.Reasoner.Agents = map[string]AgentReasonerConfig{"bob": {}}
		}, "reasoner.agents.bob.command"},
		{"delivery mode", func(c *Config) { c.Delivery.Mode = "sms" }, "delivery.mode"},
		{"webhook url", func(c *Config) { c.Delivery.Mode = "webhook"; c.Delivery.WebhookURL = "ftp://x" }, "delivery.webhook_url"},
		{"server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"metrics namespace", func(c *Config) { c.Metrics.Namespace = "" }, "metrics.namespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestValidator_CollectsAll(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "loud"
	cfg.Store.Backend = "tape"

	v := NewValidator()
	err := v.Validate(cfg)
	if err == nil || !v.Errors().HasErrors() {
		t.Fatal("expected errors")
	}
	if len(v.Errors()) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(v.Errors()), v.Errors())
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("joined message = %q", err.Error())
	}
}

func TestValidator_WebhookAccepted(t *testing.T) {
	cfg := validConfig()
	cfg.Delivery.Mode = "webhook"
	cfg.Delivery.WebhookURL = "https://hooks.example.com/mordecai"
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
