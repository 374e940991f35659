package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate checks every section and returns all problems at once.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateConversation(&cfg.Conversation)
	v.validateStore(&cfg.Store)
	v.validateReasoner(&cfg.Reasoner)
	v.validateDelivery(&cfg.Delivery)
	v.validateServer(&cfg.Server)
	v.validateMetrics(&cfg.Metrics)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"auto": true, "text": true, "json": true}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateConversation(cfg *ConversationConfig) {
	if cfg.DefaultMaxIterations < 1 {
		v.addError("conversation.default_max_iterations", cfg.DefaultMaxIterations, "must be at least 1")
	}
	v.positiveDuration("conversation.instruction_timeout", cfg.InstructionTimeout)
	v.positiveDuration("conversation.clarification_timeout", cfg.ClarificationTimeout)
	v.positiveDuration("conversation.delivery_timeout", cfg.DeliveryTimeout)
	if strings.TrimSpace(cfg.ManagerUserID) == "" {
		v.addError("conversation.manager_user_id", cfg.ManagerUserID, "required")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	switch cfg.Backend {
	case "sqlite", "json", "bolt":
		if cfg.Path == "" {
			v.addError("store.path", cfg.Path, "required for "+cfg.Backend+" backend")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			v.addError("store.redis.addr", cfg.Redis.Addr, "required for redis backend")
		}
		if cfg.Redis.DB < 0 {
			v.addError("store.redis.db", cfg.Redis.DB, "must be non-negative")
		}
	case "memory":
	default:
		v.addError("store.backend", cfg.Backend, "must be one of: sqlite, json, bolt, redis, memory")
	}
}

func (v *Validator) validateReasoner(cfg *ReasonerConfig) {
	if strings.TrimSpace(cfg.Command) == "" {
		v.addError("reasoner.command", cfg.Command, "required")
	}
	v.positiveDuration("reasoner.timeout", cfg.Timeout)
	if cfg.RateLimitPerMinute < 0 {
		v.addError("reasoner.rate_limit_per_minute", cfg.RateLimitPerMinute, "must be non-negative")
	}
	for uid, agent := range cfg.Agents {
		if strings.TrimSpace(agent.Command) == "" {
			v.addError("reasoner.agents."+uid+".command", agent.Command, "required when an override is declared")
		}
	}
}

func (v *Validator) validateDelivery(cfg *DeliveryConfig) {
	switch cfg.Mode {
	case "log":
	case "webhook":
		u, err := url.Parse(cfg.WebhookURL)
		if cfg.WebhookURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.addError("delivery.webhook_url", cfg.WebhookURL, "must be an absolute http(s) URL in webhook mode")
		}
	default:
		v.addError("delivery.mode", cfg.Mode, "must be one of: log, webhook")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "required")
	}
}

func (v *Validator) validateMetrics(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Namespace == "" {
		v.addError("metrics.namespace", cfg.Namespace, "required when metrics are enabled")
	}
}

func (v *Validator) positiveDuration(field, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
