// Package config loads and validates mordecai configuration from flags,
// environment variables (MORDECAI_*), YAML files and built-in defaults.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Store        StoreConfig        `mapstructure:"store"`
	Reasoner     ReasonerConfig     `mapstructure:"reasoner"`
	Delivery     DeliveryConfig     `mapstructure:"delivery"`
	Server       ServerConfig       `mapstructure:"server"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConversationConfig holds engine-wide conversation defaults.
type ConversationConfig struct {
	DefaultMaxIterations int    `mapstructure:"default_max_iterations"`
	InstructionTimeout   string `mapstructure:"instruction_timeout"`
	ClarificationTimeout string `mapstructure:"clarification_timeout"`
	DeliveryTimeout      string `mapstructure:"delivery_timeout"`
	ManagerUserID        string `mapstructure:"manager_user_id"`
}

// InstructionWindow returns the parsed instruction timeout, or fallback
// when the value is empty or malformed.
func (c ConversationConfig) InstructionWindow(fallback time.Duration) time.Duration {
	return parseDurationOr(c.InstructionTimeout, fallback)
}

// ClarificationWindow returns the parsed clarification timeout.
func (c ConversationConfig) ClarificationWindow(fallback time.Duration) time.Duration {
	return parseDurationOr(c.ClarificationTimeout, fallback)
}

// DeliveryWindow returns the parsed per-message delivery timeout.
func (c ConversationConfig) DeliveryWindow(fallback time.Duration) time.Duration {
	return parseDurationOr(c.DeliveryTimeout, fallback)
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string           `mapstructure:"backend"`
	Path    string           `mapstructure:"path"`
	Redis   RedisStoreConfig `mapstructure:"redis"`
}

// RedisStoreConfig configures the redis backend.
type RedisStoreConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ReasonerConfig configures the command-line reasoning adapter.
type ReasonerConfig struct {
	Command            string                         `mapstructure:"command"`
	Timeout            string                         `mapstructure:"timeout"`
	RateLimitPerMinute int                            `mapstructure:"rate_limit_per_minute"`
	Agents             map[string]AgentReasonerConfig `mapstructure:"agents"`
}

// AgentReasonerConfig overrides the reasoner for one user id.
// Viper lowercases map keys, so user ids are matched case-insensitively.
type AgentReasonerConfig struct {
	Command string `mapstructure:"command"`
}

// TimeoutDuration returns the per-call reasoner timeout.
func (c ReasonerConfig) TimeoutDuration(fallback time.Duration) time.Duration {
	return parseDurationOr(c.Timeout, fallback)
}

// DeliveryConfig configures how messages reach humans.
type DeliveryConfig struct {
	Mode        string `mapstructure:"mode"`
	WebhookURL  string `mapstructure:"webhook_url"`
	AddressBook string `mapstructure:"address_book"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// MetricsConfig configures the prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
