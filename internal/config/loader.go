package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "MORDECAI"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader on an existing viper instance so
// CLI flag bindings take part in resolution.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load resolves configuration. Precedence, highest first: bound flags,
// MORDECAI_* environment variables, the config file, defaults.
// The file is --config when given, else ./.mordecai/config.yaml, else
// $HOME/.config/mordecai/config.yaml.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".mordecai")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "mordecai"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads configuration and runs the validator on it.
func (l *Loader) LoadAndValidate() (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("conversation.default_max_iterations", 5)
	l.v.SetDefault("conversation.instruction_timeout", "5m")
	l.v.SetDefault("conversation.clarification_timeout", "5m")
	l.v.SetDefault("conversation.delivery_timeout", "10s")
	l.v.SetDefault("conversation.manager_user_id", "__conversation_manager__")

	l.v.SetDefault("store.backend", "sqlite")
	l.v.SetDefault("store.path", ".mordecai/conversations.db")
	l.v.SetDefault("store.redis.addr", "localhost:6379")
	l.v.SetDefault("store.redis.db", 0)
	l.v.SetDefault("store.redis.key_prefix", "mordecai:")

	l.v.SetDefault("reasoner.command", "claude -p")
	l.v.SetDefault("reasoner.timeout", "5m")
	l.v.SetDefault("reasoner.rate_limit_per_minute", 0)

	l.v.SetDefault("delivery.mode", "log")
	l.v.SetDefault("delivery.address_book", ".mordecai/addresses.yaml")

	l.v.SetDefault("server.addr", "localhost:8080")
	l.v.SetDefault("server.cors_origins", []string{"*"})

	l.v.SetDefault("metrics.enabled", true)
	l.v.SetDefault("metrics.namespace", "mordecai")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
