// Package config provides configuration loading, validation, and defaults
// for the assistant bot fleet. Values come from defaults, an optional YAML
// file, and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Supported assistant providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config defines the application configuration parameters.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Instances []InstancePair  `mapstructure:"instances" validate:"dive"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// InstancePair binds one Telegram bot token to one assistant identity.
// Its position in Config.Instances is its identity; duplicates are allowed.
type InstancePair struct {
	Token       string `mapstructure:"token"        validate:"required"`
	AssistantID string `mapstructure:"assistant_id" validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds transport settings shared by every instance.
type TelegramConfig struct {
	PollTimeout    time.Duration `mapstructure:"poll_timeout"    validate:"min=1s,max=5m"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"min=1s,max=5m"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"  validate:"min=1s,max=10m"`
}

// AssistantConfig holds settings for the remote assistant provider.
type AssistantConfig struct {
	Provider     string        `mapstructure:"provider"      validate:"oneof=openai gemini"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"      validate:"omitempty,url"`
	Timeout      time.Duration `mapstructure:"timeout"       validate:"min=1s,max=10m"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"min=100ms,max=1m"`
	Instruction  string        `mapstructure:"instruction"`
	// Temperature overrides the assistant's own setting when set.
	Temperature *float32      `mapstructure:"temperature"   validate:"omitempty,min=0,max=2"`
	MaxRetries  int           `mapstructure:"max_retries"   validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"   validate:"min=0,max=1m"`
	// CircuitMaxFailures consecutive failures of one assistant open its
	// circuit breaker; 0 disables the breaker.
	CircuitMaxFailures int           `mapstructure:"circuit_max_failures" validate:"min=0,max=100"`
	CircuitOpenTimeout time.Duration `mapstructure:"circuit_open_timeout" validate:"min=1s,max=1h"`
}

// DatabaseConfig holds the thread store settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig holds maintenance task settings.
type SchedulerConfig struct {
	ThreadTTL time.Duration         `mapstructure:"thread_ttl" validate:"min=1m"`
	Tasks     map[string]TaskConfig `mapstructure:"tasks"      validate:"dive"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds the static texts answered locally by every instance.
type MessagesConfig struct {
	Start         string `mapstructure:"start"          validate:"required"`
	Help          string `mapstructure:"help"           validate:"required"`
	Reset         string `mapstructure:"reset"          validate:"required"`
	DispatchError string `mapstructure:"dispatch_error" validate:"required"`
}

// Validate checks struct constraints. The assistant API key is only
// required when at least one instance is configured, so an empty fleet
// still loads and is reported by the orchestrator instead.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(c.Instances) > 0 && c.Assistant.APIKey == "" {
		return fmt.Errorf("invalid configuration: assistant.api_key is required when instances are configured")
	}
	return nil
}
