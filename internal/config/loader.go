package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables carrying instance pairs as comma-separated lists,
// zipped by position.
const (
	EnvTokens     = "TELEGRAM_TOKEN_BOT"
	EnvAssistants = "ASSISTANT_ID_BOT"
)

// Provider API key variables, read only for the configured provider and
// only when BOT_ASSISTANT_API_KEY and the file leave the key empty.
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
)

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads and validates configuration from:
//  1. Default values
//  2. the YAML file at path (optional when path is the default)
//  3. BOT_* environment variables, plus TELEGRAM_TOKEN_BOT / ASSISTANT_ID_BOT
//     for instance pairs, and OPENAI_API_KEY or GEMINI_API_KEY matching the
//     provider when no key is set otherwise
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("assistant.temperature")
	_ = v.BindEnv("openai_api_key", EnvOpenAIAPIKey)
	_ = v.BindEnv("gemini_api_key", EnvGeminiAPIKey)
	_ = v.BindEnv("env_tokens", EnvTokens)
	_ = v.BindEnv("env_assistants", EnvAssistants)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = providerAPIKey(v, cfg.Assistant.Provider)
	}
	cfg.Instances = append(cfg.Instances, PairsFromLists(v.GetString("env_tokens"), v.GetString("env_assistants"))...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded",
		"instances", len(cfg.Instances),
		"provider", cfg.Assistant.Provider,
		"db_path", cfg.Database.Path)

	return cfg, nil
}

func providerAPIKey(v *viper.Viper, provider string) string {
	switch provider {
	case ProviderGemini:
		return v.GetString("gemini_api_key")
	case ProviderOpenAI, "":
		return v.GetString("openai_api_key")
	default:
		return ""
	}
}

func readConfigFile(v *viper.Viper, path string) error {
	explicit := path != "" && path != DefaultConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return fmt.Errorf("config file %s not found: %w", path, err)
			}
			slog.Debug("configuration file not found, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// PairsFromLists zips comma-separated token and assistant lists by position.
// Blank entries are dropped; entries without a counterpart on the other list
// are ignored with a warning.
func PairsFromLists(tokens, assistants string) []InstancePair {
	t := splitList(tokens)
	a := splitList(assistants)
	if len(t) != len(a) {
		slog.Warn("token and assistant lists differ in length, extra entries ignored",
			"tokens", len(t), "assistants", len(a))
	}

	n := min(len(t), len(a))
	pairs := make([]InstancePair, 0, n)
	for i := range n {
		pairs = append(pairs, InstancePair{Token: t[i], AssistantID: a[i]})
	}
	return pairs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults sets default values for optional configuration parameters
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	v.SetDefault("telegram.poll_timeout", DefaultTelegramPollTimeout)
	v.SetDefault("telegram.connect_timeout", DefaultTelegramConnectTimeout)
	v.SetDefault("telegram.shutdown_grace", DefaultTelegramShutdownGrace)

	v.SetDefault("assistant.provider", DefaultAssistantProvider)
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.base_url", "")
	v.SetDefault("assistant.timeout", DefaultAssistantTimeout)
	v.SetDefault("assistant.poll_interval", DefaultAssistantPollInterval)
	v.SetDefault("assistant.instruction", DefaultAssistantInstruction)
	v.SetDefault("assistant.max_retries", DefaultAssistantMaxRetries)
	v.SetDefault("assistant.retry_delay", DefaultAssistantRetryDelay)
	v.SetDefault("assistant.circuit_max_failures", DefaultCircuitMaxFailures)
	v.SetDefault("assistant.circuit_open_timeout", DefaultCircuitOpenTimeout)

	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("scheduler.thread_ttl", DefaultThreadTTL)
	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	v.SetDefault("messages.start", DefaultMessages.Start)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.reset", DefaultMessages.Reset)
	v.SetDefault("messages.dispatch_error", DefaultMessages.DispatchError)
}
