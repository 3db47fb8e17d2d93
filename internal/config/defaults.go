package config

import "time"

// Default values for configuration
const (
	DefaultConfigPath = "config.yaml"
	DefaultEnvFile    = ".env"

	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultTelegramPollTimeout    = time.Minute
	DefaultTelegramConnectTimeout = 10 * time.Second
	DefaultTelegramShutdownGrace  = 30 * time.Second

	DefaultAssistantProvider     = ProviderOpenAI
	DefaultAssistantTimeout      = 2 * time.Minute
	DefaultAssistantPollInterval = time.Second
	DefaultAssistantInstruction  = "You are a helpful assistant focused on providing clear and accurate responses."
	DefaultAssistantMaxRetries   = 2
	DefaultAssistantRetryDelay   = 2 * time.Second
	DefaultCircuitMaxFailures    = 5
	DefaultCircuitOpenTimeout    = time.Minute

	DefaultDatabasePath = "storage.db"

	DefaultThreadTTL = 30 * 24 * time.Hour
)

// Default texts for the locally resolved commands.
var DefaultMessages = MessagesConfig{
	Start:         "👋 Hi! I'm ready to assist you. Just send me a message.",
	Help:          "Send me any text and I'll answer with the help of my assistant.\n\n/start - Start the bot\n/help - Show help\n/reset - Start a new conversation",
	Reset:         "🔄 Conversation has been reset.",
	DispatchError: "❌ Sorry, I couldn't get an answer right now. Please try again later.",
}

// DefaultTasks lists the maintenance tasks and their cron schedules.
var DefaultTasks = map[string]TaskConfig{
	"thread_cleanup":  {Enabled: true, Schedule: "0 0 4 * * *"},
	"sql_maintenance": {Enabled: true, Schedule: "0 30 4 * * 0"},
}
