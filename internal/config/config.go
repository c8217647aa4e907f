package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// DefaultFolders are the provider folders swept on every connect
var DefaultFolders = []string{
	"INBOX",
	"[Gmail]/Sent Mail",
	"[Gmail]/Drafts",
	"[Gmail]/Spam",
}

// Config holds all configuration for the application
type Config struct {
	Port        string
	Version     string
	LogLevel    string
	DatabaseURL string // Index store (PostgreSQL or MySQL)

	// Classification backend
	OpenAIKey                string
	OpenAIBaseURL            string // Optional OpenAI-compatible endpoint
	AzureOpenAIEndpoint      string
	AzureOpenAIKey           string
	AzureOpenAIGPTDeployment string
	AITimeout                time.Duration
	AIRateLimit              float64 // Backend requests per second shared by all workers

	// Notification sinks
	SlackWebhookURL    string
	ExternalWebhookURL string
	SendGridAPIKey     string
	NotifyEmailTo      string
	NotifyEmailFrom    string
	NotifyTimeout      time.Duration

	// Pipeline
	AccountsFile   string
	Folders        []string
	BatchSize      int
	MaxFetch       int
	IndexTimeout   time.Duration
	ReconnectDelay time.Duration
	ReplyCacheTTL  time.Duration

	// Backfill job
	KubeNamespace string
	BackfillImage string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "4000"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		OpenAIKey:                os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:            os.Getenv("OPENAI_BASE_URL"),
		AzureOpenAIEndpoint:      os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIKey:           os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIGPTDeployment: getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AITimeout:                getEnvSeconds("AI_TIMEOUT", 30),
		AIRateLimit:              getEnvFloat("AI_RATE_LIMIT", 5),

		SlackWebhookURL:    os.Getenv("SLACK_WEBHOOK_URL"),
		ExternalWebhookURL: os.Getenv("EXTERNAL_WEBHOOK_URL"),
		SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
		NotifyEmailTo:      os.Getenv("NOTIFY_EMAIL_TO"),
		NotifyEmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@mailpipe.local"),
		NotifyTimeout:      getEnvSeconds("NOTIFY_TIMEOUT", 10),

		AccountsFile:   os.Getenv("ACCOUNTS_FILE"),
		Folders:        getEnvList("FOLDERS", DefaultFolders),
		BatchSize:      getEnvInt("BATCH_SIZE", 10),
		MaxFetch:       getEnvInt("MAX_FETCH", 200),
		IndexTimeout:   getEnvSeconds("INDEX_TIMEOUT", 10),
		ReconnectDelay: getEnvDuration("RECONNECT_DELAY", time.Minute),
		ReplyCacheTTL:  getEnvDuration("REPLY_CACHE_TTL", 30*time.Minute),

		KubeNamespace: getEnv("K8S_NAMESPACE", "mailpipe"),
		BackfillImage: getEnv("BACKFILL_IMAGE", "ghcr.io/mailpipe/mailpipe:latest"),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI credentials are present
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIKey != ""
}

// HasOpenAIFallback reports whether an OpenAI platform key is present
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvSeconds reads a whole number of seconds
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// getEnvDuration parses a Go duration string such as "90s" or "5m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailpipe").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
