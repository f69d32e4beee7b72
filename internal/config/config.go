package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type EventLogDriver string

const (
	DriverSQLite EventLogDriver = "sqlite"
	DriverJSONL  EventLogDriver = "jsonl"
	DriverRedis  EventLogDriver = "redis"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	// Context window
	MaxContextMessages int `env:"MAX_CONTEXT_MESSAGES" envDefault:"10"`
	MaxContextLength   int `env:"MAX_CONTEXT_LENGTH" envDefault:"4000"`

	// Long-term recall
	LongTermMemoryEnabled bool `env:"LONG_TERM_MEMORY_ENABLED" envDefault:"true"`
	MaxLongTermResults    int  `env:"MAX_LONG_TERM_RESULTS" envDefault:"3"`
	LongTermMemoryLength  int  `env:"LONG_TERM_MEMORY_LENGTH" envDefault:"2000"`

	// LLM settings
	DefaultModel      string        `env:"DEFAULT_LLM_MODEL" envDefault:"gpt-3.5-turbo"`
	ModelsFilePath    string        `env:"LLM_MODELS_FILE" envDefault:"llm_models.json"`
	MasterKey         string        `env:"LLM_MODEL_DECRYPT_KEY"`
	KeyCipher         string        `env:"LLM_KEY_CIPHER" envDefault:"aes-cbc"`
	MaxTokens         int           `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	RetryAttempts     int           `env:"LLM_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInitialDelay time.Duration `env:"LLM_RETRY_INITIAL_DELAY" envDefault:"1s"`
	InsecureTLS       bool          `env:"LLM_INSECURE_TLS" envDefault:"false"`
	RequestTimeout    time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"60s"`
	CallTimeout       time.Duration `env:"LLM_CALL_TIMEOUT" envDefault:"90s"`

	// Storage
	EventLogDriver EventLogDriver `env:"EVENT_LOG_DRIVER" envDefault:"sqlite"`
	EventLogPath   string         `env:"EVENT_LOG_PATH" envDefault:"data/contacts.db"`
	RedisURL       string         `env:"REDIS_URL"`

	// Content
	FAQFilePath      string `env:"FAQ_FILE_PATH" envDefault:"data/faq_prompts.json"`
	ServicesFilePath string `env:"SERVICES_FILE_PATH" envDefault:"data/services_catalog.json"`

	// Logging
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"logs/bot.log"`

	// Operations
	DailyReportSchedule string        `env:"DAILY_REPORT_SCHEDULE" envDefault:"0 21 * * *"`
	MetricsAddr         string        `env:"METRICS_ADDR"`
	TypingInterval      time.Duration `env:"TYPING_INTERVAL" envDefault:"3s"`
}

// Load parses the process environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.MaxContextMessages <= 0 {
		return fmt.Errorf("MAX_CONTEXT_MESSAGES must be positive, got %d", c.MaxContextMessages)
	}
	if c.MaxContextLength <= 0 {
		return fmt.Errorf("MAX_CONTEXT_LENGTH must be positive, got %d", c.MaxContextLength)
	}
	if c.MaxLongTermResults < 0 || c.LongTermMemoryLength < 0 {
		return fmt.Errorf("long-term memory limits must not be negative")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("LLM_RETRY_ATTEMPTS must be positive, got %d", c.RetryAttempts)
	}
	switch c.EventLogDriver {
	case DriverSQLite, DriverJSONL:
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis event log")
		}
	default:
		return fmt.Errorf("unknown event log driver: %s", c.EventLogDriver)
	}
	return nil
}
