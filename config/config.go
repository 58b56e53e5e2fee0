package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the invite service
type Config struct {
	Telegram  TelegramConfig
	Bot       BotConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Cooldown  CooldownConfig
	Logging   LoggingConfig
	Service   ServiceConfig
	Collector CollectorConfig
}

// TelegramConfig holds MTProto configuration for the account pool
type TelegramConfig struct {
	APIID          int
	APIHash        string
	SessionDir     string
	ConnectRetries int
	ConnectBackoff time.Duration
	MaxConcurrent  int
}

// BotConfig holds the command front-end bot configuration
type BotConfig struct {
	Token        string
	AdminUserIDs []int64
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds the audit stream configuration. Empty Brokers disables
// the stream; the database audit log is always written.
type KafkaConfig struct {
	Brokers       []string
	TopicAttempts string
}

// CooldownConfig holds the rate-gate windows
type CooldownConfig struct {
	UserWindow      time.Duration
	TargetWindow    time.Duration
	InterTargetGap  time.Duration
	DefaultBlockFor time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// CollectorConfig holds the member-count refresh worker configuration
type CollectorConfig struct {
	Interval time.Duration
}

// Result provides config parts for fx dependency injection using fx.Out pattern
type Result struct {
	fx.Out

	Config    *Config
	Telegram  *TelegramConfig
	Bot       *BotConfig
	Database  *DatabaseConfig
	Kafka     *KafkaConfig
	Cooldown  *CooldownConfig
	Logging   *LoggingConfig
	Service   *ServiceConfig
	Collector *CollectorConfig
}

// Out loads configuration and returns Result for fx injection
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:    cfg,
		Telegram:  &cfg.Telegram,
		Bot:       &cfg.Bot,
		Database:  &cfg.Database,
		Kafka:     &cfg.Kafka,
		Cooldown:  &cfg.Cooldown,
		Logging:   &cfg.Logging,
		Service:   &cfg.Service,
		Collector: &cfg.Collector,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	apiID, err := strconv.Atoi(getEnv("TELEGRAM_API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	adminIDs, err := parseInt64List(getEnv("ADMIN_USER_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_USER_IDS: %w", err)
	}

	userWindow, err := time.ParseDuration(getEnv("INVITE_COOLDOWN", "180s"))
	if err != nil {
		return nil, fmt.Errorf("invalid INVITE_COOLDOWN: %w", err)
	}

	targetWindow, err := time.ParseDuration(getEnv("TARGET_COOLDOWN", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_COOLDOWN: %w", err)
	}

	interTargetGap, err := time.ParseDuration(getEnv("INTER_TARGET_DELAY", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid INTER_TARGET_DELAY: %w", err)
	}

	blockFor, err := time.ParseDuration(getEnv("DEFAULT_BLOCK_DURATION", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_BLOCK_DURATION: %w", err)
	}

	connectRetries, err := strconv.Atoi(getEnv("ACCOUNT_CONNECT_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNT_CONNECT_RETRIES: %w", err)
	}

	connectBackoff, err := time.ParseDuration(getEnv("ACCOUNT_CONNECT_BACKOFF", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNT_CONNECT_BACKOFF: %w", err)
	}

	maxConcurrent, err := strconv.Atoi(getEnv("ACCOUNT_MAX_CONCURRENT_INIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNT_MAX_CONCURRENT_INIT: %w", err)
	}

	refreshInterval, err := time.ParseDuration(getEnv("MEMBER_REFRESH_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid MEMBER_REFRESH_INTERVAL: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	brokers := []string{}
	if brokersStr := getEnv("KAFKA_BROKERS", ""); brokersStr != "" {
		brokers = strings.Split(brokersStr, ",")
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:          apiID,
			APIHash:        getEnv("TELEGRAM_API_HASH", ""),
			SessionDir:     getEnv("TELEGRAM_SESSION_DIR", "./sessions"),
			ConnectRetries: connectRetries,
			ConnectBackoff: connectBackoff,
			MaxConcurrent:  maxConcurrent,
		},
		Bot: BotConfig{
			Token:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminUserIDs: adminIDs,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DATABASE_HOST", "localhost"),
			Port:     getEnv("DATABASE_PORT", "5432"),
			User:     getEnv("DATABASE_USER", "memberly_user"),
			Password: getEnv("DATABASE_PASSWORD", "memberly_pass"),
			DBName:   getEnv("DATABASE_NAME", "memberly_db"),
			SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:       brokers,
			TopicAttempts: getEnv("KAFKA_TOPIC_ATTEMPTS", "invite.attempts"),
		},
		Cooldown: CooldownConfig{
			UserWindow:      userWindow,
			TargetWindow:    targetWindow,
			InterTargetGap:  interTargetGap,
			DefaultBlockFor: blockFor,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "memberly"),
			Port:            getEnv("SERVICE_PORT", "8086"),
			ShutdownTimeout: shutdownTimeout,
		},
		Collector: CollectorConfig{
			Interval: refreshInterval,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration. Missing credentials are fatal at
// startup; the service never partially starts.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID is required")
	}

	if c.Telegram.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	if c.Bot.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	if c.Cooldown.UserWindow <= 0 {
		return fmt.Errorf("INVITE_COOLDOWN must be positive")
	}

	if c.Cooldown.TargetWindow <= 0 {
		return fmt.Errorf("TARGET_COOLDOWN must be positive")
	}

	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseInt64List(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not a user id: %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}
