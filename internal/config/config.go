package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	// PublicURL is where Telegram and the processor reach this service.
	PublicURL string `envconfig:"PUBLIC_URL" validate:"omitempty,url"`

	BotToken           string `envconfig:"BOT_TOKEN" validate:"required"`
	LifetimeCredential string `envconfig:"LIFETIME_CREDENTIAL"`
	TargetPattern      string `envconfig:"TARGET_PATTERN"`
	PlansFile          string `envconfig:"PLANS_FILE"`

	Session  SessionConfig
	Binding  BindingConfig
	Payments PaymentsConfig
	Workers  WorkersConfig
}

type SessionConfig struct {
	Backend       string        `envconfig:"SESSION_BACKEND" default:"memory" validate:"oneof=memory redis"`
	TTL           time.Duration `envconfig:"SESSION_TTL" default:"24h" validate:"gt=0"`
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     string        `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	RedisPrefix   string        `envconfig:"REDIS_PREFIX" default:"paygate"`
}

func (s SessionConfig) RedisAddr() string {
	return s.RedisHost + ":" + s.RedisPort
}

type BindingConfig struct {
	Backend string        `envconfig:"BINDING_BACKEND" default:"memory" validate:"oneof=memory postgres"`
	TTL     time.Duration `envconfig:"BINDING_TTL" default:"24h" validate:"gt=0"`
	// PostgresDSN may be empty; the store then builds one from POSTGRES_*.
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
}

type PaymentsConfig struct {
	APIKey      string        `envconfig:"NOWPAYMENTS_API_KEY" validate:"required"`
	BaseURL     string        `envconfig:"NOWPAYMENTS_BASE_URL" default:"https://api.nowpayments.io" validate:"url"`
	PayCurrency string        `envconfig:"PAY_CURRENCY"`
	Timeout     time.Duration `envconfig:"PAYMENTS_TIMEOUT" default:"15s" validate:"gt=0"`
}

type WorkersConfig struct {
	Workers       int           `envconfig:"WORKERS" default:"4" validate:"gt=0"`
	QueueSize     int           `envconfig:"QUEUE_SIZE" default:"256" validate:"gt=0"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m" validate:"gte=0"`
	// InvoiceConcurrency caps in-flight invoice creations.
	InvoiceConcurrency int `envconfig:"INVOICE_CONCURRENCY" default:"16" validate:"gt=0"`
}

// PaymentCallbackURL is the IPN endpoint advertised to the processor.
func (c *Config) PaymentCallbackURL() string {
	if c.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(c.PublicURL, "/") + "/nowpayments"
}

func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load reads the first existing env file, then the process environment, and
// validates the result. Variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range envFiles {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		break
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}
