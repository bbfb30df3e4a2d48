// Package config содержит логику чтения конфигурации сервиса кошельков.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultPaystackBaseURL = "https://api.paystack.co"
	defaultKafkaTopic      = "ledger-events"
)

// Config содержит параметры конфигурации сервиса кошельков.
type Config struct {
	RunAddress            string          `env:"RUN_ADDRESS"`
	DatabaseURI           string          `env:"DATABASE_URI"`
	PaystackBaseURL       string          `env:"PAYSTACK_BASE_URL"`
	PaystackSecretKey     string          `env:"PAYSTACK_SECRET_KEY"`
	PaystackWebhookSecret string          `env:"PAYSTACK_WEBHOOK_SECRET"`
	GatewayTimeout        time.Duration   `env:"GATEWAY_TIMEOUT"`
	MinDeposit            decimal.Decimal `env:"MIN_DEPOSIT"`
	AuthSecret            string          `env:"AUTH_SECRET"`
	AdminUserIDs          string          `env:"ADMIN_USER_IDS"`
	RedisAddress          string          `env:"REDIS_ADDRESS"`
	KafkaBrokers          string          `env:"KAFKA_BROKERS"`
	KafkaTopic            string          `env:"KAFKA_TOPIC"`
	ReverifyInterval      time.Duration   `env:"REVERIFY_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store if empty")
	flag.StringVar(&cfg.PaystackBaseURL, "g", defaultPaystackBaseURL, "payment gateway base URL")
	flag.StringVar(&cfg.PaystackSecretKey, "k", "", "payment gateway secret key")
	flag.StringVar(&cfg.PaystackWebhookSecret, "w", "", "webhook signing secret, defaults to gateway secret key")
	flag.DurationVar(&cfg.GatewayTimeout, "t", 10*time.Second, "payment verification timeout")
	flag.TextVar(&cfg.MinDeposit, "m", decimal.NewFromInt(1000), "minimum deposit amount")
	flag.StringVar(&cfg.AuthSecret, "s", "", "auth token signing secret")
	flag.StringVar(&cfg.AdminUserIDs, "admins", "", "comma-separated administrator user ids")
	flag.StringVar(&cfg.RedisAddress, "redis", "", "redis address for event notifications")
	flag.StringVar(&cfg.KafkaBrokers, "kafka", "", "comma-separated kafka brokers for event notifications")
	flag.StringVar(&cfg.KafkaTopic, "topic", defaultKafkaTopic, "kafka topic for event notifications")
	flag.DurationVar(&cfg.ReverifyInterval, "reverify", time.Minute, "pending deposit reverification interval, 0 disables")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PaystackWebhookSecret == "" {
		cfg.PaystackWebhookSecret = cfg.PaystackSecretKey
	}
	if cfg.MinDeposit.IsNegative() {
		return nil, fmt.Errorf("minimum deposit must not be negative: %s", cfg.MinDeposit)
	}

	return cfg, nil
}

// Brokers возвращает список брокеров Kafka.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
