package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port             string
	Storage          string
	PostgresURL      string
	DBMaxOpenConns   int
	RedisURL         string
	KafkaBrokers     []string
	OrderEventsTopic string
	CheckoutTimeout  time.Duration
	ShutdownTimeout  time.Duration
	OTLPEndpoint     string
	MigrationsPath   string
}

// WorkerConfig configures the confirmation worker.
type WorkerConfig struct {
	KafkaBrokers        []string
	OrderEventsTopic    string
	ConsumerGroup       string
	MaxDeliveryAttempts int
	RetryBackoff        time.Duration
	OTLPEndpoint        string
	EmailServiceURL     string
	EmailDomain         string
}

// Load reads the configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Storage:          getEnv("STORAGE", StoragePostgres),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order.placed"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "file://migrations"),
	}

	var err error
	if cfg.CheckoutTimeout, err = getDuration("CHECKOUT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("POSTGRES_URL environment variable is required when STORAGE=postgres")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}

	return cfg, nil
}

// LoadWorker reads the worker configuration from the environment.
func LoadWorker() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order.placed"),
		ConsumerGroup:    getEnv("WORKER_GROUP_ID", "confirmation-worker"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		EmailServiceURL:  os.Getenv("EMAIL_SERVICE_URL"),
		EmailDomain:      getEnv("EMAIL_DOMAIN", "example.com"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS environment variable is required")
	}
	if cfg.EmailServiceURL == "" {
		return nil, errors.New("EMAIL_SERVICE_URL environment variable is required")
	}

	var err error
	if cfg.MaxDeliveryAttempts, err = getInt("WORKER_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.MaxDeliveryAttempts < 1 {
		return nil, fmt.Errorf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxDeliveryAttempts)
	}
	if cfg.RetryBackoff, err = getDuration("WORKER_RETRY_BACKOFF", time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
