package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is all runtime configuration, read once at startup and passed down
// explicitly. Thresholds and windows live here rather than in globals so
// the coordinator and detector get them at construction.
type Config struct {
	DatabaseURL string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Validation bounds.
	MaxAmount decimal.Decimal
	ClockSkew time.Duration

	// Anomaly thresholds.
	SuspiciousAmount decimal.Decimal
	VelocityMaxCount int
	VelocityWindow   time.Duration

	// Adapter behavior.
	RetryInterval time.Duration
	MetricsAddr   string
}

// Load reads configuration from the environment, after loading a local .env
// file when one exists. It is for binaries that open a store, so
// DATABASE_URL is required; broker-only binaries use LoadKafka.
func Load() (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

// LoadKafka reads configuration for binaries that only talk to the broker
// and never open the database.
func LoadKafka() (*Config, error) {
	return fromEnv()
}

func fromEnv() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: strings.Split(envDefault("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:   envDefault("KAFKA_TOPIC", "transactions"),
		KafkaGroupID: envDefault("KAFKA_GROUP_ID", "txingest"),
		MetricsAddr:  envDefault("METRICS_ADDR", ":8080"),
	}

	var err error
	if cfg.MaxAmount, err = envDecimal("MAX_AMOUNT", "1000000"); err != nil {
		return nil, err
	}
	if cfg.SuspiciousAmount, err = envDecimal("SUSPICIOUS_AMOUNT", "10000"); err != nil {
		return nil, err
	}
	if cfg.ClockSkew, err = envDuration("CLOCK_SKEW", "5m"); err != nil {
		return nil, err
	}
	if cfg.VelocityWindow, err = envDuration("VELOCITY_WINDOW", "1m"); err != nil {
		return nil, err
	}
	if cfg.RetryInterval, err = envDuration("RETRY_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if cfg.VelocityMaxCount, err = envInt("VELOCITY_MAX_COUNT", "10"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDecimal(key, fallback string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(envDefault(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	v, err := time.ParseDuration(envDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envInt(key, fallback string) (int, error) {
	v, err := strconv.Atoi(envDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
