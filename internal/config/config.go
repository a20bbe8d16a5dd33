// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server and the worker
type Config struct {
	Server   ServerConfig
	Temporal TemporalConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
	Booking  BookingConfig

	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type TemporalConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// DatabaseConfig holds database configuration. An explicit URL wins over
// the individual parts.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	Seed     bool
	SeedDays int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	CacheTTL  time.Duration
	KeyPrefix string
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	RetryMax int
}

type PaymentConfig struct {
	BaseURL     string
	FailureRate float64
	MaxAttempts int
	HoldFor     time.Duration
	Delay       time.Duration
}

type BookingConfig struct {
	SessionTTL     time.Duration
	SearchDebounce time.Duration
	TimeZone       string
}

// Load reads an optional env file and then the environment. Missing files
// are not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceEnv("ALLOWED_ORIGINS", []string{"*"}),
		},
		Temporal: TemporalConfig{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			TaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "train-booking-queue"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "train_booking"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("DB_MAX_CONNS", 10),
			Seed:     getBoolEnv("DB_SEED", true),
			SeedDays: getIntEnv("DB_SEED_DAYS", 14),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getIntEnv("REDIS_DB", 0),
			CacheTTL:  getDurationEnv("REDIS_CACHE_TTL", 5*time.Minute),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "train"),
		},
		Kafka: KafkaConfig{
			Brokers:  getStringSliceEnv("KAFKA_BROKERS", nil),
			Topic:    getEnv("KAFKA_TOPIC", "booking-events"),
			RetryMax: getIntEnv("KAFKA_RETRY_MAX", 5),
		},
		Payment: PaymentConfig{
			BaseURL:     getEnv("PAYMENT_BASE_URL", "http://localhost:3000/payment"),
			FailureRate: getFloatEnv("PAYMENT_FAILURE_RATE", 0.15),
			MaxAttempts: getIntEnv("PAYMENT_MAX_ATTEMPTS", 3),
			HoldFor:     getDurationEnv("SEAT_HOLD_DURATION", 15*time.Minute),
			Delay:       getDurationEnv("PAYMENT_DELAY", 500*time.Millisecond),
		},
		Booking: BookingConfig{
			SessionTTL:     getDurationEnv("SESSION_TTL", 30*time.Minute),
			SearchDebounce: getDurationEnv("SEARCH_DEBOUNCE", 300*time.Millisecond),
			TimeZone:       getEnv("TZ_LOCATION", "Asia/Jakarta"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Payment.FailureRate < 0 || cfg.Payment.FailureRate > 1 {
		return nil, fmt.Errorf("PAYMENT_FAILURE_RATE must be between 0 and 1, got %v", cfg.Payment.FailureRate)
	}
	return cfg, nil
}

// DSN returns the connection string for pgx.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Location resolves the booking time zone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Address returns the listen address of the HTTP server.
func (s ServerConfig) Address() string {
	return ":" + strings.TrimPrefix(s.Port, ":")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getStringSliceEnv splits a comma-separated variable, dropping blanks
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
