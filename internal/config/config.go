package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	App      AppConfig
	Worker   WorkerConfig
	Schedule ScheduleConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// RedisConfig is optional; an empty Addr selects the in-process locker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AppConfig holds application configuration
type AppConfig struct {
	Port               int
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
}

// WorkerConfig tunes the outbox dispatcher and transaction retries.
type WorkerConfig struct {
	Count              int
	OutboxPollInterval time.Duration
	TaskTimeout        time.Duration
	TaskMaxAttempts    int
	TxMaxAttempts      int
}

// ScheduleConfig holds the cron jobs. Expressions use the standard five
// fields.
type ScheduleConfig struct {
	VacancyScanInterval time.Duration
	HolidayExchangeCron string
	WorkerExchangeCron  string
}

func Load() (*Config, error) {
	// A missing .env is fine: the worker usually runs with a real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := &Config{}
	var errs []error
	intEnv := func(key, fallback string) int {
		v, err := strconv.Atoi(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	durationEnv := func(key, fallback string) time.Duration {
		v, err := time.ParseDuration(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}

	// Database configuration
	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     intEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "timetable"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(intEnv("DB_MAX_CONNS", "25")),
	}

	config.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       intEnv("REDIS_DB", "0"),
	}

	// Application configuration
	config.App = AppConfig{
		Port:               intEnv("APP_PORT", "8080"),
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	config.Worker = WorkerConfig{
		Count:              intEnv("WORKER_COUNT", "4"),
		OutboxPollInterval: durationEnv("OUTBOX_POLL_INTERVAL", "2s"),
		TaskTimeout:        durationEnv("TASK_TIMEOUT", "5m"),
		TaskMaxAttempts:    intEnv("TASK_MAX_ATTEMPTS", "5"),
		TxMaxAttempts:      intEnv("TX_MAX_ATTEMPTS", "3"),
	}

	config.Schedule = ScheduleConfig{
		VacancyScanInterval: durationEnv("VACANCY_SCAN_INTERVAL", "30m"),
		HolidayExchangeCron: getEnv("HOLIDAY_EXCHANGE_CRON", "0 3 * * *"),
		WorkerExchangeCron:  getEnv("WORKER_EXCHANGE_CRON", "15 * * * *"),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.Worker.TaskMaxAttempts <= 0 {
		return fmt.Errorf("TASK_MAX_ATTEMPTS must be positive")
	}
	if c.Worker.TxMaxAttempts <= 0 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be positive")
	}
	if c.Worker.OutboxPollInterval <= 0 || c.Worker.TaskTimeout <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL and TASK_TIMEOUT must be positive")
	}
	if c.Schedule.VacancyScanInterval < time.Minute {
		return fmt.Errorf("VACANCY_SCAN_INTERVAL must be at least 1m")
	}
	for key, expr := range map[string]string{
		"HOLIDAY_EXCHANGE_CRON": c.Schedule.HolidayExchangeCron,
		"WORKER_EXCHANGE_CRON":  c.Schedule.WorkerExchangeCron,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
