package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "GiftCard"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultRefundLockTTL   = 30 * time.Second
	defaultRefundLockWait  = 5 * time.Second
	defaultSweepInterval   = time.Minute
	defaultSweepBatchSize  = 500
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	refundLockTTLEnvVar    = "REFUND_LOCK_TTL"
	refundLockWaitEnvVar   = "REFUND_LOCK_WAIT"
	sweepIntervalEnvVar    = "SWEEP_INTERVAL"
	sweepBatchSizeEnvVar   = "SWEEP_BATCH_SIZE"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	RefundLockTTL  time.Duration
	RefundLockWait time.Duration // 0 tries the refund lock once
	SweepInterval  time.Duration
	SweepBatchSize int
}

// Load reads configuration values from the environment and populates a Config instance.
// DATABASE_URL and REDIS_URL may be omitted in development, where the
// service falls back to in-memory storage and locking.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		RefundLockTTL:  defaultRefundLockTTL,
		RefundLockWait: defaultRefundLockWait,
		SweepInterval:  defaultSweepInterval,
		SweepBatchSize: defaultSweepBatchSize,
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefundLockTTL, err = duration(refundLockTTLEnvVar, cfg.RefundLockTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefundLockWait, err = duration(refundLockWaitEnvVar, cfg.RefundLockWait); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = duration(sweepIntervalEnvVar, cfg.SweepInterval); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(sweepBatchSizeEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be a positive integer", sweepBatchSizeEnvVar)
		}
		cfg.SweepBatchSize = n
	}

	if cfg.RefundLockWait < 0 {
		return Config{}, fmt.Errorf("%s must not be negative", refundLockWaitEnvVar)
	}
	if cfg.RefundLockTTL <= cfg.RefundLockWait {
		return Config{}, fmt.Errorf("%s must exceed %s", refundLockTTLEnvVar, refundLockWaitEnvVar)
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in a local/dev environment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// secondsOrDuration prefers an integer seconds variable over a Go duration one.
func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationKey, fallback)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
