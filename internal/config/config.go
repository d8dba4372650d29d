// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryWindow      = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultOperationTimeout    = 30 * time.Second
	DefaultRetryInitialBackoff = 100 * time.Millisecond
	DefaultRetryMaxBackoff     = 5 * time.Second
	DefaultDeadLetterTTL       = 7 * 24 * time.Hour
	DefaultSweepSchedule       = "@every 1m"
	DefaultReplayRPS           = 10
	DefaultReplayBurst         = 1
	DefaultReplayConcurrency   = 4
	DefaultReplayMaxAttempts   = 10
)

// Config holds the configuration for the command core and its dead-letter store.
type Config struct {
	DBPath   string // SQLite file for dead letters; empty keeps them in memory
	LogLevel string // log level: debug, info, warn, error (default "info")
	Env      string // environment: "development" (default) or "production"

	// Circuit breaker and retry defaults.
	FailureThreshold    int
	RecoveryWindow      time.Duration
	MaxRetries          int
	OperationTimeout    time.Duration
	RetryInitialBackoff time.Duration // 0 retries immediately
	RetryMaxBackoff     time.Duration

	// Dead-letter retention and replay.
	DeadLetterTTL     time.Duration
	SweepSchedule     string // cron spec; "off" disables the sweeper
	ReplayRPS         float64
	ReplayBurst       int
	ReplayConcurrency int
	ReplayMaxAttempts int // 0 never discards

	// PolicyFile is an optional YAML file of per-operation overrides.
	PolicyFile string
	Policies   map[string]OperationPolicy

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SweeperEnabled reports whether the background expiry sweep should run.
func (c *Config) SweeperEnabled() bool {
	return c.SweepSchedule != "" && !strings.EqualFold(c.SweepSchedule, "off")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []error
	if c.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("ACS_BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.FailureThreshold))
	}
	if c.RecoveryWindow <= 0 {
		errs = append(errs, fmt.Errorf("ACS_BREAKER_RECOVERY_WINDOW must be positive, got %s", c.RecoveryWindow))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("ACS_MAX_RETRIES must not be negative, got %d", c.MaxRetries))
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ACS_OPERATION_TIMEOUT must be positive, got %s", c.OperationTimeout))
	}
	if c.RetryInitialBackoff < 0 || c.RetryMaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff must not be negative"))
	}
	if c.RetryInitialBackoff > 0 && c.RetryMaxBackoff > 0 && c.RetryInitialBackoff > c.RetryMaxBackoff {
		errs = append(errs, fmt.Errorf("ACS_RETRY_INITIAL_BACKOFF (%s) exceeds ACS_RETRY_MAX_BACKOFF (%s)",
			c.RetryInitialBackoff, c.RetryMaxBackoff))
	}
	if c.DeadLetterTTL <= 0 {
		errs = append(errs, fmt.Errorf("ACS_DEAD_LETTER_TTL must be positive, got %s", c.DeadLetterTTL))
	}
	if c.ReplayConcurrency < 1 {
		errs = append(errs, fmt.Errorf("ACS_REPLAY_CONCURRENCY must be at least 1, got %d", c.ReplayConcurrency))
	}
	if c.ReplayMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("ACS_REPLAY_MAX_ATTEMPTS must not be negative, got %d", c.ReplayMaxAttempts))
	}
	for name, p := range c.Policies {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// LoadFromEnv loads configuration from environment variables and the
// optional policy file.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:        strings.TrimSpace(os.Getenv("ACS_DB_PATH")),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
		SweepSchedule: os.Getenv("ACS_DEAD_LETTER_SWEEP_SCHEDULE"),
		PolicyFile:    os.Getenv("ACS_POLICY_FILE"),
	}

	cfg.FailureThreshold = cfg.intEnv("ACS_BREAKER_FAILURE_THRESHOLD", DefaultFailureThreshold)
	cfg.RecoveryWindow = cfg.durationEnv("ACS_BREAKER_RECOVERY_WINDOW", DefaultRecoveryWindow)
	cfg.MaxRetries = cfg.intEnv("ACS_MAX_RETRIES", DefaultMaxRetries)
	cfg.OperationTimeout = cfg.durationEnv("ACS_OPERATION_TIMEOUT", DefaultOperationTimeout)
	cfg.RetryInitialBackoff = cfg.durationEnv("ACS_RETRY_INITIAL_BACKOFF", DefaultRetryInitialBackoff)
	cfg.RetryMaxBackoff = cfg.durationEnv("ACS_RETRY_MAX_BACKOFF", DefaultRetryMaxBackoff)
	cfg.DeadLetterTTL = cfg.durationEnv("ACS_DEAD_LETTER_TTL", DefaultDeadLetterTTL)
	cfg.ReplayRPS = cfg.floatEnv("ACS_REPLAY_RPS", DefaultReplayRPS)
	cfg.ReplayBurst = cfg.intEnv("ACS_REPLAY_BURST", DefaultReplayBurst)
	cfg.ReplayConcurrency = cfg.intEnv("ACS_REPLAY_CONCURRENCY", DefaultReplayConcurrency)
	cfg.ReplayMaxAttempts = cfg.intEnv("ACS_REPLAY_MAX_ATTEMPTS", DefaultReplayMaxAttempts)

	// Defaults
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.DBPath == "" {
		cfg.Warnings = append(cfg.Warnings, "ACS_DB_PATH not set; dead letters are kept in memory and lost on exit")
	}

	if cfg.PolicyFile != "" {
		policies, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policies = policies.Operations
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() && cfg.DBPath == "" {
		return nil, fmt.Errorf("ACS_DB_PATH must be set in production (ENV=production)")
	}

	return cfg, nil
}

func (c *Config) intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not an integer; using %d", key, v, def))
		return def
	}
	return n
}

func (c *Config) floatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a number; using %g", key, v, def))
		return def
	}
	return f
}

func (c *Config) durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a duration; using %s", key, v, def))
		return def
	}
	return d
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
