package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/eugenenazirov/keyflat/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultMaxDepth       = 256
	defaultMaxEntries     = 1 << 20
	defaultMaxBodyBytes   = 1 << 20
	defaultLogLevel       = "info"

	// EnvPrefix is the prefix shared by all environment variables.
	EnvPrefix = "KEYFLAT_"
)

// envKeys maps environment variables to configuration keys. Variables not
// listed here are ignored.
var envKeys = map[string]string{
	"KEYFLAT_PORT":                   "port",
	"KEYFLAT_SHUTDOWN_GRACE_PERIOD":  "shutdown_grace_period",
	"KEYFLAT_READ_HEADER_TIMEOUT":    "read_header_timeout",
	"KEYFLAT_WRITE_TIMEOUT":          "write_timeout",
	"KEYFLAT_IDLE_TIMEOUT":           "idle_timeout",
	"KEYFLAT_ENABLE_REQUEST_LOGGING": "enable_request_logging",
	"KEYFLAT_LOG_LEVEL":              "log_level",
	"KEYFLAT_RATE_LIMIT_RPS":         "rate_limit.rps",
	"KEYFLAT_RATE_LIMIT_BURST":       "rate_limit.burst",
	"KEYFLAT_MAX_DEPTH":              "max_depth",
	"KEYFLAT_MAX_ENTRIES":            "max_entries",
	"KEYFLAT_MAX_BODY_BYTES":         "max_body_bytes",
	"KEYFLAT_STORE_CAPACITY":         "store.capacity",
}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	LogLevel             string
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxDepth             int
	MaxEntries           int
	MaxBodyBytes         int64
	StoreCapacity        int
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	MaxDepth       *int
	MaxEntries     *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()
	k := koanf.New(".")

	// Environment first so that the YAML file overrides it
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if overrides != nil && overrides.ConfigFile != "" {
		if err := k.Load(file.Provider(overrides.ConfigFile), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
	}

	if err := applySources(&cfg, k); err != nil {
		return Config{}, err
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		LogLevel:             defaultLogLevel,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		MaxDepth:             defaultMaxDepth,
		MaxEntries:           defaultMaxEntries,
		MaxBodyBytes:         defaultMaxBodyBytes,
		StoreCapacity:        storage.DefaultCapacity(),
	}
}

func envKey(name string) string {
	return envKeys[name]
}

// applySources copies every key present in k onto cfg.
func applySources(cfg *Config, k *koanf.Koanf) error {
	if k.Exists("port") {
		if port := strings.TrimSpace(k.String("port")); port != "" {
			cfg.Port = port
		}
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"shutdown_grace_period", &cfg.ShutdownGracePeriod},
		{"read_header_timeout", &cfg.ReadHeaderTimeout},
		{"write_timeout", &cfg.WriteTimeout},
		{"idle_timeout", &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if !k.Exists(d.key) {
			continue
		}
		value, err := time.ParseDuration(strings.TrimSpace(k.String(d.key)))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.target = value
	}

	if k.Exists("enable_request_logging") {
		value, err := strconv.ParseBool(strings.TrimSpace(k.String("enable_request_logging")))
		if err != nil {
			return fmt.Errorf("parse enable_request_logging: %w", err)
		}
		cfg.EnableRequestLogging = value
	}

	if k.Exists("log_level") {
		cfg.LogLevel = strings.TrimSpace(k.String("log_level"))
	}

	if k.Exists("rate_limit.rps") {
		value, err := strconv.ParseFloat(strings.TrimSpace(k.String("rate_limit.rps")), 64)
		if err != nil {
			return fmt.Errorf("parse rate_limit.rps: %w", err)
		}
		cfg.RateLimitRPS = value
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"rate_limit.burst", &cfg.RateLimitBurst},
		{"max_depth", &cfg.MaxDepth},
		{"max_entries", &cfg.MaxEntries},
		{"store.capacity", &cfg.StoreCapacity},
	}
	for _, i := range ints {
		if !k.Exists(i.key) {
			continue
		}
		value, err := strconv.Atoi(strings.TrimSpace(k.String(i.key)))
		if err != nil {
			return fmt.Errorf("parse %s: %w", i.key, err)
		}
		*i.target = value
	}

	if k.Exists("max_body_bytes") {
		value, err := strconv.ParseInt(strings.TrimSpace(k.String("max_body_bytes")), 10, 64)
		if err != nil {
			return fmt.Errorf("parse max_body_bytes: %w", err)
		}
		cfg.MaxBodyBytes = value
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.MaxDepth != nil && *overrides.MaxDepth >= 0 {
		cfg.MaxDepth = *overrides.MaxDepth
	}

	if overrides.MaxEntries != nil && *overrides.MaxEntries >= 0 {
		cfg.MaxEntries = *overrides.MaxEntries
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit.rps must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate_limit.burst must be >= 0")
	}
	if cfg.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0")
	}
	if cfg.MaxEntries < 0 {
		return fmt.Errorf("max_entries must be >= 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be > 0")
	}
	if cfg.StoreCapacity <= 0 {
		return fmt.Errorf("store.capacity must be > 0")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
