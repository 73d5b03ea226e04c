package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8080"
	defaultDuration       = 30 * time.Second
	defaultMaxDuration    = 60 * time.Second
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultRunRetention   = 100
	defaultLogLevel       = "info"
)

// maxDurationSeconds is the largest whole-second count a time.Duration holds.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// secondsToDuration converts a budget in whole seconds, rejecting values that
// would overflow time.Duration.
func secondsToDuration(seconds int) (time.Duration, error) {
	if s := int64(seconds); s > maxDurationSeconds || s < -maxDurationSeconds {
		return 0, fmt.Errorf("duration of %d seconds is out of range", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	// Duration is the solve budget used by the CLI and by API requests that
	// do not ask for one.
	Duration time.Duration
	LogLevel string

	Port                 string
	MaxDuration          time.Duration
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	RunRetention         int
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Duration  *int       `yaml:"duration"`
	LogLevel  string     `yaml:"log_level"`
	Server    yamlServer `yaml:"server"`
	RateLimit *yamlRate  `yaml:"rate_limit"`
}

type yamlServer struct {
	Port                 string `yaml:"port"`
	MaxDuration          string `yaml:"max_duration"`
	ShutdownGracePeriod  string `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string `yaml:"read_header_timeout"`
	WriteTimeout         string `yaml:"write_timeout"`
	IdleTimeout          string `yaml:"idle_timeout"`
	EnableRequestLogging *bool  `yaml:"enable_request_logging"`
	RunRetention         *int   `yaml:"run_retention"`
}

// yamlRate represents the rate limit section in YAML.
type yamlRate struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides. Nil fields were not set.
type CLIOverrides struct {
	ConfigFile      string
	DurationSeconds *int
	LogLevel        *string
	Port            *string
	RateLimitRPS    *float64
	RateLimitBurst  *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	applyEnvConfig(&cfg)

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, fmt.Errorf("apply CLI flags: %w", err)
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Duration:             defaultDuration,
		LogLevel:             defaultLogLevel,
		Port:                 defaultPort,
		MaxDuration:          defaultMaxDuration,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         defaultMaxDuration + 15*time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		RunRetention:         defaultRunRetention,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Duration != nil {
		d, err := secondsToDuration(*yamlCfg.Duration)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = d
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	srv := yamlCfg.Server
	if srv.Port != "" {
		cfg.Port = srv.Port
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.max_duration", srv.MaxDuration, &cfg.MaxDuration},
		{"server.shutdown_grace_period", srv.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"server.read_header_timeout", srv.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"server.write_timeout", srv.WriteTimeout, &cfg.WriteTimeout},
		{"server.idle_timeout", srv.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if srv.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *srv.EnableRequestLogging
	}
	if srv.RunRetention != nil {
		cfg.RunRetention = *srv.RunRetention
	}

	if yamlCfg.RateLimit != nil {
		if yamlCfg.RateLimit.RPS >= 0 {
			cfg.RateLimitRPS = yamlCfg.RateLimit.RPS
		}
		if yamlCfg.RateLimit.Burst >= 0 {
			cfg.RateLimitBurst = yamlCfg.RateLimit.Burst
		}
	}
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv("SOLVE_DURATION")); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil {
			if d, err := secondsToDuration(seconds); err == nil {
				cfg.Duration = d
			}
		}
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.DurationSeconds != nil {
		d, err := secondsToDuration(*overrides.DurationSeconds)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = d
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
	return nil
}

// validateConfig validates the final configuration. A non-positive Duration
// is allowed and makes the solver return its greedy answer.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive")
	}
	if cfg.RunRetention <= 0 {
		return fmt.Errorf("run retention must be positive")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.LogLevel)
	}
	return nil
}
