// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (optional; shared rate limit state). Empty disables Redis and
	// falls back to per-instance in-memory rate limiting.
	RedisAddr string `koanf:"redis_addr"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Salt mixed into listener IP addresses before hashing. Raw addresses
	// are never stored, so this must stay stable across deploys or dedup
	// breaks at every rotation.
	PlayHashSalt string `koanf:"play_hash_salt"`

	// Rate limiting (requests per minute)
	GlobalRateLimit int `koanf:"global_rate_limit"`
	RecordRateLimit int `koanf:"record_rate_limit"`

	// CORS allowed origins, comma-separated. Empty disables CORS handling.
	CORSOrigins string `koanf:"cors_origins"`
}

// CORSOriginList splits the configured origins into a trimmed list.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret    = errors.New("JWT_SECRET is required")
	ErrMissingPlayHashSalt = errors.New("PLAY_HASH_SALT is required")
	ErrInvalidPort         = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort            = 8080
	DefaultEnv             = "development"
	DefaultGlobalRateLimit = 100
	DefaultRecordRateLimit = 30
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try TIPTUNE_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"TIPTUNE_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	globalLimit, globalErr := getEnvIntOrDefault("GLOBAL_RATE_LIMIT", k.Int("global_rate_limit"), DefaultGlobalRateLimit)
	if globalErr != nil {
		loadErrs = append(loadErrs, globalErr)
	}

	recordLimit, recordErr := getEnvIntOrDefault("RECORD_RATE_LIMIT", k.Int("record_rate_limit"), DefaultRecordRateLimit)
	if recordErr != nil {
		loadErrs = append(loadErrs, recordErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:            port,
		Env:             getEnvOrDefaultMulti([]string{"TIPTUNE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:     getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:       getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		JWTSecret:       getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		PlayHashSalt:    getEnvOrKoanf("PLAY_HASH_SALT", k, "play_hash_salt"),
		GlobalRateLimit: globalLimit,
		RecordRateLimit: recordLimit,
		CORSOrigins:     getEnvOrKoanf("CORS_ORIGINS", k, "cors_origins"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.PlayHashSalt == "" {
		errs = append(errs, ErrMissingPlayHashSalt)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":              fmt.Sprintf("%d", c.Port),
		"env":               c.Env,
		"database_url":      maskDatabaseURL(c.DatabaseURL),
		"redis_addr":        c.RedisAddr,
		"jwt_secret":        maskSecret(c.JWTSecret),
		"play_hash_salt":    maskSecret(c.PlayHashSalt),
		"global_rate_limit": fmt.Sprintf("%d", c.GlobalRateLimit),
		"record_rate_limit": fmt.Sprintf("%d", c.RecordRateLimit),
		"cors_origins":      c.CORSOrigins,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
