// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const insecureSealingKey = "0000000000000000000000000000000000000000000000000000000000000000"

// Config holds the configuration for the provisioning control plane.
type Config struct {
	StoreDBPath string // path to the SQLite system-of-record file
	ListenAddr  string // HTTP listen address (default ":8080")
	LogLevel    string // log level: debug, info, warn, error (default "info")
	Env         string // environment: "development" (default) or "production"

	// External database engine (PostgreSQL).
	PGAdminDSN  string // admin DSN pointing at the maintenance database
	PGAdminRole string // role that takes database ownership during locks
	EngineLabel string // server label recorded on database resources

	// External Git host (Gitea).
	GitBaseURL    string // base URL of the Git host API
	GitAdminToken string // admin token
	GitRepoOwner  string // service account that owns participant repositories
	GitLabel      string // server label recorded on repository resources

	// Secrets.
	SealingKey string // 64-char hex string (32-byte AES key) sealing stored credentials
	JWTSecret  string // HS256 shared secret for bearer-token auth

	// Sweep behavior.
	ProvisionPace time.Duration // minimum gap between external calls in a sweep
	SweepCron     string        // cron spec of the consistency sweep, empty disables it

	// Rate limiting.
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS.
	CORSAllowedOrigins []string // allowed origins (default: ["*"])

	// SeedDemo creates a demo event, module, and participants at startup.
	SeedDemo bool

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

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		StoreDBPath:   os.Getenv("STORE_DB_PATH"),
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
		PGAdminDSN:    os.Getenv("PG_ADMIN_DSN"),
		PGAdminRole:   os.Getenv("PG_ADMIN_ROLE"),
		EngineLabel:   os.Getenv("ENGINE_LABEL"),
		GitBaseURL:    os.Getenv("GIT_BASE_URL"),
		GitAdminToken: os.Getenv("GIT_ADMIN_TOKEN"),
		GitRepoOwner:  os.Getenv("GIT_REPO_OWNER"),
		GitLabel:      os.Getenv("GIT_LABEL"),
		SealingKey:    os.Getenv("SEALING_KEY"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SweepCron:     os.Getenv("SWEEP_CRON"),
		SeedDemo:      parseBoolEnvDefault("SEED_DEMO", false),
	}

	if v := os.Getenv("PROVISION_PACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProvisionPace = d
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.StoreDBPath == "" {
		cfg.StoreDBPath = "sandboxd.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PGAdminRole == "" {
		cfg.PGAdminRole = "sandbox_admin"
	}
	if cfg.EngineLabel == "" {
		cfg.EngineLabel = "pg-default"
	}
	if cfg.GitLabel == "" {
		cfg.GitLabel = "git-default"
	}
	if cfg.ProvisionPace == 0 {
		cfg.ProvisionPace = 100 * time.Millisecond
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.SealingKey == "" {
		cfg.SealingKey = insecureSealingKey
		cfg.Warnings = append(cfg.Warnings, "SEALING_KEY not set — using insecure default. Set SEALING_KEY in production!")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set — using insecure default. Set JWT_SECRET in production!")
	}
	if cfg.PGAdminDSN == "" {
		cfg.Warnings = append(cfg.Warnings, "PG_ADMIN_DSN not set — database provisioning will be unavailable")
	}
	if cfg.GitBaseURL == "" || cfg.GitAdminToken == "" {
		cfg.Warnings = append(cfg.Warnings, "GIT_BASE_URL/GIT_ADMIN_TOKEN not set — repository provisioning will be unavailable")
	}
	if cfg.GitRepoOwner == "" {
		cfg.GitRepoOwner = "sandbox-svc"
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.SealingKey == insecureSealingKey {
			return nil, fmt.Errorf("SEALING_KEY must be set in production (ENV=production)")
		}
		if cfg.JWTSecret == "dev-secret" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production (ENV=production)")
		}
		if cfg.PGAdminDSN == "" {
			return nil, fmt.Errorf("PG_ADMIN_DSN must be set in production (ENV=production)")
		}
		if cfg.GitBaseURL == "" || cfg.GitAdminToken == "" {
			return nil, fmt.Errorf("GIT_BASE_URL and GIT_ADMIN_TOKEN must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
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
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
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
