// Package config loads chatlog configuration from the environment and an
// optional YAML file, and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSurrealDB = "surrealdb"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

// Config holds all configuration values.
type Config struct {
	// Backend selects the conversation repository.
	Backend string `yaml:"backend"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`
	MaxUpdateAttempts  int    `yaml:"max_update_attempts"` // 0 retries until the request context ends

	// Postgres connection
	PostgresURL      string `yaml:"postgres_url"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`

	// Redis summary cache; empty disables it.
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// HTTP
	ListenAddr string `yaml:"listen_addr"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables. If CHATLOG_CONFIG
// names a YAML file, its values are applied first and the environment
// overrides them.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CHATLOG_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Backend: BackendSurrealDB,

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "chatlog",
		SurrealDBDatabase:  "chatlog",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		PostgresMaxConns: 10,
		CacheTTL:         30 * time.Second,

		ListenAddr: ":8484",

		LogFile:  "/tmp/chatlog.log",
		LogLevel: slog.LevelInfo,
	}
}

// fileConfig mirrors Config for YAML decoding. The log level is kept as a
// string so it can be parsed like the environment value.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = fc.Config
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Backend = getEnv("CHATLOG_BACKEND", c.Backend)

	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	c.PostgresURL = getEnv("POSTGRES_URL", c.PostgresURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.ListenAddr = getEnv("CHATLOG_LISTEN_ADDR", c.ListenAddr)
	c.LogFile = getEnv("CHATLOG_LOG_FILE", c.LogFile)

	if v := os.Getenv("CHATLOG_LOG_LEVEL"); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv("CHATLOG_MAX_UPDATE_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATLOG_MAX_UPDATE_ATTEMPTS: %w", err)
		}
		c.MaxUpdateAttempts = n
	}
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("POSTGRES_MAX_CONNS: %w", err)
		}
		c.PostgresMaxConns = int32(n)
	}
	if v := os.Getenv("CHATLOG_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CHATLOG_CACHE_TTL: %w", err)
		}
		c.CacheTTL = d
	}
	return nil
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSurrealDB:
		if c.SurrealDBURL == "" {
			return fmt.Errorf("backend %q requires SURREALDB_URL", c.Backend)
		}
		if c.MaxUpdateAttempts < 0 {
			return fmt.Errorf("max update attempts must not be negative, got %d", c.MaxUpdateAttempts)
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("backend %q requires POSTGRES_URL", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.RedisURL != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
