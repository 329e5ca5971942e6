package api

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration
	AllowSignup     bool
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	RateLimitAuth int // /register and /login per IP per minute (default: 10)
	RateLimitPush int // POST /history per session per minute (default: 60)
	RateLimitPull int // GET /history per session per minute (default: 120)
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8888",
		DBPath:          "./data/server.db",
		ShutdownTimeout: 30 * time.Second,
		AllowSignup:     true,
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitAuth: 10,
		RateLimitPush: 60,
		RateLimitPull: 120,
	}

	if v := os.Getenv("ATUIN_SERVER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ATUIN_SERVER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ATUIN_SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("ATUIN_SERVER_OPEN_REGISTRATION"); v == "false" || v == "0" {
		cfg.AllowSignup = false
	}
	if v := os.Getenv("ATUIN_SERVER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("ATUIN_SERVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("ATUIN_SERVER_RATE_LIMIT_AUTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitAuth = n
		}
	}
	if v := os.Getenv("ATUIN_SERVER_RATE_LIMIT_PUSH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPush = n
		}
	}
	if v := os.Getenv("ATUIN_SERVER_RATE_LIMIT_PULL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPull = n
		}
	}

	return cfg
}
