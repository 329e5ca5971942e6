// Package config loads the client configuration from
// ~/.config/atuin/config.toml with ATUIN_* environment overrides, and
// manages the small pieces of durable client state: the session file and
// the persistent host identity.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

const defaultSyncAddress = "http://localhost:8888"

// Config is the client config stored at ~/.config/atuin/config.toml.
type Config struct {
	SyncAddress  string `toml:"sync_address"`
	AutoSync     *bool  `toml:"auto_sync"`     // nil = default true
	SyncInterval string `toml:"sync_interval"` // duration string, default "5m"
	SecretPhrase string `toml:"secret_phrase"` // optional; prompted when absent
}

// Session stores login state at <data dir>/session.json.
type Session struct {
	Session   string `json:"session"`
	Username  string `json:"username"`
	ServerURL string `json:"server_url"`
}

// ConfigDir returns the config directory, creating it if necessary.
// Override with ATUIN_CONFIG_DIR.
func ConfigDir() (string, error) {
	if v := os.Getenv("ATUIN_CONFIG_DIR"); v != "" {
		if err := os.MkdirAll(v, 0755); err != nil {
			return "", fmt.Errorf("create config dir: %w", err)
		}
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "atuin")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// DataDir returns the data directory holding the local database, session
// and host identity. Override with ATUIN_DATA_DIR.
func DataDir() (string, error) {
	if v := os.Getenv("ATUIN_DATA_DIR"); v != "" {
		if err := os.MkdirAll(v, 0755); err != nil {
			return "", fmt.Errorf("create data dir: %w", err)
		}
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".local", "share", "atuin")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

// Load reads config.toml, returning defaults when the file is absent.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	var cfg Config
	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.toml: %w", err)
	}
	return &cfg, nil
}

// Save writes config.toml.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "config.toml"))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// SyncAddress returns the sync server URL.
// Priority: ATUIN_SYNC_ADDRESS env > config.toml > default.
func SyncAddress() string {
	if v := os.Getenv("ATUIN_SYNC_ADDRESS"); v != "" {
		return v
	}
	cfg, err := Load()
	if err == nil && cfg.SyncAddress != "" {
		return cfg.SyncAddress
	}
	return defaultSyncAddress
}

// SecretPhrase returns the encryption phrase if configured.
// Priority: ATUIN_SECRET_PHRASE env > config.toml. Empty means the caller
// must prompt.
func SecretPhrase() string {
	if v := os.Getenv("ATUIN_SECRET_PHRASE"); v != "" {
		return v
	}
	cfg, err := Load()
	if err == nil {
		return cfg.SecretPhrase
	}
	return ""
}

// AutoSyncEnabled returns whether commands trigger background sync.
// Priority: ATUIN_AUTO_SYNC env > config.toml > true.
func AutoSyncEnabled() bool {
	if v := strings.ToLower(os.Getenv("ATUIN_AUTO_SYNC")); v != "" {
		return v == "1" || v == "true"
	}
	cfg, err := Load()
	if err == nil && cfg.AutoSync != nil {
		return *cfg.AutoSync
	}
	return true
}

// SyncInterval returns the periodic sync interval.
// Priority: ATUIN_SYNC_INTERVAL env > config.toml > 5m.
func SyncInterval() time.Duration {
	if v := os.Getenv("ATUIN_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	cfg, err := Load()
	if err == nil && cfg.SyncInterval != "" {
		if d, err := time.ParseDuration(cfg.SyncInterval); err == nil {
			return d
		}
	}
	return 5 * time.Minute
}

// LoadSession reads the session file, returning nil when logged out.
func LoadSession() (*Session, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession writes the session file (0600 perms).
func SaveSession(s *Session) error {
	dir, err := DataDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "session.json"), data, 0600)
}

// ClearSession removes the session file.
func ClearSession() error {
	dir, err := DataDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "session.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// HostID returns this machine's persistent identity, generating and
// persisting a fresh UUID on first use.
func HostID() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "host_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist host id: %w", err)
	}
	return id, nil
}
