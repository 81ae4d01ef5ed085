// ABOUTME: Process configuration: optional .env, JSON file at XDG paths, then environment overrides
// ABOUTME: Selects the active Store mode; the KV backend for local mode has its own file in package charm
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Store modes.
const (
	ModeIPC    = "ipc"
	ModeSQLite = "sqlite"
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeSynced = "synced"
)

const AppName = "crmdesk"

type Config struct {
	Mode string `json:"mode"`

	// DBPath is the SQLite file for sqlite mode, the backend and the cloud server.
	DBPath      string `json:"db_path"`
	DatabaseURL string `json:"database_url,omitempty"`

	RemoteURL   string `json:"remote_url,omitempty"`
	RemoteToken string `json:"remote_token,omitempty"`
	// SyncIntervalSeconds is how often synced mode pulls from the server.
	SyncIntervalSeconds int `json:"sync_interval_seconds,omitempty"`

	IPCAddr  string `json:"ipc_addr"`
	IPCToken string `json:"ipc_token,omitempty"`

	Port      string `json:"port"`
	JWTSecret string `json:"jwt_secret,omitempty"`

	LogFile string `json:"log_file,omitempty"`
}

// Dir is the XDG data directory for crmdesk.
func Dir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Path is where the config file lives.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Default returns the configuration used when nothing is stored.
func Default() *Config {
	return &Config{
		Mode:                ModeSQLite,
		DBPath:              filepath.Join(Dir(), "crm.db"),
		SyncIntervalSeconds: 30,
		IPCAddr:             "127.0.0.1:7733",
		Port:                "8080",
	}
}

// Load reads .env (if present), the config file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read .env: %v", err)
	}
	return LoadFrom(Path())
}

// LoadFrom reads the config file at path. A missing file yields defaults.
// Environment variables override file values.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer func() { _ = f.Close() }()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"CRMDESK_MODE", &cfg.Mode},
		{"CRMDESK_DB_PATH", &cfg.DBPath},
		{"CRMDESK_REMOTE_URL", &cfg.RemoteURL},
		{"CRMDESK_REMOTE_TOKEN", &cfg.RemoteToken},
		{"CRMDESK_IPC_ADDR", &cfg.IPCAddr},
		{"CRMDESK_IPC_TOKEN", &cfg.IPCToken},
		{"CRMDESK_LOG_FILE", &cfg.LogFile},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"PORT", &cfg.Port},
		{"JWT_SECRET", &cfg.JWTSecret},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("CRMDESK_SYNC_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncIntervalSeconds = n
		}
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
}

// Validate checks the mode and the settings it needs.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSQLite, ModeLocal, ModeIPC:
	case ModeRemote, ModeSynced:
		if c.RemoteURL == "" {
			return fmt.Errorf("mode %s requires a remote URL (CRMDESK_REMOTE_URL)", c.Mode)
		}
	default:
		return fmt.Errorf("unknown mode %q (want ipc, sqlite, local, remote or synced)", c.Mode)
	}
	return nil
}

// Save writes the config file with owner-only permissions.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
