// ABOUTME: Configuration for the KV backend behind the local adapter
// ABOUTME: Chooses badger or Charm KV and carries the Charm server settings

package charm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName names the Charm KV database and the xdg data directory.
	AppName = "crmdesk"

	// ConfigFileName is where we store local config.
	ConfigFileName = "kv-config.json"
)

// Backend names.
const (
	BackendBadger = "badger"
	BackendCharm  = "charm"
)

// Config holds KV backend settings.
type Config struct {
	// Backend is "badger" (default) or "charm"
	Backend string `json:"backend,omitempty"`

	// Dir is the badger directory (default: xdg data dir)
	Dir string `json:"dir,omitempty"`

	// Host is the charm server hostname (default: charm.2389.dev)
	Host string `json:"host,omitempty"`

	// AutoSync enables automatic sync after every write operation
	AutoSync bool `json:"auto_sync"`
}

// DefaultConfig returns a new config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:  BackendBadger,
		Dir:      DefaultBadgerDir(),
		Host:     DefaultCharmHost,
		AutoSync: true,
	}
}

func configPath() (string, error) {
	dataDir := filepath.Join(xdg.DataHome, AppName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// LoadConfig loads config from disk, or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return DefaultConfig(), nil //nolint:nilerr // defaults when the data dir is unavailable
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), nil //nolint:nilerr // invalid file falls back to defaults
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
	if c.Dir == "" {
		c.Dir = DefaultBadgerDir()
	}
	if c.Host == "" {
		c.Host = DefaultCharmHost
	}
}

// Save persists the config to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// SetAutoSync enables or disables auto-sync and saves.
func (c *Config) SetAutoSync(enabled bool) error {
	c.AutoSync = enabled
	return c.Save()
}

// Open returns the KV store selected by cfg.
func Open(cfg *Config) (KV, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()

	switch cfg.Backend {
	case BackendBadger:
		return OpenBadger(cfg.Dir)
	case BackendCharm:
		return NewClient(cfg)
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
	}
}
