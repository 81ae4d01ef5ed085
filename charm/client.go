// ABOUTME: Charm KV backend for the local adapter's dataset, backup and outbox keys
// ABOUTME: Writes push to the Charm server right away when auto-sync is on
package charm

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"
)

// Client is a KV backed by a Charm KV database named AppName.
type Client struct {
	mu       sync.RWMutex
	db       *kv.KV
	autoSync bool
}

var _ KV = (*Client)(nil)

// NewClient opens the Charm KV database on cfg.Host and pulls remote changes
// when auto-sync is on.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	// charm reads its server from the environment.
	_ = os.Setenv("CHARM_HOST", cfg.Host)

	db, err := kv.OpenWithDefaults(AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv on %s: %w", cfg.Host, err)
	}
	c := &Client{db: db, autoSync: cfg.AutoSync}
	if c.autoSync {
		if err := db.Sync(); err != nil {
			log.Printf("Warning: initial charm sync failed: %v", err)
		}
	}
	return c, nil
}

// ID is the Charm account id of this device's key.
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	return cc.ID()
}

func (c *Client) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Sync()
}

func (c *Client) Get(key []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, err := c.db.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (c *Client) Set(key, value []byte) error {
	return c.write(func() error { return c.db.Set(key, value) })
}

func (c *Client) Delete(key []byte) error {
	return c.write(func() error { return c.db.Delete(key) })
}

// write applies fn and, with auto-sync on, pushes before releasing the lock
// so two writers never interleave their syncs.
func (c *Client) write(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	if c.autoSync {
		if err := c.db.Sync(); err != nil {
			log.Printf("Warning: charm sync failed: %v", err)
		}
	}
	return nil
}

// Keys lists every stored key; kv status reports the count.
func (c *Client) Keys() ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db.Keys()
}

// Reset drops every key locally and on the server. Used by kv wipe.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Reset()
}

// Close does nothing; charm/kv keeps its badger handle until exit.
func (c *Client) Close() error {
	return nil
}
