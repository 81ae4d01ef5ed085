// ABOUTME: BadgerDB-backed KV store in a local directory
// ABOUTME: Used by default for the local adapter and by tests through NewTestKV

package charm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v3"
)

// BadgerKV stores keys in a badger database on disk.
type BadgerKV struct {
	db     *badger.DB
	closed sync.Once
	err    error
}

// DefaultBadgerDir is where the local dataset lives when no path is configured.
func DefaultBadgerDir() string {
	return filepath.Join(xdg.DataHome, AppName, "kv")
}

// OpenBadger opens (creating if needed) a badger database in dir.
func OpenBadger(dir string) (*BadgerKV, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create kv dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Get(key []byte) ([]byte, error) {
	var result []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return result, err
}

func (b *BadgerKV) Set(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *BadgerKV) Delete(key []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Keys returns every stored key.
func (b *BadgerKV) Keys() ([][]byte, error) {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Reset drops every key.
func (b *BadgerKV) Reset() error {
	return b.db.DropAll()
}

// Close is safe to call more than once.
func (b *BadgerKV) Close() error {
	b.closed.Do(func() { b.err = b.db.Close() })
	return b.err
}

// NewTestKV opens a badger store in a per-test temp dir that is closed on cleanup.
func NewTestKV(t testing.TB) *BadgerKV {
	t.Helper()

	kv, err := OpenBadger(filepath.Join(t.TempDir(), AppName))
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := kv.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})
	return kv
}
