// ABOUTME: Key-value storage used by the local persistence adapter
// ABOUTME: Badger on disk by default, Charm KV when cloud-synced storage is wanted
package charm

import "errors"

// ErrKeyNotFound is returned by Get for a key that has never been set.
var ErrKeyNotFound = errors.New("key not found")

// KV is the minimal byte store the local adapter persists its dataset blob into.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Close() error
}
