// ABOUTME: Raw storage for writes a composite adapter still owes the cloud server
// ABOUTME: Kept under its own KV key so dataset saves and restores never touch it
package local

import (
	"errors"
	"fmt"

	"github.com/harperreed/crmdesk/charm"
)

// OutboxKey holds the encoded queue of unmirrored writes.
const OutboxKey = "crmdesk:outbox"

// LoadOutbox returns the stored outbox, or nil when there is none.
func (a *Adapter) LoadOutbox() ([]byte, error) {
	data, err := a.kv.Get([]byte(OutboxKey))
	if errors.Is(err, charm.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	return data, nil
}

// SaveOutbox replaces the stored outbox. Empty data removes the key.
func (a *Adapter) SaveOutbox(data []byte) error {
	if len(data) == 0 {
		err := a.kv.Delete([]byte(OutboxKey))
		if err != nil && !errors.Is(err, charm.ErrKeyNotFound) {
			return fmt.Errorf("failed to clear outbox: %w", err)
		}
		return nil
	}
	if err := a.kv.Set([]byte(OutboxKey), data); err != nil {
		return fmt.Errorf("failed to save outbox: %w", err)
	}
	return nil
}
