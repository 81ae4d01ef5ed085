// ABOUTME: Periodic snapshot of the local dataset to a second KV key
// ABOUTME: RestoreBackup replaces live state wholesale after confirmation
package local

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/harperreed/crmdesk/charm"
)

// Backup writes the current dataset to BackupKey.
func (a *Adapter) Backup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.encodeLocked()
	if err != nil {
		return err
	}
	if err := a.kv.Set([]byte(BackupKey), data); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// StartAutoBackup snapshots the dataset every interval until ctx is done or
// the adapter is closed. Calling it again replaces the running loop.
func (a *Adapter) StartAutoBackup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBackupInterval
	}
	a.StopAutoBackup()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.stopBackup = cancel
	a.backupDone = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.Backup(ctx); err != nil {
					log.Printf("Warning: auto-backup failed: %v", err)
				}
			}
		}
	}()
}

// StopAutoBackup stops the backup loop and waits for it to exit.
func (a *Adapter) StopAutoBackup() {
	a.mu.Lock()
	cancel, done := a.stopBackup, a.backupDone
	a.stopBackup, a.backupDone = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// RestoreBackup loads the backup blob and, if confirm returns true, makes it
// the live dataset. It reports whether the restore happened.
func (a *Adapter) RestoreBackup(ctx context.Context, confirm func(savedAt time.Time) bool) (bool, error) {
	data, err := a.kv.Get([]byte(BackupKey))
	if errors.Is(err, charm.ErrKeyNotFound) {
		return false, ErrNoBackup
	}
	if err != nil {
		return false, fmt.Errorf("failed to read backup: %w", err)
	}

	doc, err := decodeBlob(data)
	if err != nil {
		return false, fmt.Errorf("backup is unreadable: %w", err)
	}
	restored := ValidateAndMigrate(doc)

	if confirm != nil && !confirm(restored.LastSaved) {
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	previous := a.state
	a.state = restored
	if err := a.saveLocked(); err != nil {
		a.state = previous
		return false, err
	}
	return true, nil
}
