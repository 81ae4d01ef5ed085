// ABOUTME: On-demand snapshot of the SQLite database file
// ABOUTME: Copies the checkpointed file to a timestamped sibling, no rotation
package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var ErrBackupUnsupported = errors.New("backup is only supported for SQLite database files")

// BackupPath is the sibling file name used for a snapshot taken at t.
func BackupPath(path string, t time.Time) string {
	return fmt.Sprintf("%s.backup.%s", path, t.Format("20060102-150405"))
}

// Backup checkpoints the WAL and copies the database file next to itself.
func (s *Store) Backup(ctx context.Context) (string, error) {
	if s.dialect.Name() != "sqlite" || s.path == "" || s.path == ":memory:" {
		return "", ErrBackupUnsupported
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("failed to checkpoint database: %w", err)
	}

	dest := BackupPath(s.path, time.Now())
	if err := CopyFile(s.path, dest); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return dest, nil
}

// CopyFile copies src to dest, creating or truncating dest.
func CopyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
