// ABOUTME: Backup, restore and export CLI commands
// ABOUTME: Dispatches to whichever backup mechanism the active Store supports
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/ipc"
	"github.com/harperreed/crmdesk/local"
	"github.com/harperreed/crmdesk/store"
)

// in is where confirmations are read from; tests replace it.
var in io.Reader = os.Stdin

// BackupCommand snapshots the active database.
func BackupCommand(ctx context.Context, s store.Store, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	_ = fs.Parse(args)

	switch b := s.(type) {
	case *db.Store:
		path, err := b.Backup(ctx)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Fprintf(out, "✓ Backup written: %s\n", path)
	case *ipc.Client:
		path, err := b.Backup(ctx)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Fprintf(out, "✓ Backup written: %s\n", path)
	case *local.Adapter:
		if err := b.Backup(ctx); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Fprintln(out, "✓ Backup saved to the local store")
	default:
		return fmt.Errorf("backups are not supported for this mode: %w", db.ErrBackupUnsupported)
	}
	return nil
}

// RestoreBackupCommand replaces the local dataset with its last backup.
func RestoreBackupCommand(ctx context.Context, s store.Store, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	_ = fs.Parse(args)

	a, ok := s.(*local.Adapter)
	if !ok {
		return fmt.Errorf("restore is only available in local mode")
	}

	restored, err := a.RestoreBackup(ctx, func(savedAt time.Time) bool {
		if *yes {
			return true
		}
		return confirm(fmt.Sprintf("Replace all data with the backup from %s?", savedAt.Local().Format(time.RFC1123)))
	})
	if errors.Is(err, local.ErrNoBackup) {
		fmt.Fprintln(out, "No backup found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if !restored {
		fmt.Fprintln(out, "Restore cancelled")
		return nil
	}
	fmt.Fprintln(out, "✓ Backup restored")
	return nil
}

func confirm(prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// ExportCommand writes the whole dataset, minus password hashes, as JSON.
func ExportCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	if *output == "" {
		return ctrl.CRM().Export(ctx, out)
	}

	f, err := os.OpenFile(*output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *output, err)
	}
	defer func() { _ = f.Close() }()

	if err := ctrl.CRM().Export(ctx, f); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintf(out, "✓ Exported to %s\n", *output)
	return nil
}
