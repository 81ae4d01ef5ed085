// ABOUTME: CLI commands for the cloud-synced KV backend
// ABOUTME: Link, status, manual sync and wipe for the local dataset blob storage

package charm

import (
	"flag"
	"fmt"
)

// SyncLinkCommand switches the local adapter to Charm KV and tests the connection.
// Charm authenticates with SSH keys, so there is no login step.
func SyncLinkCommand(args []string) error {
	fs := flag.NewFlagSet("kv link", flag.ExitOnError)
	host := fs.String("host", "", "Charm server host")
	_ = fs.Parse(args)

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *host != "" {
		cfg.Host = *host
	}

	fmt.Printf("Linking to Charm Cloud (%s)...\n", cfg.Host)

	c, err := NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Sync(); err != nil {
		return fmt.Errorf("link failed: %w", err)
	}

	cfg.Backend = BackendCharm
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if id, err := c.ID(); err != nil {
		fmt.Println("✓ Device linked (ID unavailable)")
	} else {
		fmt.Printf("✓ Linked to account: %s\n", id)
	}
	fmt.Printf("✓ Auto-sync: %v\n", cfg.AutoSync)
	return nil
}

// SyncUnlinkCommand switches the local adapter back to on-disk badger storage.
func SyncUnlinkCommand(args []string) error {
	fs := flag.NewFlagSet("kv unlink", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Backend = BackendBadger
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✓ Local data now stored in %s\n", cfg.Dir)
	fmt.Println("Data already synced to Charm Cloud stays there.")
	return nil
}

// SyncStatusCommand shows current KV configuration.
func SyncStatusCommand(args []string) error {
	fs := flag.NewFlagSet("kv status", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("KV Storage Status")
	fmt.Println("─────────────────")
	fmt.Printf("Backend:   %s\n", cfg.Backend)

	if cfg.Backend == BackendBadger {
		fmt.Printf("Directory: %s\n", cfg.Dir)
		return nil
	}

	fmt.Printf("Server:    %s\n", cfg.Host)
	fmt.Printf("Auto-sync: %v\n", cfg.AutoSync)

	c, err := NewClient(cfg)
	if err != nil {
		fmt.Println("\nStatus: Not connected")
		return nil //nolint:nilerr // not connected is a valid state, not an error
	}
	defer func() { _ = c.Close() }()

	if id, err := c.ID(); err != nil {
		fmt.Println("\nStatus: Connected (ID unavailable)")
	} else {
		fmt.Println("\nStatus: Connected to Charm Cloud")
		fmt.Printf("ID:        %s\n", id)
	}
	if keys, err := c.Keys(); err == nil {
		fmt.Printf("Keys:      %d\n", len(keys))
	}
	return nil
}

// SyncNowCommand performs an immediate sync.
func SyncNowCommand(args []string) error {
	fs := flag.NewFlagSet("kv sync", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Backend != BackendCharm {
		return fmt.Errorf("kv backend is %s; run 'crmdesk kv link' first", cfg.Backend)
	}

	c, err := NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Println("✓ Synced")
	return nil
}

// SetAutoSyncCommand enables or disables auto-sync.
func SetAutoSyncCommand(args []string) error {
	fs := flag.NewFlagSet("kv auto", flag.ExitOnError)
	enable := fs.Bool("enable", false, "Enable auto-sync")
	disable := fs.Bool("disable", false, "Disable auto-sync")
	_ = fs.Parse(args)

	if *enable == *disable {
		fmt.Println("Usage: crmdesk kv auto --enable|--disable")
		return nil
	}

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.SetAutoSync(*enable); err != nil {
		return fmt.Errorf("failed to save auto-sync: %w", err)
	}
	if *enable {
		fmt.Println("✓ Auto-sync enabled")
	} else {
		fmt.Println("✓ Auto-sync disabled")
	}
	return nil
}

// SyncWipeCommand deletes every key in the configured KV store.
func SyncWipeCommand(args []string) error {
	fs := flag.NewFlagSet("kv wipe", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "Confirm data wipe")
	_ = fs.Parse(args)

	if !*confirm {
		fmt.Println("WARNING: This will delete ALL local data, including the backup!")
		fmt.Println()
		fmt.Println("To confirm, run:")
		fmt.Println("  crmdesk kv wipe --confirm")
		return nil
	}

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	resetter, ok := store.(interface{ Reset() error })
	if !ok {
		return fmt.Errorf("kv backend %s cannot be reset", cfg.Backend)
	}
	if err := resetter.Reset(); err != nil {
		return fmt.Errorf("failed to reset KV store: %w", err)
	}

	fmt.Println("✓ All data wiped")
	fmt.Println("The next start will load the demo dataset.")
	return nil
}
