// ABOUTME: Store selection for CLI and MCP commands based on the configured mode
// ABOUTME: Lives here because it imports every adapter package
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/harperreed/crmdesk/charm"
	"github.com/harperreed/crmdesk/config"
	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/ipc"
	"github.com/harperreed/crmdesk/local"
	"github.com/harperreed/crmdesk/remote"
	"github.com/harperreed/crmdesk/store"
	"github.com/harperreed/crmdesk/synced"
)

// out is where commands print; tests replace it.
var out io.Writer = os.Stdout

// OpenStore returns the Store for cfg.Mode. The caller closes it.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Mode {
	case config.ModeSQLite:
		s, err := db.Open(ctx, db.Options{DatabaseURL: cfg.DatabaseURL, Path: cfg.DBPath})
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return s, nil

	case config.ModeIPC:
		if cfg.IPCToken == "" {
			return nil, fmt.Errorf("ipc mode requires the backend session token (CRMDESK_IPC_TOKEN)")
		}
		c, err := ipc.Dial(ctx, "ws://"+cfg.IPCAddr, cfg.IPCToken)
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.ModeLocal:
		a, err := openLocal(ctx)
		if err != nil {
			return nil, err
		}
		return a, nil

	case config.ModeRemote:
		return remote.New(cfg.RemoteURL, cfg.RemoteToken), nil

	case config.ModeSynced:
		l, err := openLocal(ctx)
		if err != nil {
			return nil, err
		}
		a := synced.Open(ctx, l, remote.New(cfg.RemoteURL, cfg.RemoteToken), store.LogNotifier{})
		if a.Online() {
			if _, err := a.Pull(ctx); err != nil {
				log.Printf("Warning: initial pull failed: %v", err)
			}
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

func openLocal(ctx context.Context) (*local.Adapter, error) {
	kvCfg, err := charm.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kv config: %w", err)
	}
	kv, err := charm.Open(kvCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store: %w", err)
	}
	a, err := local.Open(ctx, kv, local.Options{})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return a, nil
}

// OpenController opens the configured Store and loads the dataset.
func OpenController(ctx context.Context, cfg *config.Config) (*crm.Controller, func(), error) {
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	ctrl := crm.NewController(store.NewCRM(s))
	if _, err := ctrl.Refresh(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("failed to load data: %w", err)
	}
	return ctrl, func() { _ = s.Close() }, nil
}

func parseID(args []string, what string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s ID is required", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %w", what, err)
	}
	return id, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
