// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server on stdio; keeps synced mode pulling and local data backed up
package cli

import (
	"context"
	"log"
	"time"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/handlers"
	"github.com/harperreed/crmdesk/local"
	"github.com/harperreed/crmdesk/store"
	"github.com/harperreed/crmdesk/synced"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(ctx context.Context, ctrl *crm.Controller, version string, syncInterval time.Duration) error {
	log.Println("Starting crmdesk MCP server...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	startAutoBackup(ctx, ctrl.CRM().Store(), local.DefaultBackupInterval)
	if a, ok := ctrl.CRM().Store().(*synced.Adapter); ok {
		go a.Run(ctx, syncInterval, func() {
			if _, err := ctrl.Refresh(ctx); err != nil {
				log.Printf("Warning: failed to reload after pull: %v", err)
			}
		})
	}

	server := handlers.NewServer(ctrl, version)
	return server.Run(ctx, &mcp.StdioTransport{})
}

// startAutoBackup runs the periodic snapshot when s keeps its data in a local
// adapter, directly or behind synced mode. It reports whether one was started.
func startAutoBackup(ctx context.Context, s store.Store, interval time.Duration) bool {
	var l *local.Adapter
	switch v := s.(type) {
	case *local.Adapter:
		l = v
	case *synced.Adapter:
		l, _ = v.Local().(*local.Adapter)
	}
	if l == nil {
		return false
	}
	l.StartAutoBackup(ctx, interval)
	return true
}
