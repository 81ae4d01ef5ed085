// ABOUTME: Long-running server commands
// ABOUTME: serve runs the REST API; backend runs the loopback IPC bridge for desktop clients
package cli

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harperreed/crmdesk/config"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/ipc"
	"github.com/harperreed/crmdesk/web"
)

// ServeCommand runs the REST API until interrupted.
func ServeCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.String("port", cfg.Port, "Port to listen on")
	origins := fs.String("origins", "", "Comma-separated CORS origins (default: all)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := db.Open(ctx, db.Options{DatabaseURL: cfg.DatabaseURL, Path: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = s.Close() }()

	webCfg := web.Config{JWTSecret: cfg.JWTSecret}
	if *origins != "" {
		for _, o := range strings.Split(*origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				webCfg.AllowedOrigins = append(webCfg.AllowedOrigins, o)
			}
		}
	}

	srv := web.NewServer(s, webCfg)
	return srv.ListenAndServe(ctx, net.JoinHostPort("", *port))
}

// BackendCommand runs the IPC bridge over the SQLite file until interrupted.
func BackendCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("backend", flag.ExitOnError)
	addr := fs.String("addr", cfg.IPCAddr, "Loopback address to listen on")
	dbPath := fs.String("db-path", cfg.DBPath, "SQLite database file")
	_ = fs.Parse(args)

	token := cfg.IPCToken
	if token == "" {
		generated, err := ipc.NewToken()
		if err != nil {
			return err
		}
		token = generated
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, err := ipc.NewBridge(*dbPath, token)
	if err != nil {
		return err
	}
	defer func() { _ = bridge.Close() }()

	fmt.Fprintf(out, "CRMDESK_IPC_TOKEN=%s\n", token)
	return bridge.ListenAndServe(ctx, *addr)
}
