// ABOUTME: Entry point for the crmdesk backend, cloud server, MCP server and CLI
// ABOUTME: Routes to a long-running server or a CLI command based on arguments
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harperreed/crmdesk/charm"
	"github.com/harperreed/crmdesk/cli"
	"github.com/harperreed/crmdesk/config"
	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/logging"
	"github.com/harperreed/crmdesk/store"
)

const version = "0.2.0"

type crmCommand func(ctx context.Context, ctrl *crm.Controller, args []string) error

var crmCommands = map[string]crmCommand{
	"add-contact":       cli.AddContactCommand,
	"list-contacts":     cli.ListContactsCommand,
	"update-contact":    cli.UpdateContactCommand,
	"delete-contact":    cli.DeleteContactCommand,
	"add-company":       cli.AddCompanyCommand,
	"list-companies":    cli.ListCompaniesCommand,
	"promote-company":   cli.PromoteCompanyCommand,
	"delete-company":    cli.DeleteCompanyCommand,
	"add-deal":          cli.AddDealCommand,
	"list-deals":        cli.ListDealsCommand,
	"delete-deal":       cli.DeleteDealCommand,
	"add-engagement":    cli.AddEngagementCommand,
	"list-engagements":  cli.ListEngagementsCommand,
	"delete-engagement": cli.DeleteEngagementCommand,
	"log":               cli.LogActivityCommand,
}

type storeCommand func(ctx context.Context, s store.Store, args []string) error

var storeCommands = map[string]storeCommand{
	"backup":       cli.BackupCommand,
	"create-admin": cli.CreateAdminCommand,
}

var kvCommands = map[string]func(args []string) error{
	"link":   charm.SyncLinkCommand,
	"unlink": charm.SyncUnlinkCommand,
	"status": charm.SyncStatusCommand,
	"now":    charm.SyncNowCommand,
	"auto":   charm.SetAutoSyncCommand,
	"wipe":   charm.SyncWipeCommand,
}

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	mode := flag.String("mode", "", "Persistence mode: sqlite, ipc, local, remote or synced")
	dbPath := flag.String("db-path", "", "SQLite database path (default: ~/.local/share/crmdesk/crm.db)")
	logFile := flag.String("log-file", "", "Write logs to a rotating file")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("crmdesk version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if cfg.LogFile != "" {
		closer := logging.SetupFile(logging.FileOptions{Path: cfg.LogFile, Stderr: true})
		defer func() { _ = closer.Close() }()
	}

	if err := run(context.Background(), cfg, args[0], args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	switch command {
	case "version":
		fmt.Printf("crmdesk version %s\n", version)
		return nil

	case "backend":
		return cli.BackendCommand(ctx, cfg, args)

	case "serve":
		return cli.ServeCommand(ctx, cfg, args)

	case "login":
		return cli.LoginCommand(ctx, cfg, args)

	case "mcp":
		ctrl, closeStore, err := cli.OpenController(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return cli.MCPCommand(ctx, ctrl, version, time.Duration(cfg.SyncIntervalSeconds)*time.Second)

	case "export":
		ctrl, closeStore, err := cli.OpenController(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return cli.ExportCommand(ctx, ctrl, args)

	case "crm":
		if len(args) == 0 {
			printUsage()
			return fmt.Errorf("crm requires a subcommand")
		}
		if args[0] == "restore-backup" {
			return withStore(ctx, cfg, cli.RestoreBackupCommand, args[1:])
		}
		sub, ok := crmCommands[args[0]]
		if !ok {
			printUsage()
			return fmt.Errorf("unknown crm command: %s", args[0])
		}
		ctrl, closeStore, err := cli.OpenController(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		return sub(ctx, ctrl, args[1:])

	case "kv":
		if len(args) == 0 {
			printUsage()
			return fmt.Errorf("kv requires a subcommand")
		}
		sub, ok := kvCommands[args[0]]
		if !ok {
			printUsage()
			return fmt.Errorf("unknown kv command: %s", args[0])
		}
		return sub(args[1:])
	}

	if sub, ok := storeCommands[command]; ok {
		return withStore(ctx, cfg, sub, args)
	}

	printUsage()
	return fmt.Errorf("unknown command: %s", command)
}

func withStore(ctx context.Context, cfg *config.Config, cmd storeCommand, args []string) error {
	s, err := cli.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return cmd(ctx, s, args)
}

func printUsage() {
	fmt.Printf(`crmdesk v%s - consulting CRM backend, server and CLI

USAGE:
  crmdesk [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --mode <mode>          sqlite, ipc, local, remote or synced (default: sqlite)
  --db-path <path>       SQLite database path (default: ~/.local/share/crmdesk/crm.db)
  --log-file <path>      Write logs to a rotating file

COMMANDS:
  backend                Run the loopback IPC bridge over the SQLite database
    --addr <host:port>        Listen address (default: 127.0.0.1:7733)
  serve                  Run the REST API
    --port <port>             Port (default: $PORT or 8080)
    --origins <list>          Comma-separated CORS origins
  mcp                    Start MCP server on stdio
  login                  Sign in to a cloud server and save the token
    --url <url> --email <email> [--password <pw>]
  create-admin           Create an administrator account
    --name <name> --email <email> [--password <pw>]
  backup                 Snapshot the active database
  export                 Write every collection as JSON
    --output <file>           Output file (default: stdout)
  kv <link|unlink|status|now|auto|wipe>
                         Manage the synced key-value store used by local mode

CRM COMMANDS:
  crmdesk crm add-contact --name <name> [--email --phone --company --job-title --notes]
  crmdesk crm list-contacts [--query <text>] [--company <name>] [--limit <n>]
  crmdesk crm update-contact [flags] <id>
  crmdesk crm delete-contact <id>
  crmdesk crm log [--type <type>] --content <text> <contact-id>

  crmdesk crm add-company --name <name> [--website --industry --size]
  crmdesk crm list-companies [--virtual]
  crmdesk crm promote-company [--website --industry --size] <virtual-id>
  crmdesk crm delete-company <id>

  crmdesk crm add-deal --title <title> [--company --value --stage --probability --close-date --contact]
  crmdesk crm list-deals [--stage <stage>]
  crmdesk crm delete-deal <id>

  crmdesk crm add-engagement --client <name> [--service --start --end --resources a,b]
  crmdesk crm list-engagements [--client <name>]
  crmdesk crm delete-engagement <id>

  crmdesk crm restore-backup [--yes]   Restore the last local backup (local mode)

  Note: flags must come before positional IDs

EXAMPLES:
  # Run the desktop backend and point the CLI at it
  crmdesk backend
  CRMDESK_MODE=ipc CRMDESK_IPC_TOKEN=<token> crmdesk crm list-contacts

  # Run the cloud server on Postgres
  DATABASE_URL=postgres://... JWT_SECRET=... crmdesk serve

  # Add a contact; its company shows up as a virtual company
  crmdesk crm add-contact --name "John Smith" --company "Acme Corp"
  crmdesk crm list-companies --virtual

`, version)
}
