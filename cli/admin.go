// ABOUTME: Admin account and remote login commands
// ABOUTME: Prompts for passwords on a terminal and stores the remote bearer token in config
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/harperreed/crmdesk/config"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/ipc"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/remote"
	"github.com/harperreed/crmdesk/store"
)

// readPassword prompts on the terminal, or falls back to the flag value when
// stdin is not a terminal.
func readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(out, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}

// CreateAdminCommand creates an administrator in the active Store.
func CreateAdminCommand(ctx context.Context, s store.Store, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	name := fs.String("name", "", "Admin name (required)")
	email := fs.String("email", "", "Admin email (required)")
	password := fs.String("password", "", "Password (prompted when omitted)")
	_ = fs.Parse(args)

	if *name == "" || *email == "" {
		return fmt.Errorf("--name and --email are required")
	}
	pw, err := readPassword(*password)
	if err != nil {
		return err
	}
	return createAdmin(ctx, s, db.NewUser{Name: *name, Email: *email, Password: pw, Role: models.RoleAdmin})
}

func createAdmin(ctx context.Context, s store.Store, u db.NewUser) error {
	var id int64
	switch b := s.(type) {
	case *db.Store:
		created, err := b.CreateAdminUser(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		id = created
	case *ipc.Client:
		created, err := b.CreateAdmin(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		id = created
	case *remote.Client:
		user, err := b.Register(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to register admin: %w", err)
		}
		id = user.ID
	default:
		user, err := store.NewCRM(s).AddUser(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		id = user.ID
	}
	fmt.Fprintf(out, "✓ Admin created: %s (ID: %d)\n", strings.ToLower(strings.TrimSpace(u.Email)), id)
	return nil
}

// LoginCommand signs in to the remote server and saves the token.
func LoginCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	url := fs.String("url", cfg.RemoteURL, "Server URL")
	email := fs.String("email", "", "Email (required)")
	password := fs.String("password", "", "Password (prompted when omitted)")
	_ = fs.Parse(args)

	if *url == "" {
		return fmt.Errorf("--url is required (or set CRMDESK_REMOTE_URL)")
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	pw, err := readPassword(*password)
	if err != nil {
		return err
	}

	client := remote.New(*url, "")
	user, token, err := client.Login(ctx, *email, pw)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if user == nil {
		return fmt.Errorf("invalid email or password")
	}

	cfg.RemoteURL = *url
	cfg.RemoteToken = token
	if cfg.Mode != config.ModeSynced {
		cfg.Mode = config.ModeRemote
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "✓ Logged in as %s (%s)\n", user.Email, user.Role)
	if exp, ok := client.TokenExpiry(); ok {
		fmt.Fprintf(out, "  Token expires: %s\n", exp.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
