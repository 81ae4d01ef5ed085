// ABOUTME: Migration utility copying a desktop SQLite database into a server database.
// ABOUTME: Preserves ids, copies tables in foreign-key order, and backs up the source first.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/crmdesk/db"
)

func main() {
	from := flag.String("from", "", "Source SQLite database file (required)")
	to := flag.String("to", "", "Target SQLite file (default: DATABASE_URL)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup of the source before migration")
	force := flag.Bool("force", false, "Copy even if the target already has rows")
	flag.Parse()

	if *from == "" {
		log.Fatal("Error: -from flag is required")
	}
	if _, err := os.Stat(*from); os.IsNotExist(err) {
		log.Fatalf("Error: database file does not exist: %s", *from)
	}

	opts := db.Options{Path: *to}
	if *to == "" {
		opts.DatabaseURL = os.Getenv("DATABASE_URL")
		if opts.DatabaseURL == "" {
			log.Fatal("Error: set -to or DATABASE_URL")
		}
	}

	ctx := context.Background()
	src, err := db.OpenSQLite(*from)
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}
	defer func() { _ = src.Close() }()

	if *backup && !*dryRun {
		path, err := src.Backup(ctx)
		if err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Printf("Backup created: %s", path)
	}

	dst, err := db.Open(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to open target: %v", err)
	}
	defer func() { _ = dst.Close() }()

	counts, err := migrate(ctx, src, dst, *dryRun, *force)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	for _, table := range db.Tables() {
		log.Printf("%-16s %d row(s)", table, counts[table])
	}

	if *dryRun {
		log.Println("[DRY RUN] No changes made")
		return
	}
	log.Println("Migration completed successfully")
}

// migrate copies every table from src to dst in dependency order, keeping
// ids. It returns the number of rows per table.
func migrate(ctx context.Context, src, dst *db.Store, dryRun, force bool) (map[db.Table]int, error) {
	if !force {
		for _, table := range db.Tables() {
			rows, err := dst.GetAll(ctx, table)
			if err != nil {
				return nil, fmt.Errorf("failed to inspect target %s: %w", table, err)
			}
			if len(rows) > 0 {
				return nil, fmt.Errorf("target table %s already has %d row(s); use -force to merge", table, len(rows))
			}
		}
	}

	counts := make(map[db.Table]int)
	for _, table := range db.Tables() {
		rows, err := src.GetAll(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", table, err)
		}
		counts[table] = len(rows)
		if dryRun {
			continue
		}
		for _, row := range rows {
			if _, err := dst.Insert(ctx, table, row); err != nil {
				return nil, fmt.Errorf("failed to copy %s row %v: %w", table, row["id"], err)
			}
		}
	}
	return counts, nil
}
