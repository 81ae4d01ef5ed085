// ABOUTME: Database connection management and initialization
// ABOUTME: Opens SQLite (WAL, foreign keys) or Postgres via DATABASE_URL behind one Store
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the Row Store: table-oriented CRUD over one SQL engine.
type Store struct {
	db      *sql.DB
	dialect Dialect
	path    string
}

// Options selects the engine. DatabaseURL wins over Path when set.
type Options struct {
	DatabaseURL string
	Path        string
}

// Open opens the engine selected by opts and initialises the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DatabaseURL != "" {
		return OpenPostgres(ctx, opts.DatabaseURL)
	}
	return OpenSQLite(opts.Path)
}

// OpenSQLite opens (creating if needed) a SQLite database file. ":memory:" is accepted.
func OpenSQLite(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// One connection: avoids "database is locked" and keeps :memory: databases alive.
	conn.SetMaxOpenConns(1)

	s := &Store{db: conn, dialect: sqliteDialect{}, path: path}
	if err := InitSchema(context.Background(), conn, s.dialect); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to a managed Postgres server.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	conn.SetMaxOpenConns(30)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: conn, dialect: postgresDialect{}}
	if err := InitSchema(ctx, conn, s.dialect); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// IsPostgresURL reports whether a DATABASE_URL points at Postgres.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the engine dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Path is the SQLite file path, empty for Postgres.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
