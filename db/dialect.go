// ABOUTME: SQL dialect translation for the embedded SQLite and managed Postgres engines
// ABOUTME: Generates DDL, rebinds placeholders, and classifies engine errors
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	Execer
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Dialect hides the differences between the two SQL engines.
type Dialect interface {
	Name() string
	CreateTable(def *TableDef) string
	AddColumn(def *TableDef, col Column) string
	Rebind(query string) string
	IsDuplicateColumn(err error) bool
	IsConstraintViolation(err error) bool
	InsertID(ctx context.Context, q Querier, query string, args []interface{}) (int64, error)
	SyncSequence(ctx context.Context, exec Execer, table Table) error
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type typeNames struct {
	integer, text, real, boolean, json string
}

func (n typeNames) of(t ColumnType) string {
	switch t {
	case TypeInt:
		return n.integer
	case TypeReal:
		return n.real
	case TypeBool:
		return n.boolean
	case TypeJSON:
		return n.json
	}
	return n.text
}

func literal(col Column, boolLiteral func(bool) string) string {
	switch v := col.Default.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		return boolLiteral(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "NULL"
}

func buildCreateTable(def *TableDef, pk string, names typeNames, boolLiteral func(bool) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tid %s", quoteIdent(string(def.Name)), pk)

	for _, col := range def.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", quoteIdent(col.Name), names.of(col.Type))
		if col.NotNull {
			b.WriteString(" NOT NULL")
		}
		if col.Unique {
			b.WriteString(" UNIQUE")
		}
		if col.Default != nil {
			b.WriteString(" DEFAULT " + literal(col, boolLiteral))
		}
	}

	for _, fk := range def.ForeignKeys {
		fmt.Fprintf(&b, ",\n\tFOREIGN KEY (%s) REFERENCES %s(id)", quoteIdent(fk.Column), quoteIdent(string(fk.RefTable)))
		if fk.OnDelete != NoAction {
			b.WriteString(" ON DELETE " + string(fk.OnDelete))
		}
	}

	b.WriteString("\n)")
	return b.String()
}

// addColumnSpec omits NOT NULL and UNIQUE: neither engine can add those to a populated table.
func addColumnSpec(def *TableDef, col Column, names typeNames, boolLiteral func(bool) string) string {
	spec := quoteIdent(col.Name) + " " + names.of(col.Type)
	if col.Default != nil {
		spec += " DEFAULT " + literal(col, boolLiteral)
	}
	for _, fk := range def.ForeignKeys {
		if fk.Column == col.Name {
			spec += fmt.Sprintf(" REFERENCES %s(id)", quoteIdent(string(fk.RefTable)))
			if fk.OnDelete != NoAction {
				spec += " ON DELETE " + string(fk.OnDelete)
			}
		}
	}
	return spec
}

type sqliteDialect struct{}

var sqliteTypes = typeNames{integer: "INTEGER", text: "TEXT", real: "REAL", boolean: "INTEGER", json: "TEXT"}

func sqliteBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) CreateTable(def *TableDef) string {
	return buildCreateTable(def, "INTEGER PRIMARY KEY AUTOINCREMENT", sqliteTypes, sqliteBool)
}

func (sqliteDialect) AddColumn(def *TableDef, col Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(string(def.Name)), addColumnSpec(def, col, sqliteTypes, sqliteBool))
}

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) IsDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func (sqliteDialect) IsConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func (sqliteDialect) InsertID(ctx context.Context, q Querier, query string, args []interface{}) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (sqliteDialect) SyncSequence(context.Context, Execer, Table) error { return nil }

type postgresDialect struct{}

var postgresTypes = typeNames{integer: "BIGINT", text: "TEXT", real: "DOUBLE PRECISION", boolean: "BOOLEAN", json: "TEXT"}

func postgresBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) CreateTable(def *TableDef) string {
	return buildCreateTable(def, "BIGSERIAL PRIMARY KEY", postgresTypes, postgresBool)
}

func (postgresDialect) AddColumn(def *TableDef, col Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", quoteIdent(string(def.Name)), addColumnSpec(def, col, postgresTypes, postgresBool))
}

// Rebind turns ? placeholders into $1, $2, ... outside of quoted literals.
func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteString("$" + strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func (postgresDialect) IsDuplicateColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42701"
}

func (postgresDialect) IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

func (d postgresDialect) InsertID(ctx context.Context, q Querier, query string, args []interface{}) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, d.Rebind(query)+" RETURNING id", args...).Scan(&id)
	return id, err
}

// SyncSequence moves the serial sequence past explicitly inserted ids.
func (postgresDialect) SyncSequence(ctx context.Context, exec Execer, table Table) error {
	query := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT COALESCE(MAX(id), 1) FROM %s))",
		string(table), quoteIdent(string(table)),
	)
	_, err := exec.ExecContext(ctx, query)
	return err
}
