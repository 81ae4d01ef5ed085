// ABOUTME: Tests for database schema creation and migrations
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableColumns(t *testing.T, conn *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := conn.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols[name] = true
	}
	require.NoError(t, rows.Err())
	return cols
}

func TestInitSchema(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = conn.Close() }()
	conn.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), conn, sqliteDialect{}); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	for _, table := range Tables() {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", string(table)).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Running it again must be a no-op.
	require.NoError(t, InitSchema(context.Background(), conn, sqliteDialect{}))
}

func TestInitSchemaAddsMissingColumns(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	conn.SetMaxOpenConns(1)

	// An older database that predates most contact columns.
	_, err = conn.Exec(`CREATE TABLE contacts (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, email TEXT)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO contacts (name, email) VALUES ('Old Row', 'old@x.com')`)
	require.NoError(t, err)

	require.NoError(t, InitSchema(context.Background(), conn, sqliteDialect{}))

	cols := tableColumns(t, conn, "contacts")
	def, _ := Contacts.Def()
	for _, name := range def.ColumnNames() {
		assert.True(t, cols[name], "column %s should have been added", name)
	}

	var status, lifecycle string
	require.NoError(t, conn.QueryRow(`SELECT status, lifecycle FROM contacts WHERE name = 'Old Row'`).Scan(&status, &lifecycle))
	assert.Equal(t, "New", status, "existing rows pick up the column default")
	assert.Equal(t, "Lead", lifecycle)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable("contacts")
	require.NoError(t, err)
	assert.Equal(t, Contacts, table)

	_, err = ParseTable("contacts; DROP TABLE users")
	assert.True(t, errors.Is(err, ErrUnknownTable))

	_, err = ParseTable("sqlite_master")
	assert.True(t, errors.Is(err, ErrUnknownTable))
}

func TestTablesAreInDependencyOrder(t *testing.T) {
	seen := map[Table]bool{}
	for _, def := range Schema {
		for _, fk := range def.ForeignKeys {
			assert.True(t, seen[fk.RefTable], "%s must come after %s", def.Name, fk.RefTable)
		}
		seen[def.Name] = true
	}
}

func TestCascadeChildren(t *testing.T) {
	assert.ElementsMatch(t, []ChildKey{
		{Table: Resources, Column: "engagement_id"},
		{Table: Activities, Column: "engagement_id"},
	}, Engagements.CascadeChildren())

	assert.Equal(t, []ChildKey{{Table: Activities, Column: "contact_id"}}, Contacts.CascadeChildren())
	assert.Empty(t, Companies.CascadeChildren(), "company deletion never cascades")
}

func TestPostgresDDL(t *testing.T) {
	d := postgresDialect{}
	def, _ := Resources.Def()

	ddl := d.CreateTable(def)
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "resources"`)
	assert.Contains(t, ddl, "id BIGSERIAL PRIMARY KEY")
	assert.Contains(t, ddl, `FOREIGN KEY ("engagement_id") REFERENCES "engagements"(id) ON DELETE CASCADE`)

	col, _ := def.Column("type")
	assert.Equal(t, `ALTER TABLE "resources" ADD COLUMN IF NOT EXISTS "type" TEXT DEFAULT 'resource'`, d.AddColumn(def, col))

	tasks, _ := DashboardTasks.Def()
	assert.Contains(t, d.CreateTable(tasks), `"completed" BOOLEAN DEFAULT FALSE`)
	assert.Contains(t, sqliteDialect{}.CreateTable(tasks), `"completed" INTEGER DEFAULT 0`)
}

func TestPostgresRebind(t *testing.T) {
	d := postgresDialect{}
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", d.Rebind("UPDATE t SET a = ?, b = ? WHERE id = ?"))
	assert.Equal(t, "SELECT '?' AS q, $1", d.Rebind("SELECT '?' AS q, ?"))
	assert.False(t, strings.Contains(d.Rebind("SELECT ?"), "?"))
}
