// ABOUTME: Database schema definitions and migrations
// ABOUTME: One declaration of every table drives the DDL of both SQL engines and the KV adapter
package db

import (
	"context"
	"errors"
	"fmt"
)

// Row is a column-keyed record. Keys must be columns of the row's table.
type Row = map[string]interface{}

// Table is the closed set of tables the CRUD surface accepts.
type Table string

const (
	Users          Table = "users"
	Contacts       Table = "contacts"
	Companies      Table = "companies"
	Engagements    Table = "engagements"
	Resources      Table = "resources"
	Activities     Table = "activities"
	Deals          Table = "deals"
	DashboardNotes Table = "dashboard_notes"
	DashboardTasks Table = "dashboard_tasks"
	Settings       Table = "settings"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrInvalidValue  = errors.New("invalid value")
	ErrConstraint    = errors.New("constraint violation")
)

type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeText
	TypeReal
	TypeBool
	TypeJSON
)

type Column struct {
	Name    string
	Type    ColumnType
	Default interface{}
	NotNull bool
	Unique  bool
}

type OnDelete string

const (
	NoAction OnDelete = ""
	Cascade  OnDelete = "CASCADE"
)

type ForeignKey struct {
	Column   string
	RefTable Table
	OnDelete OnDelete
}

type TableDef struct {
	Name        Table
	Columns     []Column
	ForeignKeys []ForeignKey
	index       map[string]int
}

// Column returns the named column definition.
func (t *TableDef) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnNames returns every column, id first.
func (t *TableDef) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns)+1)
	names = append(names, "id")
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

func text(name string) Column { return Column{Name: name, Type: TypeText, Default: ""} }

func textDefault(name, def string) Column { return Column{Name: name, Type: TypeText, Default: def} }

func required(name string) Column { return Column{Name: name, Type: TypeText, NotNull: true} }

func integer(name string) Column { return Column{Name: name, Type: TypeInt} }

func flag(name string) Column { return Column{Name: name, Type: TypeBool, Default: false} }

func jsonList(name string) Column { return Column{Name: name, Type: TypeJSON, Default: "[]"} }

// Schema lists tables in dependency order: parents before children.
var Schema = []*TableDef{
	{
		Name: Users,
		Columns: []Column{
			required("name"),
			{Name: "email", Type: TypeText, NotNull: true, Unique: true},
			text("password_hash"),
			textDefault("role", "standard"),
			text("created_at"),
		},
	},
	{
		Name: Contacts,
		Columns: []Column{
			required("name"),
			text("email"),
			text("phone"),
			text("company"),
			text("job_title"),
			textDefault("status", "New"),
			textDefault("lifecycle", "Lead"),
			text("follow_up"),
			text("meeting_date"),
			text("calling_task_date"),
			{Name: "owner_id", Type: TypeInt, Default: int64(1)},
			text("assigned_resource"),
			text("linkedin"),
			text("timezone"),
			text("company_size"),
			textDefault("theme_color", "#4f46e5"),
			jsonList("property_order"),
			text("notes"),
			text("created_at"),
			text("updated_at"),
		},
	},
	{
		Name: Companies,
		Columns: []Column{
			required("name"),
			text("size"),
			text("website"),
			text("industry"),
			{Name: "owner_id", Type: TypeInt, Default: int64(1)},
			text("assigned_resource"),
			text("created_at"),
			text("updated_at"),
		},
	},
	{
		Name: Engagements,
		Columns: []Column{
			required("client_name"),
			text("service_type"),
			text("start_date"),
			text("end_date"),
			textDefault("status", "Active"),
			{Name: "owner_id", Type: TypeInt, Default: int64(1)},
			text("created_at"),
			text("updated_at"),
		},
	},
	{
		Name: Resources,
		Columns: []Column{
			{Name: "engagement_id", Type: TypeInt, NotNull: true},
			required("name"),
			text("role"),
			textDefault("type", "resource"),
		},
		ForeignKeys: []ForeignKey{
			{Column: "engagement_id", RefTable: Engagements, OnDelete: Cascade},
		},
	},
	{
		Name: Activities,
		Columns: []Column{
			textDefault("type", "note"),
			text("content"),
			text("date"),
			flag("completed"),
			jsonList("comments"),
			integer("contact_id"),
			integer("engagement_id"),
			integer("company_id"),
			text("created_at"),
		},
		ForeignKeys: []ForeignKey{
			{Column: "contact_id", RefTable: Contacts, OnDelete: Cascade},
			{Column: "engagement_id", RefTable: Engagements, OnDelete: Cascade},
		},
	},
	{
		Name: Deals,
		Columns: []Column{
			required("title"),
			text("company"),
			{Name: "value", Type: TypeReal, Default: float64(0)},
			textDefault("stage", "Lead"),
			{Name: "probability", Type: TypeInt, Default: int64(0)},
			text("close_date"),
			{Name: "owner_id", Type: TypeInt, Default: int64(1)},
			integer("contact_id"),
			text("created_at"),
			text("updated_at"),
		},
	},
	{
		Name: DashboardNotes,
		Columns: []Column{
			integer("user_id"),
			text("content"),
			text("created_at"),
		},
	},
	{
		Name: DashboardTasks,
		Columns: []Column{
			integer("user_id"),
			required("title"),
			flag("completed"),
			text("due_date"),
			text("created_at"),
		},
	},
	{
		Name: Settings,
		Columns: []Column{
			jsonList("services"),
			jsonList("timezones"),
			jsonList("vendors"),
		},
	},
}

var tablesByName = map[Table]*TableDef{}

func init() {
	for _, def := range Schema {
		def.index = make(map[string]int, len(def.Columns))
		for i, c := range def.Columns {
			def.index[c.Name] = i
		}
		tablesByName[def.Name] = def
	}
}

// ParseTable resolves a table name against the allow-list.
func ParseTable(name string) (Table, error) {
	if _, ok := tablesByName[Table(name)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return Table(name), nil
}

// Tables returns every table in dependency order.
func Tables() []Table {
	out := make([]Table, len(Schema))
	for i, def := range Schema {
		out[i] = def.Name
	}
	return out
}

// Def returns the table definition, or an error for names outside the allow-list.
func (t Table) Def() (*TableDef, error) {
	def, ok := tablesByName[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, string(t))
	}
	return def, nil
}

// CascadeChildren returns the foreign keys in other tables that cascade when a row of t is deleted.
func (t Table) CascadeChildren() []ChildKey {
	var out []ChildKey
	for _, def := range Schema {
		for _, fk := range def.ForeignKeys {
			if fk.RefTable == t && fk.OnDelete == Cascade {
				out = append(out, ChildKey{Table: def.Name, Column: fk.Column})
			}
		}
	}
	return out
}

// ChildKey names a referencing column.
type ChildKey struct {
	Table  Table
	Column string
}

// InitSchema creates every table and adds any column missing from an older database.
func InitSchema(ctx context.Context, exec Execer, d Dialect) error {
	for _, def := range Schema {
		if _, err := exec.ExecContext(ctx, d.CreateTable(def)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.Name, err)
		}
	}

	for _, def := range Schema {
		for _, col := range def.Columns {
			_, err := exec.ExecContext(ctx, d.AddColumn(def, col))
			if err != nil && !d.IsDuplicateColumn(err) {
				return fmt.Errorf("failed to add column %s.%s: %w", def.Name, col.Name, err)
			}
		}
	}

	return nil
}
