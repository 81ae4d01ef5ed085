// ABOUTME: Generic table CRUD operations of the Row Store
// ABOUTME: Table and column names are allow-listed against the schema before SQL is built
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// RunResult reports the effect of a raw statement.
type RunResult struct {
	Changes      int64 `json:"changes"`
	LastInsertID int64 `json:"lastInsertRowid"`
}

// GetAll returns every row of a table ordered by id.
func (s *Store) GetAll(ctx context.Context, table Table) ([]Row, error) {
	def, err := table.Def()
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(def.Columns)+1)
	for _, name := range def.ColumnNames() {
		cols = append(cols, quoteIdent(name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(cols, ", "), quoteIdent(string(table)))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	raw, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	out := make([]Row, len(raw))
	for i, r := range raw {
		out[i] = def.Normalize(r)
	}
	return out, nil
}

// Insert writes a row and returns its id. Absent columns take their schema default.
func (s *Store) Insert(ctx context.Context, table Table, row Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}

	values, err := def.Coerce(row)
	if err != nil {
		return 0, err
	}

	explicitID := false
	if id, ok := values["id"]; ok && id != nil && id != int64(0) {
		explicitID = true
	} else {
		delete(values, "id")
	}

	keys := sortedKeys(values)
	args, err := bindArgs(def, keys, values)
	if err != nil {
		return 0, err
	}

	var query string
	if len(keys) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(string(table)))
	} else {
		cols := make([]string, len(keys))
		marks := make([]string, len(keys))
		for i, k := range keys {
			cols[i] = quoteIdent(k)
			marks[i] = "?"
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(string(table)), strings.Join(cols, ", "), strings.Join(marks, ", "))
	}

	id, err := s.dialect.InsertID(ctx, s.db, query, args)
	if err != nil {
		return 0, s.wrapExecError(fmt.Sprintf("failed to insert into %s", table), err)
	}

	if explicitID {
		if err := s.dialect.SyncSequence(ctx, s.db, table); err != nil {
			return 0, fmt.Errorf("failed to sync %s id sequence: %w", table, err)
		}
		id = values["id"].(int64)
	}
	return id, nil
}

// Update writes only the columns present in patch and returns the changed row count.
func (s *Store) Update(ctx context.Context, table Table, id int64, patch Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}

	values, err := def.Coerce(patch)
	if err != nil {
		return 0, err
	}
	delete(values, "id")
	if len(values) == 0 {
		return 0, nil
	}

	keys := sortedKeys(values)
	args, err := bindArgs(def, keys, values)
	if err != nil {
		return 0, err
	}

	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = quoteIdent(k) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(string(table)), strings.Join(sets, ", "))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return 0, s.wrapExecError(fmt.Sprintf("failed to update %s %d", table, id), err)
	}
	return res.RowsAffected()
}

// Delete removes a row; children cascade where the schema says so.
func (s *Store) Delete(ctx context.Context, table Table, id int64) (int64, error) {
	if _, err := table.Def(); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(string(table)))
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), id)
	if err != nil {
		return 0, s.wrapExecError(fmt.Sprintf("failed to delete %s %d", table, id), err)
	}
	return res.RowsAffected()
}

// Query runs a raw read. Placeholders are written as ? for both engines.
func (s *Store) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows)
}

// Run executes a raw statement.
func (s *Store) Run(ctx context.Context, query string, args ...interface{}) (RunResult, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return RunResult{}, err
	}

	var out RunResult
	out.Changes, _ = res.RowsAffected()
	if s.dialect.Name() == "sqlite" {
		out.LastInsertID, _ = res.LastInsertId()
	}
	return out, nil
}

// wrapExecError tags engine constraint failures with ErrConstraint.
func (s *Store) wrapExecError(msg string, err error) error {
	if s.dialect.IsConstraintViolation(err) {
		return fmt.Errorf("%s: %w: %v", msg, ErrConstraint, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func bindArgs(def *TableDef, keys []string, values Row) ([]interface{}, error) {
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		v := values[k]
		if col, ok := def.Column(k); ok && col.Type == TypeJSON {
			encoded, err := encodeJSON(v)
			if err != nil {
				return nil, fmt.Errorf("%w for %s.%s: %v", ErrInvalidValue, def.Name, k, err)
			}
			v = encoded
		}
		args[i] = v
	}
	return args, nil
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
