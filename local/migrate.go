// ABOUTME: Parsing and migration of the stored dataset blob
// ABOUTME: Fills missing collections, back-fills row defaults and flattens nested engagement resources
package local

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
)

const (
	lastSavedKey = "_lastSaved"
	seqKey       = "_seq"
)

// Snapshot is the in-memory form of the dataset blob.
type Snapshot struct {
	Tables    map[db.Table][]db.Row
	Seq       int64
	LastSaved time.Time
}

func newSnapshot() *Snapshot {
	s := &Snapshot{Tables: make(map[db.Table][]db.Row, len(db.Schema))}
	for _, table := range db.Tables() {
		s.Tables[table] = []db.Row{}
	}
	return s
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{Tables: make(map[db.Table][]db.Row, len(s.Tables)), Seq: s.Seq, LastSaved: s.LastSaved}
	for table, rows := range s.Tables {
		out.Tables[table] = cloneRows(rows)
	}
	return out
}

// decodeBlob parses a stored blob. Numbers stay json.Number until normalised.
func decodeBlob(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to parse dataset: not an object")
	}
	return doc, nil
}

// encodeBlob renders a snapshot as the stored JSON document.
func encodeBlob(s *Snapshot) ([]byte, error) {
	doc := make(map[string]interface{}, len(s.Tables)+2)
	for table, rows := range s.Tables {
		doc[string(table)] = rows
	}
	doc[lastSavedKey] = s.LastSaved.UTC().Format(time.RFC3339)
	doc[seqKey] = s.Seq
	return json.Marshal(doc)
}

// ValidateAndMigrate turns a parsed blob into a complete snapshot: every
// collection exists, every row carries every column with schema defaults,
// contacts get an owner, and the settings row holds the default lists.
// Unknown collections and columns are dropped.
func ValidateAndMigrate(doc map[string]interface{}) *Snapshot {
	s := newSnapshot()

	if stamp, ok := doc[lastSavedKey].(string); ok {
		s.LastSaved, _ = time.Parse(time.RFC3339, stamp)
	}
	if n, ok := doc[seqKey].(json.Number); ok {
		s.Seq, _ = n.Int64()
	}

	type nested struct {
		engagement db.Row
		resources  []db.Row
	}
	var embedded []nested

	for _, def := range db.Schema {
		for _, raw := range asRows(doc[string(def.Name)]) {
			row := knownColumns(def, raw)
			s.Tables[def.Name] = append(s.Tables[def.Name], row)
			if def.Name == db.Engagements {
				if resources := nestedResources(raw); len(resources) > 0 {
					s.Tables[db.Resources] = append(s.Tables[db.Resources], resources...)
					embedded = append(embedded, nested{engagement: row, resources: resources})
				}
			}
		}
	}

	s.bumpSeq()

	// Rows without an id get one now, in stored order.
	for _, table := range db.Tables() {
		for _, row := range s.Tables[table] {
			if id, _ := toID(row["id"]); id == 0 {
				s.Seq++
				row["id"] = s.Seq
			}
		}
	}
	for _, n := range embedded {
		for _, r := range n.resources {
			r["engagement_id"] = n.engagement["id"]
		}
	}

	owner := firstAdminID(s.Tables[db.Users])
	for _, row := range s.Tables[db.Contacts] {
		if id, _ := toID(row["owner_id"]); id == 0 {
			row["owner_id"] = owner
		}
	}
	migrateSettings(s)

	for _, def := range db.Schema {
		rows := s.Tables[def.Name]
		for i, row := range rows {
			rows[i] = def.Normalize(def.WithDefaults(dropUnset(def, row)))
		}
	}

	for _, row := range s.Tables[db.Contacts] {
		if order, _ := row["property_order"].([]interface{}); len(order) == 0 {
			row["property_order"] = stringList(models.DefaultPropertyOrder)
		}
	}

	return s
}

// migrateSettings ensures the singleton settings row exists with every list set.
func migrateSettings(s *Snapshot) {
	if len(s.Tables[db.Settings]) == 0 {
		s.Seq++
		s.Tables[db.Settings] = []db.Row{{"id": s.Seq}}
	}

	defaults := models.DefaultConfig()
	row := s.Tables[db.Settings][0]
	for key, values := range map[string][]string{
		"services":  defaults.Services,
		"timezones": defaults.Timezones,
		"vendors":   defaults.Vendors,
	} {
		if row[key] == nil {
			row[key] = stringList(values)
		}
	}
}

func (s *Snapshot) bumpSeq() {
	for _, rows := range s.Tables {
		for _, row := range rows {
			if id, ok := toID(row["id"]); ok && id > s.Seq {
				s.Seq = id
			}
		}
	}
}

func asRows(v interface{}) []db.Row {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]db.Row, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]interface{}); ok {
			out = append(out, row)
		}
	}
	return out
}

// knownColumns keeps only schema columns, accepting camelCase keys written by older clients.
func knownColumns(def *db.TableDef, raw db.Row) db.Row {
	out := make(db.Row, len(raw))
	for key, value := range raw {
		name := key
		if _, ok := def.Column(name); !ok && name != "id" {
			name = snakeCase(key)
		}
		if _, ok := def.Column(name); ok || name == "id" {
			out[name] = value
		}
	}
	return out
}

// nestedResources extracts resources embedded in a raw engagement row.
// Their engagement_id is set once the engagement has an id.
func nestedResources(engagement db.Row) []db.Row {
	def, _ := db.Resources.Def()
	var out []db.Row
	for _, r := range asRows(engagement["resources"]) {
		out = append(out, knownColumns(def, r))
	}
	return out
}

// dropUnset removes values WithDefaults should replace: nulls, and empty
// strings or zeros in columns whose default is non-empty.
func dropUnset(def *db.TableDef, row db.Row) db.Row {
	for k, v := range row {
		if v == nil {
			delete(row, k)
			continue
		}
		col, ok := def.Column(k)
		if !ok {
			continue
		}
		switch d := col.Default.(type) {
		case string:
			if s, isText := v.(string); isText && s == "" && d != "" && col.Type == db.TypeText {
				delete(row, k)
			}
		case int64:
			if n, ok := toID(v); d != 0 && ok && n == 0 {
				delete(row, k)
			}
		}
	}
	return row
}

func firstAdminID(users []db.Row) int64 {
	for _, u := range users {
		if u["role"] == models.RoleAdmin {
			if id, ok := toID(u["id"]); ok {
				return id
			}
		}
	}
	return models.DefaultOwnerID
}

func toID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case float64:
		return int64(id), true
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	}
	return 0, false
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func cloneRows(rows []db.Row) []db.Row {
	out := make([]db.Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}

func cloneRow(row db.Row) db.Row {
	out := make(db.Row, len(row))
	for k, v := range row {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	}
	return v
}
