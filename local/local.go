// ABOUTME: Local persistence adapter keeping the whole dataset as one JSON blob in a KV store
// ABOUTME: Implements the Store contract with schema validation, cascades and monotonic ids
package local

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/crmdesk/charm"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
)

const (
	// DataKey holds the live dataset blob.
	DataKey = "crmdesk:data"
	// BackupKey holds the most recent auto-backup.
	BackupKey = "crmdesk:backup"

	DefaultMaxBlobBytes   = 5 << 20
	DefaultBackupInterval = 5 * time.Minute
)

var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrNoBackup      = errors.New("no backup stored")
)

type Options struct {
	// MaxBlobBytes caps the serialised dataset; 0 means DefaultMaxBlobBytes.
	MaxBlobBytes int
	Notifier     store.Notifier
	Now          func() time.Time
}

// Adapter is the local Store. All state lives in memory and is written back
// to the KV store in full after every mutation.
type Adapter struct {
	kv       charm.KV
	maxBytes int
	notifier store.Notifier
	now      func() time.Time

	mu     sync.Mutex
	state  *Snapshot
	seeded bool

	stopBackup context.CancelFunc
	backupDone chan struct{}
}

var _ store.Store = (*Adapter)(nil)

// Open loads the dataset from kv, seeding demo data when nothing usable is stored.
// The adapter takes ownership of kv.
func Open(ctx context.Context, kv charm.KV, opts Options) (*Adapter, error) {
	a := &Adapter{
		kv:       kv,
		maxBytes: opts.MaxBlobBytes,
		notifier: opts.Notifier,
		now:      opts.Now,
	}
	if a.maxBytes <= 0 {
		a.maxBytes = DefaultMaxBlobBytes
	}
	if a.notifier == nil {
		a.notifier = store.LogNotifier{}
	}
	if a.now == nil {
		a.now = time.Now
	}

	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Load replaces in-memory state with the stored blob. A missing or
// unparsable blob yields the seed dataset, which is then saved.
func (a *Adapter) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.kv.Get([]byte(DataKey))
	if err != nil && !errors.Is(err, charm.ErrKeyNotFound) {
		return fmt.Errorf("failed to read dataset: %w", err)
	}

	var doc map[string]interface{}
	if err == nil {
		doc, err = decodeBlob(data)
		if err != nil {
			log.Printf("Warning: stored dataset unreadable, loading demo data: %v", err)
		}
	}

	a.seeded = doc == nil
	if a.seeded {
		if doc, err = seedDocument(); err != nil {
			return fmt.Errorf("failed to build seed dataset: %w", err)
		}
	}

	a.state = ValidateAndMigrate(doc)
	if a.seeded {
		return a.saveLocked()
	}
	return nil
}

// Seeded reports whether the last Load fell back to demo data.
func (a *Adapter) Seeded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seeded
}

// LastSaved is the time of the last successful save.
func (a *Adapter) LastSaved() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.LastSaved
}

// Save writes the in-memory dataset to the KV store.
func (a *Adapter) Save(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveLocked()
}

func (a *Adapter) saveLocked() error {
	prev := a.state.LastSaved
	a.state.LastSaved = a.now().UTC()

	data, err := a.encodeLocked()
	if err != nil {
		a.state.LastSaved = prev
		return err
	}
	if err := a.kv.Set([]byte(DataKey), data); err != nil {
		a.state.LastSaved = prev
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

func (a *Adapter) encodeLocked() ([]byte, error) {
	data, err := encodeBlob(a.state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	if len(data) > a.maxBytes {
		a.notifier.Alert(fmt.Sprintf("Local storage is full (%d of %d bytes). Export your data and remove old records.", len(data), a.maxBytes))
		return nil, fmt.Errorf("%w: dataset is %d bytes, limit %d", ErrQuotaExceeded, len(data), a.maxBytes)
	}
	return data, nil
}

// mutate applies fn to the state and saves; on any failure the state is rolled back.
func (a *Adapter) mutate(fn func(s *Snapshot) (int64, error)) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.state.Clone()
	n, err := fn(a.state)
	if err != nil {
		a.state = before
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := a.saveLocked(); err != nil {
		a.state = before
		return 0, err
	}
	return n, nil
}

func (a *Adapter) GetAll(ctx context.Context, table db.Table) ([]db.Row, error) {
	if _, err := table.Def(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rows := cloneRows(a.state.Tables[table])
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i]["id"].(int64) < rows[j]["id"].(int64)
	})
	return rows, nil
}

func (a *Adapter) Insert(ctx context.Context, table db.Table, row db.Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}
	values, err := def.Coerce(row)
	if err != nil {
		return 0, err
	}

	return a.mutate(func(s *Snapshot) (int64, error) {
		id, _ := values["id"].(int64)
		if id != 0 {
			if indexOf(s.Tables[table], id) >= 0 {
				return 0, fmt.Errorf("%w: %s id %d already exists", db.ErrConstraint, table, id)
			}
			if id > s.Seq {
				s.Seq = id
			}
		} else {
			s.Seq++
			id = s.Seq
		}
		values["id"] = id

		full := def.Normalize(def.WithDefaults(values))
		if err := checkConstraints(s, def, full, -1); err != nil {
			return 0, err
		}
		s.Tables[table] = append(s.Tables[table], full)
		return id, nil
	})
}

// ReplaceTable swaps every row of table for rows, keeping their ids. Rows
// without an id are rejected. Constraints are not re-checked across tables.
func (a *Adapter) ReplaceTable(ctx context.Context, table db.Table, rows []db.Row) error {
	def, err := table.Def()
	if err != nil {
		return err
	}

	replaced := make([]db.Row, 0, len(rows))
	for _, row := range rows {
		values, err := def.Coerce(row)
		if err != nil {
			return err
		}
		if id, _ := values["id"].(int64); id <= 0 {
			return fmt.Errorf("%w: %s row without id", db.ErrInvalidValue, table)
		}
		replaced = append(replaced, def.Normalize(def.WithDefaults(values)))
	}

	_, err = a.mutate(func(s *Snapshot) (int64, error) {
		s.Tables[table] = replaced
		s.bumpSeq()
		return 1, nil
	})
	return err
}

func (a *Adapter) Update(ctx context.Context, table db.Table, id int64, patch db.Row) (int64, error) {
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

	return a.mutate(func(s *Snapshot) (int64, error) {
		i := indexOf(s.Tables[table], id)
		if i < 0 {
			return 0, nil
		}

		merged := cloneRow(s.Tables[table][i])
		for k, v := range values {
			merged[k] = v
		}
		merged = def.Normalize(merged)
		if err := checkConstraints(s, def, merged, i); err != nil {
			return 0, err
		}
		s.Tables[table][i] = merged
		return 1, nil
	})
}

func (a *Adapter) Delete(ctx context.Context, table db.Table, id int64) (int64, error) {
	if _, err := table.Def(); err != nil {
		return 0, err
	}

	return a.mutate(func(s *Snapshot) (int64, error) {
		if indexOf(s.Tables[table], id) < 0 {
			return 0, nil
		}
		deleteCascade(s, table, id)
		return 1, nil
	})
}

// deleteCascade removes the row and, recursively, every child whose
// foreign key cascades on delete.
func deleteCascade(s *Snapshot, table db.Table, id int64) {
	rows := s.Tables[table]
	if i := indexOf(rows, id); i >= 0 {
		s.Tables[table] = append(rows[:i:i], rows[i+1:]...)
	}

	for _, child := range table.CascadeChildren() {
		var doomed []int64
		for _, row := range s.Tables[child.Table] {
			if ref, ok := row[child.Column].(int64); ok && ref == id {
				doomed = append(doomed, row["id"].(int64))
			}
		}
		for _, childID := range doomed {
			deleteCascade(s, child.Table, childID)
		}
	}
}

// checkConstraints enforces NOT NULL, UNIQUE and foreign keys the way the SQL
// engines do. skip is the index of the row being replaced, or -1.
func checkConstraints(s *Snapshot, def *db.TableDef, row db.Row, skip int) error {
	for _, col := range def.Columns {
		v := row[col.Name]
		if col.NotNull && v == nil {
			return fmt.Errorf("%w: NOT NULL constraint failed: %s.%s", db.ErrConstraint, def.Name, col.Name)
		}
		if col.Unique && v != nil {
			for i, other := range s.Tables[def.Name] {
				if i != skip && sameValue(other[col.Name], v) {
					return fmt.Errorf("%w: UNIQUE constraint failed: %s.%s", db.ErrConstraint, def.Name, col.Name)
				}
			}
		}
	}

	for _, fk := range def.ForeignKeys {
		ref, ok := row[fk.Column].(int64)
		if !ok {
			continue
		}
		if indexOf(s.Tables[fk.RefTable], ref) < 0 {
			return fmt.Errorf("%w: FOREIGN KEY constraint failed: %s.%s", db.ErrConstraint, def.Name, fk.Column)
		}
	}
	return nil
}

func sameValue(a, b interface{}) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

func indexOf(rows []db.Row, id int64) int {
	for i, row := range rows {
		if row["id"] == id {
			return i
		}
	}
	return -1
}

// AuthenticateUser checks the password against the stored bcrypt hash.
func (a *Adapter) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	a.mu.Lock()
	var match db.Row
	for _, row := range a.state.Tables[db.Users] {
		if e, _ := row["email"].(string); strings.ToLower(e) == email {
			match = cloneRow(row)
			break
		}
	}
	a.mu.Unlock()

	if match == nil {
		return nil, nil
	}
	return db.MatchUser(match, password), nil
}

// Close stops the auto-backup loop and closes the KV store.
func (a *Adapter) Close() error {
	a.StopAutoBackup()
	return a.kv.Close()
}
