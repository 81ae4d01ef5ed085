// ABOUTME: Bridge that owns the single Row Store connection and executes IPC methods
// ABOUTME: CRUD holds the read lock; location switches take the write lock and reopen on failure
package ipc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harperreed/crmdesk/db"
	"github.com/oklog/ulid/v2"
)

// ErrNoDatabase means a location switch failed and the previous file could not be reopened.
var ErrNoDatabase = errors.New("no database open")

type Bridge struct {
	mu    sync.RWMutex
	store *db.Store
	token string
}

// NewToken returns a random session token for the IPC handshake.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewBridge opens the SQLite file at path. Clients must present token.
func NewBridge(path, token string) (*Bridge, error) {
	s, err := db.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &Bridge{store: s, token: token}, nil
}

func (b *Bridge) Token() string {
	return b.token
}

// Location reports the open database file.
func (b *Bridge) Location() Location {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locationLocked()
}

func (b *Bridge) locationLocked() Location {
	if b.store == nil {
		return Location{}
	}
	path := b.store.Path()
	return Location{Path: path, Dir: filepath.Dir(path)}
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	return err
}

// Handle executes one request. Operation failures come back as success:false.
func (b *Bridge) Handle(ctx context.Context, req Request) Envelope {
	data, err := b.dispatch(ctx, req)
	if err != nil {
		return Envelope{ID: req.ID, Error: err.Error(), Code: codeFor(err)}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{ID: req.ID, Error: fmt.Sprintf("failed to encode result: %v", err)}
	}
	return Envelope{ID: req.ID, Success: true, Data: raw}
}

func (b *Bridge) dispatch(ctx context.Context, req Request) (interface{}, error) {
	switch req.Method {
	case MethodGetAll:
		var p tableParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			rows, err := s.GetAll(ctx, p.Table)
			if err != nil {
				return nil, err
			}
			return db.StripSecrets(p.Table, rows), nil
		})

	case MethodInsert:
		var p insertParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			id, err := s.Insert(ctx, p.Table, p.Row)
			return idResult{ID: id}, err
		})

	case MethodUpdate:
		var p updateParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			n, err := s.Update(ctx, p.Table, p.ID, p.Patch)
			return changesResult{Changes: n}, err
		})

	case MethodDelete:
		var p deleteParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			n, err := s.Delete(ctx, p.Table, p.ID)
			return changesResult{Changes: n}, err
		})

	case MethodQuery:
		var p sqlParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			return s.Query(ctx, p.SQL, plainArgs(p.Args)...)
		})

	case MethodRun:
		var p sqlParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			return s.Run(ctx, p.SQL, plainArgs(p.Args)...)
		})

	case MethodCreateAdmin:
		var p db.NewUser
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			id, err := s.CreateAdminUser(ctx, p)
			return idResult{ID: id}, err
		})

	case MethodLogin:
		var p credentials
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.read(func(s *db.Store) (interface{}, error) {
			return s.AuthenticateUser(ctx, p.Email, p.Password)
		})

	case MethodBackup:
		return b.read(func(s *db.Store) (interface{}, error) {
			return s.Backup(ctx)
		})

	case MethodLocation:
		return b.Location(), nil

	case MethodChangeLocation:
		var p dirParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.ChangeLocation(ctx, p.Dir)

	case MethodOpen:
		var p pathParams
		if err := decodeJSON(req.Params, &p); err != nil {
			return nil, badParams(err)
		}
		return b.Open(p.Path)

	case MethodEject:
		return b.Eject()
	}
	return nil, fmt.Errorf("unknown method %q", req.Method)
}

func badParams(err error) error {
	return fmt.Errorf("%w: invalid params: %v", db.ErrInvalidValue, err)
}

func (b *Bridge) read(fn func(s *db.Store) (interface{}, error)) (interface{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.store == nil {
		return nil, ErrNoDatabase
	}
	return fn(b.store)
}

// switchTo closes the current file, runs prepare and opens newPath. Any
// failure reopens the previous file. Callers hold the write lock.
func (b *Bridge) switchTo(newPath string, prepare func(oldPath string) error) (Location, error) {
	if b.store == nil {
		return Location{}, ErrNoDatabase
	}
	oldPath := b.store.Path()
	if err := b.store.Close(); err != nil {
		return Location{}, fmt.Errorf("failed to close %s: %w", oldPath, err)
	}
	b.store = nil

	err := prepare(oldPath)
	if err == nil {
		var s *db.Store
		if s, err = db.OpenSQLite(newPath); err == nil {
			b.store = s
			log.Printf("Database switched to %s", newPath)
			return b.locationLocked(), nil
		}
	}

	prev, reopenErr := db.OpenSQLite(oldPath)
	if reopenErr != nil {
		log.Printf("Error: failed to reopen %s: %v", oldPath, reopenErr)
		return Location{}, fmt.Errorf("failed to switch to %s: %v; reopen failed: %w", newPath, err, reopenErr)
	}
	b.store = prev
	return Location{}, fmt.Errorf("failed to switch to %s: %w", newPath, err)
}

// ChangeLocation copies the open database into dir and continues from the copy.
func (b *Bridge) ChangeLocation(ctx context.Context, dir string) (Location, error) {
	if strings.TrimSpace(dir) == "" {
		return Location{}, fmt.Errorf("%w: directory is required", db.ErrInvalidValue)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store == nil {
		return Location{}, ErrNoDatabase
	}

	oldPath := b.store.Path()
	newPath := filepath.Join(dir, filepath.Base(oldPath))
	if filepath.Clean(newPath) == filepath.Clean(oldPath) {
		return b.locationLocked(), nil
	}
	if _, err := os.Stat(newPath); err == nil {
		return Location{}, fmt.Errorf("%w: %s already exists", db.ErrInvalidValue, newPath)
	}
	if _, err := b.store.DB().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return Location{}, fmt.Errorf("failed to checkpoint database: %w", err)
	}

	return b.switchTo(newPath, func(oldPath string) error {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		return db.CopyFile(oldPath, newPath)
	})
}

// Open switches to an existing database file.
func (b *Bridge) Open(path string) (Location, error) {
	if _, err := os.Stat(path); err != nil {
		return Location{}, fmt.Errorf("%w: %v", db.ErrInvalidValue, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.switchTo(path, func(string) error { return nil })
}

// Eject starts a fresh empty database next to the current one.
func (b *Bridge) Eject() (Location, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store == nil {
		return Location{}, ErrNoDatabase
	}

	name := "crmdesk-" + strings.ToLower(ulid.Make().String()) + ".db"
	newPath := filepath.Join(filepath.Dir(b.store.Path()), name)
	return b.switchTo(newPath, func(string) error { return nil })
}
