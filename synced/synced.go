// ABOUTME: Composite adapter that reads locally and mirrors writes to the cloud server
// ABOUTME: Unmirrored writes wait in a persisted outbox and are replayed before each pull
package synced

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/remote"
	"github.com/harperreed/crmdesk/store"
)

const DefaultPullInterval = 30 * time.Second

// OfflineMessage is the alert raised when the server cannot be reached at startup.
const OfflineMessage = "remote unreachable, working offline"

// Local is the store every read is served from. It also keeps the outbox.
type Local interface {
	store.Store
	ReplaceTable(ctx context.Context, table db.Table, rows []db.Row) error
	LoadOutbox() ([]byte, error)
	SaveOutbox(data []byte) error
}

// Remote is the store writes are mirrored to.
type Remote interface {
	store.Store
	SyncStatus(ctx context.Context) (time.Time, error)
}

const (
	opInsert = "insert"
	opUpdate = "update"
	opDelete = "delete"
)

// pendingWrite is a local write the server has not accepted yet.
type pendingWrite struct {
	Op    string   `json:"op"`
	Table db.Table `json:"table"`
	ID    int64    `json:"id"`
	Row   db.Row   `json:"row,omitempty"`
}

type Adapter struct {
	local    Local
	remote   Remote
	notifier store.Notifier

	// syncMu orders local writes against pulls, so a pull never replaces a
	// table between a write and its queueing.
	syncMu sync.Mutex

	mu       sync.Mutex
	online   bool
	lastSeen time.Time
	pending  []pendingWrite

	mirrorFailures atomic.Int64
}

var _ store.Store = (*Adapter)(nil)

// Open loads the outbox and checks the server. When it is unreachable the
// adapter runs local-only until a later Pull succeeds. The adapter owns both stores.
func Open(ctx context.Context, local Local, remote Remote, notifier store.Notifier) *Adapter {
	if notifier == nil {
		notifier = store.LogNotifier{}
	}
	a := &Adapter{local: local, remote: remote, notifier: notifier}

	if err := a.loadPending(); err != nil {
		log.Printf("Warning: %v", err)
	}

	if _, err := remote.SyncStatus(ctx); err != nil {
		log.Printf("Remote status check failed: %v", err)
		notifier.Alert(OfflineMessage)
		return a
	}
	a.online = true
	return a
}

// Online reports whether writes are currently mirrored.
func (a *Adapter) Online() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online
}

// Local returns the store reads are served from.
func (a *Adapter) Local() Local {
	return a.local
}

// MirrorFailures counts remote writes that failed since Open.
func (a *Adapter) MirrorFailures() int64 {
	return a.mirrorFailures.Load()
}

// Pending is the number of writes waiting to be replayed to the server.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Adapter) loadPending() error {
	data, err := a.local.LoadOutbox()
	if err != nil || len(data) == 0 {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var pending []pendingWrite
	if err := dec.Decode(&pending); err != nil {
		return fmt.Errorf("outbox is unreadable, discarding it: %w", err)
	}
	a.mu.Lock()
	a.pending = pending
	a.mu.Unlock()
	return nil
}

func (a *Adapter) savePendingLocked() {
	var data []byte
	if len(a.pending) > 0 {
		var err error
		if data, err = json.Marshal(a.pending); err != nil {
			log.Printf("Warning: failed to encode outbox: %v", err)
			return
		}
	}
	if err := a.local.SaveOutbox(data); err != nil {
		log.Printf("Warning: %v", err)
	}
}

func (a *Adapter) enqueue(w pendingWrite) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, w)
	a.savePendingLocked()
}

// mirror sends w to the server, or queues it while offline or while older
// writes are still queued. Failures the server may later accept are queued.
func (a *Adapter) mirror(ctx context.Context, w pendingWrite) {
	a.mu.Lock()
	direct := a.online && len(a.pending) == 0
	a.mu.Unlock()
	if !direct {
		a.enqueue(w)
		return
	}

	if err := a.send(ctx, w); err != nil {
		n := a.mirrorFailures.Add(1)
		log.Printf("Warning: failed to mirror %s on %s (%d failures): %v", w.Op, w.Table, n, err)
		if !rejected(err) {
			a.enqueue(w)
		}
	}
}

func (a *Adapter) send(ctx context.Context, w pendingWrite) error {
	var err error
	switch w.Op {
	case opInsert:
		_, err = a.remote.Insert(ctx, w.Table, w.Row)
		if errors.Is(err, db.ErrConstraint) {
			// The id is taken on the server; the local row wins.
			patch := make(db.Row, len(w.Row))
			for k, v := range w.Row {
				if k != "id" {
					patch[k] = v
				}
			}
			_, err = a.remote.Update(ctx, w.Table, w.ID, patch)
		}
	case opUpdate:
		_, err = a.remote.Update(ctx, w.Table, w.ID, w.Row)
	case opDelete:
		_, err = a.remote.Delete(ctx, w.Table, w.ID)
	default:
		err = fmt.Errorf("%w: unknown queued op %q", db.ErrInvalidValue, w.Op)
	}
	return err
}

// rejected reports whether the server refused a write outright, so sending
// it again cannot succeed.
func rejected(err error) bool {
	var herr *remote.HTTPError
	if errors.As(err, &herr) {
		switch herr.Status {
		case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
			return false
		}
		return herr.Status >= 400 && herr.Status < 500
	}
	return errors.Is(err, db.ErrUnknownTable) ||
		errors.Is(err, db.ErrUnknownColumn) ||
		errors.Is(err, db.ErrInvalidValue)
}

// replay sends queued writes in order, dropping any the server rejects. It
// stops at the first write that fails for another reason.
func (a *Adapter) replay(ctx context.Context) (int, error) {
	sent := 0
	for {
		a.mu.Lock()
		if len(a.pending) == 0 {
			a.mu.Unlock()
			return sent, nil
		}
		w := a.pending[0]
		a.mu.Unlock()

		if err := a.send(ctx, w); err != nil {
			if !rejected(err) {
				return sent, err
			}
			log.Printf("Warning: server rejected queued %s on %s %d, dropping it: %v", w.Op, w.Table, w.ID, err)
		} else {
			sent++
		}

		a.mu.Lock()
		a.pending = a.pending[1:]
		a.savePendingLocked()
		a.mu.Unlock()
	}
}

func (a *Adapter) GetAll(ctx context.Context, table db.Table) ([]db.Row, error) {
	return a.local.GetAll(ctx, table)
}

func (a *Adapter) Insert(ctx context.Context, table db.Table, row db.Row) (int64, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	id, err := a.local.Insert(ctx, table, row)
	if err != nil {
		return 0, err
	}

	explicit := make(db.Row, len(row)+1)
	for k, v := range row {
		explicit[k] = v
	}
	explicit["id"] = id
	a.mirror(ctx, pendingWrite{Op: opInsert, Table: table, ID: id, Row: explicit})
	return id, nil
}

func (a *Adapter) Update(ctx context.Context, table db.Table, id int64, patch db.Row) (int64, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	changes, err := a.local.Update(ctx, table, id, patch)
	if err != nil || changes == 0 {
		return changes, err
	}
	a.mirror(ctx, pendingWrite{Op: opUpdate, Table: table, ID: id, Row: patch})
	return changes, nil
}

func (a *Adapter) Delete(ctx context.Context, table db.Table, id int64) (int64, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	changes, err := a.local.Delete(ctx, table, id)
	if err != nil || changes == 0 {
		return changes, err
	}
	a.mirror(ctx, pendingWrite{Op: opDelete, Table: table, ID: id})
	return changes, nil
}

func (a *Adapter) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	return a.local.AuthenticateUser(ctx, email, password)
}

// Pull replays the outbox, then copies every table from the server when it
// has changed since the last pull. Tables are only replaced once the outbox
// is empty. Users are skipped because the server never returns password
// hashes. It reports whether anything was replaced.
func (a *Adapter) Pull(ctx context.Context) (bool, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	status, err := a.remote.SyncStatus(ctx)
	if err != nil {
		a.setOnline(false)
		return false, fmt.Errorf("failed to read remote status: %w", err)
	}

	if wasOffline := a.setOnline(true); wasOffline {
		log.Printf("Remote reachable again, mirroring resumed")
	}

	sent, err := a.replay(ctx)
	if err != nil {
		a.setOnline(false)
		return false, fmt.Errorf("failed to replay local writes (%d left): %w", a.Pending(), err)
	}
	if sent > 0 {
		log.Printf("Replayed %d local writes to the server", sent)
		if status, err = a.remote.SyncStatus(ctx); err != nil {
			a.setOnline(false)
			return false, fmt.Errorf("failed to read remote status: %w", err)
		}
	}

	a.mu.Lock()
	stale := status.After(a.lastSeen)
	a.mu.Unlock()
	if !stale {
		return false, nil
	}

	for _, table := range db.Tables() {
		if table == db.Users {
			continue
		}
		rows, err := a.remote.GetAll(ctx, table)
		if err != nil {
			return false, fmt.Errorf("failed to pull %s: %w", table, err)
		}
		if err := a.local.ReplaceTable(ctx, table, rows); err != nil {
			return false, fmt.Errorf("failed to replace %s: %w", table, err)
		}
	}

	a.mu.Lock()
	a.lastSeen = status
	a.mu.Unlock()
	return true, nil
}

// setOnline records reachability and reports whether the adapter was offline.
func (a *Adapter) setOnline(online bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	wasOffline := !a.online
	a.online = online
	return wasOffline
}

// Run pulls every interval until ctx is cancelled, calling onPull after
// each pull that replaced local tables.
func (a *Adapter) Run(ctx context.Context, interval time.Duration, onPull func()) {
	if interval <= 0 {
		interval = DefaultPullInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pulled, err := a.Pull(ctx)
			if err != nil {
				log.Printf("Warning: sync pull failed: %v", err)
				continue
			}
			if pulled && onPull != nil {
				onPull()
			}
		}
	}
}

func (a *Adapter) Close() error {
	localErr := a.local.Close()
	if err := a.remote.Close(); err != nil {
		return err
	}
	return localErr
}
