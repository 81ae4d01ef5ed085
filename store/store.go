// ABOUTME: The CRUD contract every persistence backend implements
// ABOUTME: SQL, IPC, local KV, remote HTTP and synced adapters all satisfy Store
package store

import (
	"context"
	"errors"
	"log"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
)

var (
	// ErrNotFound is returned when an update or delete matched no row.
	ErrNotFound = errors.New("not found")

	// ErrDeleteSelf is returned when a user tries to delete their own account.
	ErrDeleteSelf = errors.New("cannot delete your own account")
)

// Store is the table-oriented CRUD surface. Rows follow db.Schema: every
// backend validates names, applies defaults and returns normalised values.
type Store interface {
	GetAll(ctx context.Context, table db.Table) ([]db.Row, error)
	Insert(ctx context.Context, table db.Table, row db.Row) (int64, error)
	Update(ctx context.Context, table db.Table, id int64, patch db.Row) (int64, error)
	Delete(ctx context.Context, table db.Table, id int64) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
	Close() error
}

var _ Store = (*db.Store)(nil)

// Notifier surfaces problems the user has to see, such as a full quota or a lost remote.
type Notifier interface {
	Alert(msg string)
}

// LogNotifier writes alerts to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Alert(msg string) {
	log.Printf("ALERT: %s", msg)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Alert(msg string) { f(msg) }
