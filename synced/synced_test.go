// ABOUTME: Tests for the synced adapter over a badger-backed local store and an httptest server
// ABOUTME: Covers mirroring, offline start, outbox replay and pulls
package synced

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/crmdesk/charm"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/local"
	"github.com/harperreed/crmdesk/remote"
	"github.com/harperreed/crmdesk/store"
	"github.com/harperreed/crmdesk/store/storetest"
	"github.com/harperreed/crmdesk/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) Alert(msg string) {
	a.mu.Lock()
	a.msgs = append(a.msgs, msg)
	a.mu.Unlock()
}

func (a *alerts) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

func newLocal(t *testing.T) *local.Adapter {
	t.Helper()
	kv := charm.NewTestKV(t)
	require.NoError(t, kv.Set([]byte(local.DataKey), []byte(`{}`)))
	a, err := local.Open(context.Background(), kv, local.Options{})
	require.NoError(t, err)
	return a
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ts := httptest.NewServer(web.NewServer(s, web.Config{JWTSecret: "synced-test"}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// outage answers 503 while down is set.
type outage struct {
	down atomic.Bool
	next http.Handler
}

func (o *outage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if o.down.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	o.next.ServeHTTP(w, r)
}

func newFlakyServer(t *testing.T) (*httptest.Server, *outage) {
	t.Helper()
	s, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	o := &outage{next: web.NewServer(s, web.Config{JWTSecret: "synced-test"}).Handler()}
	ts := httptest.NewServer(o)
	t.Cleanup(ts.Close)
	return ts, o
}

func loggedIn(t *testing.T, url string) *remote.Client {
	t.Helper()
	ctx := context.Background()
	c := remote.New(url, "")
	_, _ = c.Register(ctx, db.NewUser{Name: "Admin", Email: "admin@example.com", Password: "pw"})
	user, err := c.AuthenticateUser(ctx, "admin@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, user)
	return c
}

func openSynced(t *testing.T, url string, n store.Notifier) *Adapter {
	t.Helper()
	a := Open(context.Background(), newLocal(t), loggedIn(t, url), n)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSyncedContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return openSynced(t, newServer(t).URL, nil)
	})
}

func TestWritesAreMirroredWithLocalIDs(t *testing.T) {
	ts := newServer(t)
	a := openSynced(t, ts.URL, nil)
	ctx := context.Background()
	require.True(t, a.Online())

	id, err := a.Insert(ctx, db.Contacts, db.Row{"name": "Mirrored", "email": "m@example.com"})
	require.NoError(t, err)
	_, err = a.Update(ctx, db.Contacts, id, db.Row{"status": "Active"})
	require.NoError(t, err)

	server := loggedIn(t, ts.URL)
	rows, err := server.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["id"])
	assert.Equal(t, "Active", rows[0]["status"])

	_, err = a.Delete(ctx, db.Contacts, id)
	require.NoError(t, err)
	rows, err = server.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, a.MirrorFailures())
}

func TestOfflineStart(t *testing.T) {
	ts := newServer(t)
	client := loggedIn(t, ts.URL)
	ts.Close()

	n := &alerts{}
	a := Open(context.Background(), newLocal(t), client, n)
	defer a.Close()

	assert.False(t, a.Online())
	assert.Equal(t, []string{OfflineMessage}, n.all())

	id, err := a.Insert(context.Background(), db.Companies, db.Row{"name": "Offline Co"})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Zero(t, a.MirrorFailures(), "nothing is attempted while offline")

	_, err = a.Pull(context.Background())
	assert.Error(t, err)
}

func TestMirrorFailuresAreCountedNotReturned(t *testing.T) {
	ts := newServer(t)
	a := openSynced(t, ts.URL, nil)
	ts.Close()

	_, err := a.Insert(context.Background(), db.Deals, db.Row{"title": "Local only"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.MirrorFailures())

	rows, err := a.GetAll(context.Background(), db.Deals)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPullReplacesLocalTables(t *testing.T) {
	ts := newServer(t)
	a := openSynced(t, ts.URL, nil)
	ctx := context.Background()

	pulled, err := a.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, pulled, "first pull always copies")

	other := loggedIn(t, ts.URL)
	eng, err := other.Insert(ctx, db.Engagements, db.Row{"client_name": "Acme"})
	require.NoError(t, err)
	_, err = other.Insert(ctx, db.Resources, db.Row{"engagement_id": eng, "name": "Alice"})
	require.NoError(t, err)

	pulled, err = a.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, pulled)

	resources, err := a.GetAll(ctx, db.Resources)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, eng, resources[0]["engagement_id"])

	pulled, err = a.Pull(ctx)
	require.NoError(t, err)
	assert.False(t, pulled, "nothing changed on the server")

	users, err := a.GetAll(ctx, db.Users)
	require.NoError(t, err)
	assert.Empty(t, users, "users are never pulled")
}

func TestRunPullsUntilCancelled(t *testing.T) {
	ts := newServer(t)
	a := openSynced(t, ts.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pulls := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		a.Run(ctx, 10*time.Millisecond, func() {
			select {
			case pulls <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-pulls:
	case <-time.After(5 * time.Second):
		t.Fatal("first pull never happened")
	}

	_, err := loggedIn(t, ts.URL).Insert(context.Background(), db.Deals, db.Row{"title": "Pulled"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rows, err := a.GetAll(context.Background(), db.Deals)
		return err == nil && len(rows) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestOfflineWritesSurviveReconnect(t *testing.T) {
	ts, o := newFlakyServer(t)
	client := loggedIn(t, ts.URL)
	o.down.Store(true)

	a := Open(context.Background(), newLocal(t), client, &alerts{})
	defer a.Close()
	require.False(t, a.Online())
	ctx := context.Background()

	id, err := a.Insert(ctx, db.Contacts, db.Row{"name": "Written Offline"})
	require.NoError(t, err)
	_, err = a.Update(ctx, db.Contacts, id, db.Row{"status": "Active"})
	require.NoError(t, err)
	_, err = a.Insert(ctx, db.Deals, db.Row{"title": "Offline Deal", "value": 500})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Pending())

	_, err = a.Pull(ctx)
	require.Error(t, err, "still down")
	assert.Equal(t, 3, a.Pending())

	o.down.Store(false)
	pulled, err := a.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, pulled)
	assert.True(t, a.Online())
	assert.Zero(t, a.Pending())

	contacts, err := a.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, id, contacts[0]["id"])
	assert.Equal(t, "Active", contacts[0]["status"])

	deals, err := a.GetAll(ctx, db.Deals)
	require.NoError(t, err)
	assert.Len(t, deals, 1)

	server, err := loggedIn(t, ts.URL).GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, server, 1)
	assert.Equal(t, "Written Offline", server[0]["name"])
}

func TestFailedMirrorsAreReplayedInOrder(t *testing.T) {
	ts, o := newFlakyServer(t)
	a := openSynced(t, ts.URL, nil)
	ctx := context.Background()

	o.down.Store(true)
	id, err := a.Insert(ctx, db.Companies, db.Row{"name": "Initech"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.MirrorFailures())

	_, err = a.Update(ctx, db.Companies, id, db.Row{"industry": "Software"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.MirrorFailures(), "later writes queue behind the failed one")
	assert.Equal(t, 2, a.Pending())

	o.down.Store(false)
	_, err = a.Pull(ctx)
	require.NoError(t, err)
	assert.Zero(t, a.Pending())

	rows, err := loggedIn(t, ts.URL).GetAll(ctx, db.Companies)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["id"])
	assert.Equal(t, "Software", rows[0]["industry"])
}

func TestOutboxSurvivesRestart(t *testing.T) {
	ts, o := newFlakyServer(t)
	client := loggedIn(t, ts.URL)
	dir := t.TempDir()
	ctx := context.Background()

	openAt := func() *local.Adapter {
		kv, err := charm.OpenBadger(dir)
		require.NoError(t, err)
		l, err := local.Open(ctx, kv, local.Options{})
		require.NoError(t, err)
		return l
	}

	o.down.Store(true)
	a := Open(ctx, openAt(), client, &alerts{})
	id, err := a.Insert(ctx, db.Contacts, db.Row{"name": "Queued Before Exit"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	o.down.Store(false)
	b := Open(ctx, openAt(), loggedIn(t, ts.URL), nil)
	defer b.Close()
	assert.Equal(t, 1, b.Pending())

	_, err = b.Pull(ctx)
	require.NoError(t, err)
	assert.Zero(t, b.Pending())

	rows, err := b.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["id"])
}

func TestRejectedWritesAreDropped(t *testing.T) {
	ts, o := newFlakyServer(t)
	client := loggedIn(t, ts.URL)
	o.down.Store(true)

	a := Open(context.Background(), newLocal(t), client, &alerts{})
	defer a.Close()
	ctx := context.Background()

	// The server refuses password hashes in user rows.
	_, err := a.Insert(ctx, db.Users, db.Row{"name": "Local", "email": "local@example.com", "password_hash": "x"})
	require.NoError(t, err)
	_, err = a.Insert(ctx, db.Contacts, db.Row{"name": "Accepted"})
	require.NoError(t, err)
	require.Equal(t, 2, a.Pending())

	o.down.Store(false)
	pulled, err := a.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, pulled)
	assert.Zero(t, a.Pending())

	contacts, err := a.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}
