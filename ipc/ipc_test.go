// ABOUTME: Tests for the IPC bridge and client over a real loopback WebSocket
// ABOUTME: Covers the Store contract, token checks, raw SQL and database location switches
package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/store"
	"github.com/harperreed/crmdesk/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBridge struct {
	bridge *Bridge
	url    string
	token  string
}

func startBridge(t *testing.T) *testBridge {
	t.Helper()
	token, err := NewToken()
	require.NoError(t, err)

	b, err := NewBridge(filepath.Join(t.TempDir(), "crm.db"), token)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = b.Close()
	})

	return &testBridge{bridge: b, url: "ws://" + ln.Addr().String(), token: token}
}

func dial(t *testing.T, tb *testBridge) *Client {
	t.Helper()
	c, err := Dial(context.Background(), tb.url, tb.token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIPCContract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return dial(t, startBridge(t))
	})
}

func TestDialRequiresToken(t *testing.T) {
	tb := startBridge(t)

	_, err := Dial(context.Background(), tb.url, "wrong")
	assert.Error(t, err)

	_, err = Dial(context.Background(), tb.url, "")
	assert.Error(t, err)
}

func TestRemoteErrorsKeepSentinels(t *testing.T) {
	c := dial(t, startBridge(t))
	ctx := context.Background()

	_, err := c.Insert(ctx, db.Resources, db.Row{"engagement_id": int64(404), "name": "Orphan"})
	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, MethodInsert, rerr.Method)
	assert.True(t, errors.Is(err, db.ErrConstraint))

	_, err = c.Delete(ctx, db.Table("nope"), 1)
	assert.True(t, errors.Is(err, db.ErrUnknownTable))
}

func TestRawQueryAndRun(t *testing.T) {
	c := dial(t, startBridge(t))
	ctx := context.Background()

	res, err := c.Run(ctx, "INSERT INTO companies (name, industry) VALUES (?, ?)", "Initech", "Software")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Changes)

	rows, err := c.Query(ctx, "SELECT name FROM companies WHERE id = ?", res.LastInsertID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Initech", rows[0]["name"])

	_, err = c.Query(ctx, "SELECT * FROM missing_table")
	assert.Error(t, err)
}

func TestCreateAdminAndLogin(t *testing.T) {
	c := dial(t, startBridge(t))
	ctx := context.Background()

	id, err := c.CreateAdmin(ctx, db.NewUser{Name: "Root", Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)

	user, err := c.AuthenticateUser(ctx, "root@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "admin", user.Role)

	user, err = c.AuthenticateUser(ctx, "root@example.com", "bad")
	require.NoError(t, err)
	assert.Nil(t, user)

	users, err := c.GetAll(ctx, db.Users)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Nil(t, users[0]["password_hash"], "hashes never cross the bridge")
}

func TestConcurrentCalls(t *testing.T) {
	c := dial(t, startBridge(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 20)
	errs := make([]error, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = c.Insert(ctx, db.DashboardNotes, db.Row{"content": "note"})
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i, id := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestBackup(t *testing.T) {
	c := dial(t, startBridge(t))

	path, err := c.Backup(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLocationSwitches(t *testing.T) {
	tb := startBridge(t)
	c := dial(t, tb)
	ctx := context.Background()

	_, err := c.Insert(ctx, db.Contacts, db.Row{"name": "Portable"})
	require.NoError(t, err)

	start, err := c.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "crm.db", filepath.Base(start.Path))

	// Move the file to a new directory; data follows.
	moved, err := c.ChangeLocation(ctx, filepath.Join(t.TempDir(), "moved"))
	require.NoError(t, err)
	assert.NotEqual(t, start.Path, moved.Path)
	rows, err := c.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Eject starts an empty database beside the current one.
	ejected, err := c.Eject(ctx)
	require.NoError(t, err)
	assert.Equal(t, moved.Dir, ejected.Dir)
	assert.True(t, strings.HasPrefix(filepath.Base(ejected.Path), "crmdesk-"))
	assert.True(t, strings.HasSuffix(ejected.Path, ".db"))
	rows, err = c.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Opening a missing file fails and keeps the current database.
	_, err = c.Open(ctx, filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
	loc, err := c.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, ejected.Path, loc.Path)

	// Reopen the moved file.
	reopened, err := c.Open(ctx, moved.Path)
	require.NoError(t, err)
	assert.Equal(t, moved.Path, reopened.Path)
	rows, err = c.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Portable", rows[0]["name"])
}

func TestChangeLocationRefusesOverwrite(t *testing.T) {
	tb := startBridge(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crm.db"), []byte("occupied"), 0644))

	_, err := tb.bridge.ChangeLocation(context.Background(), dir)
	assert.True(t, errors.Is(err, db.ErrInvalidValue))
	assert.NotEqual(t, dir, tb.bridge.Location().Dir)
}

func TestCallAfterClose(t *testing.T) {
	tb := startBridge(t)
	c, err := Dial(context.Background(), tb.url, tb.token)
	require.NoError(t, err)
	_ = c.Close()

	_, err = c.GetAll(context.Background(), db.Contacts)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestListenRejectsNonLoopback(t *testing.T) {
	tb := startBridge(t)
	err := tb.bridge.ListenAndServe(context.Background(), "0.0.0.0:0")
	assert.Error(t, err)
}
