package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harperreed/crmdesk/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFile(t *testing.T, name string) *db.Store {
	t.Helper()
	s, err := db.OpenSQLite(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *db.Store) (engagementID int64) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateAdminUser(ctx, db.NewUser{Name: "Root", Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)
	contact, err := s.Insert(ctx, db.Contacts, db.Row{"id": int64(17), "name": "Ada", "company": "Engines"})
	require.NoError(t, err)
	engagementID, err = s.Insert(ctx, db.Engagements, db.Row{"id": int64(5), "client_name": "Engines"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, db.Resources, db.Row{"engagement_id": engagementID, "name": "Bob"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, db.Activities, db.Row{"contact_id": contact, "content": "hello"})
	require.NoError(t, err)
	return engagementID
}

func TestMigrateCopiesRowsWithIDs(t *testing.T) {
	src := openFile(t, "src.db")
	dst := openFile(t, "dst.db")
	engagementID := seed(t, src)
	ctx := context.Background()

	counts, err := migrate(ctx, src, dst, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[db.Contacts])
	assert.Equal(t, 1, counts[db.Resources])

	contacts, err := dst.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, int64(17), contacts[0]["id"])

	resources, err := dst.GetAll(ctx, db.Resources)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, engagementID, resources[0]["engagement_id"])

	// Password hashes travel so accounts keep working.
	user, err := dst.AuthenticateUser(ctx, "root@example.com", "pw")
	require.NoError(t, err)
	assert.NotNil(t, user)
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	src := openFile(t, "src.db")
	dst := openFile(t, "dst.db")
	seed(t, src)
	ctx := context.Background()

	counts, err := migrate(ctx, src, dst, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[db.Engagements])

	rows, err := dst.GetAll(ctx, db.Engagements)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMigrateRefusesNonEmptyTarget(t *testing.T) {
	src := openFile(t, "src.db")
	dst := openFile(t, "dst.db")
	seed(t, src)
	ctx := context.Background()

	_, err := dst.Insert(ctx, db.Deals, db.Row{"title": "Existing"})
	require.NoError(t, err)

	_, err = migrate(ctx, src, dst, false, false)
	assert.Error(t, err)
}
