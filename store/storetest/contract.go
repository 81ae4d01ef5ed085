// ABOUTME: Shared behavioural tests for every Store implementation
// ABOUTME: Each adapter package runs RunContract against its own constructor
package storetest

import (
	"context"
	"testing"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store; the test owns closing it through t.Cleanup.
type Factory func(t *testing.T) store.Store

// RunContract checks the CRUD semantics every backend must share.
func RunContract(t *testing.T, newStore Factory) {
	t.Run("InsertThenGetAll", func(t *testing.T) { testInsertThenGetAll(t, newStore(t)) })
	t.Run("UpdateOnlyPatch", func(t *testing.T) { testUpdateOnlyPatch(t, newStore(t)) })
	t.Run("EngagementCascade", func(t *testing.T) { testEngagementCascade(t, newStore(t)) })
	t.Run("ContactCascade", func(t *testing.T) { testContactCascade(t, newStore(t)) })
	t.Run("CompanyDeleteKeepsContacts", func(t *testing.T) { testCompanyDeleteKeepsContacts(t, newStore(t)) })
	t.Run("MissingRows", func(t *testing.T) { testMissingRows(t, newStore(t)) })
	t.Run("RejectsUnknownNames", func(t *testing.T) { testRejectsUnknownNames(t, newStore(t)) })
	t.Run("AuthenticateUnknownUser", func(t *testing.T) { testAuthenticateUnknownUser(t, newStore(t)) })
}

func find(rows []db.Row, id int64) db.Row {
	for _, r := range rows {
		if r["id"] == id {
			return r
		}
	}
	return nil
}

func countWhere(rows []db.Row, col string, id int64) int {
	n := 0
	for _, r := range rows {
		if r[col] == id {
			n++
		}
	}
	return n
}

func testInsertThenGetAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	row := db.Row{"name": "Bob", "email": "bob@x.com", "company": "Acme", "owner_id": int64(3)}

	id, err := s.Insert(ctx, db.Contacts, row)
	require.NoError(t, err)

	rows, err := s.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	got := find(rows, id)
	require.NotNil(t, got, "inserted row %d must be returned", id)
	for k, v := range row {
		assert.Equal(t, v, got[k], "column %s", k)
	}
	assert.Equal(t, "New", got["status"])
	assert.Equal(t, "Lead", got["lifecycle"])
}

func testUpdateOnlyPatch(t *testing.T, s store.Store) {
	ctx := context.Background()

	id, err := s.Insert(ctx, db.Deals, db.Row{"title": "Renewal", "company": "Acme", "value": 2500.0, "probability": int64(20)})
	require.NoError(t, err)

	before, err := s.GetAll(ctx, db.Deals)
	require.NoError(t, err)

	changed, err := s.Update(ctx, db.Deals, id, db.Row{"stage": "Proposal"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	after, err := s.GetAll(ctx, db.Deals)
	require.NoError(t, err)

	old, cur := find(before, id), find(after, id)
	require.NotNil(t, cur)
	for k, v := range old {
		if k == "stage" {
			assert.Equal(t, "Proposal", cur[k])
			continue
		}
		assert.Equal(t, v, cur[k], "column %s must be unchanged", k)
	}
}

func testEngagementCascade(t *testing.T, s store.Store) {
	ctx := context.Background()

	eng, err := s.Insert(ctx, db.Engagements, db.Row{"client_name": "Acme"})
	require.NoError(t, err)
	keep, err := s.Insert(ctx, db.Engagements, db.Row{"client_name": "Initech"})
	require.NoError(t, err)

	for _, name := range []string{"Ann", "Ben"} {
		_, err := s.Insert(ctx, db.Resources, db.Row{"engagement_id": eng, "name": name})
		require.NoError(t, err)
	}
	_, err = s.Insert(ctx, db.Resources, db.Row{"engagement_id": keep, "name": "Cat"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, db.Activities, db.Row{"engagement_id": eng, "content": "kickoff"})
	require.NoError(t, err)

	changed, err := s.Delete(ctx, db.Engagements, eng)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	resources, err := s.GetAll(ctx, db.Resources)
	require.NoError(t, err)
	assert.Equal(t, 0, countWhere(resources, "engagement_id", eng))
	assert.Equal(t, 1, countWhere(resources, "engagement_id", keep))

	activities, err := s.GetAll(ctx, db.Activities)
	require.NoError(t, err)
	assert.Equal(t, 0, countWhere(activities, "engagement_id", eng))
}

func testContactCascade(t *testing.T, s store.Store) {
	ctx := context.Background()

	contact, err := s.Insert(ctx, db.Contacts, db.Row{"name": "Dana"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, db.Activities, db.Row{"contact_id": contact, "content": "called"})
	require.NoError(t, err)

	_, err = s.Delete(ctx, db.Contacts, contact)
	require.NoError(t, err)

	activities, err := s.GetAll(ctx, db.Activities)
	require.NoError(t, err)
	assert.Equal(t, 0, countWhere(activities, "contact_id", contact))
}

func testCompanyDeleteKeepsContacts(t *testing.T, s store.Store) {
	ctx := context.Background()

	company, err := s.Insert(ctx, db.Companies, db.Row{"name": "Acme"})
	require.NoError(t, err)
	contact, err := s.Insert(ctx, db.Contacts, db.Row{"name": "Eve", "company": "Acme"})
	require.NoError(t, err)

	before, err := s.GetAll(ctx, db.Contacts)
	require.NoError(t, err)

	_, err = s.Delete(ctx, db.Companies, company)
	require.NoError(t, err)

	after, err := s.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	assert.Equal(t, find(before, contact), find(after, contact))
}

func testMissingRows(t *testing.T, s store.Store) {
	ctx := context.Background()

	changed, err := s.Update(ctx, db.Contacts, 424242, db.Row{"name": "Nobody"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)

	changed, err = s.Delete(ctx, db.Contacts, 424242)
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)
}

func testRejectsUnknownNames(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetAll(ctx, db.Table("secrets"))
	assert.Error(t, err)

	_, err = s.Insert(ctx, db.Contacts, db.Row{"name": "x", "drop table": 1})
	assert.Error(t, err)

	rows, err := s.GetAll(ctx, db.Contacts)
	require.NoError(t, err)
	assert.Empty(t, rows, "rejected inserts must not write")
}

func testAuthenticateUnknownUser(t *testing.T, s store.Store) {
	user, err := s.AuthenticateUser(context.Background(), "nobody@x.com", "pw")
	require.NoError(t, err)
	assert.Nil(t, user)
}
