// ABOUTME: Tests for generic table CRUD against an in-memory SQLite database
// ABOUTME: Covers insert/update/delete semantics, cascades, and allow-list rejections
package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetAll(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	row := Row{"name": "Ada Lovelace", "email": "ada@example.com", "company": "Analytical Engines"}
	id, err := s.Insert(ctx, Contacts, row)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	rows, err := s.GetAll(ctx, Contacts)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, id, got["id"])
	for k, v := range row {
		assert.Equal(t, v, got[k], "column %s", k)
	}

	// Columns absent from the insert take their defaults.
	assert.Equal(t, "New", got["status"])
	assert.Equal(t, "Lead", got["lifecycle"])
	assert.Equal(t, int64(1), got["owner_id"])
	assert.Equal(t, "#4f46e5", got["theme_color"])
	assert.Equal(t, []interface{}{}, got["property_order"])
}

func TestInsertKeepsExplicitID(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Companies, Row{"id": int64(42), "name": "Initech"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	next, err := s.Insert(ctx, Companies, Row{"name": "Globex"})
	require.NoError(t, err)
	assert.Greater(t, next, int64(42))
}

func TestInsertEmptyRowUsesDefaults(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Settings, Row{})
	require.NoError(t, err)

	rows, err := s.GetAll(ctx, Settings)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["id"])
	assert.Equal(t, []interface{}{}, rows[0]["services"])
}

func TestUpdateChangesOnlyPatchFields(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Deals, Row{"title": "Big Deal", "value": 1000, "stage": "Lead", "probability": 10})
	require.NoError(t, err)

	changes, err := s.Update(ctx, Deals, id, Row{"stage": "Negotiation", "probability": 60})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	rows, err := s.GetAll(ctx, Deals)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Negotiation", rows[0]["stage"])
	assert.Equal(t, int64(60), rows[0]["probability"])
	assert.Equal(t, "Big Deal", rows[0]["title"])
	assert.Equal(t, float64(1000), rows[0]["value"])
}

func TestUpdateMissingRow(t *testing.T) {
	s := setupTestDB(t)

	changes, err := s.Update(context.Background(), Contacts, 999, Row{"name": "Ghost"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changes)
}

func TestUpdateIgnoresID(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Contacts, Row{"name": "Grace"})
	require.NoError(t, err)

	_, err = s.Update(ctx, Contacts, id, Row{"id": int64(500), "name": "Grace Hopper"})
	require.NoError(t, err)

	rows, err := s.GetAll(ctx, Contacts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["id"])
	assert.Equal(t, "Grace Hopper", rows[0]["name"])
}

func TestDeleteEngagementCascades(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	eng, err := s.Insert(ctx, Engagements, Row{"client_name": "Acme"})
	require.NoError(t, err)
	other, err := s.Insert(ctx, Engagements, Row{"client_name": "Umbrella"})
	require.NoError(t, err)

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		_, err := s.Insert(ctx, Resources, Row{"engagement_id": eng, "name": name})
		require.NoError(t, err)
	}
	_, err = s.Insert(ctx, Resources, Row{"engagement_id": other, "name": "Dave"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Activities, Row{"engagement_id": eng, "content": "kickoff"})
	require.NoError(t, err)

	changes, err := s.Delete(ctx, Engagements, eng)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	resources, err := s.GetAll(ctx, Resources)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "Dave", resources[0]["name"])

	activities, err := s.GetAll(ctx, Activities)
	require.NoError(t, err)
	assert.Empty(t, activities)
}

func TestDeleteContactCascadesActivities(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	contact, err := s.Insert(ctx, Contacts, Row{"name": "Linus"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Activities, Row{"contact_id": contact, "type": "task", "content": "call back"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Activities, Row{"content": "unattached"})
	require.NoError(t, err)

	_, err = s.Delete(ctx, Contacts, contact)
	require.NoError(t, err)

	activities, err := s.GetAll(ctx, Activities)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "unattached", activities[0]["content"])
}

func TestDeleteCompanyKeepsContacts(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	company, err := s.Insert(ctx, Companies, Row{"name": "Acme"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Contacts, Row{"name": "Wile E.", "company": "Acme"})
	require.NoError(t, err)

	_, err = s.Delete(ctx, Companies, company)
	require.NoError(t, err)

	contacts, err := s.GetAll(ctx, Contacts)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Acme", contacts[0]["company"])
}

func TestDeleteMissingRow(t *testing.T) {
	s := setupTestDB(t)

	changes, err := s.Delete(context.Background(), Deals, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(0), changes)
}

func TestRejectsUnknownNames(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.GetAll(ctx, Table("nonexistent"))
	assert.True(t, errors.Is(err, ErrUnknownTable))

	_, err = s.Insert(ctx, Table("users; DROP TABLE users"), Row{"name": "x"})
	assert.True(t, errors.Is(err, ErrUnknownTable))

	_, err = s.Insert(ctx, Contacts, Row{"name": "x", "favorite_color": "blue"})
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	_, err = s.Update(ctx, Contacts, 1, Row{"name\" = 'x'; --": "boom"})
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	_, err = s.Insert(ctx, Deals, Row{"title": "x", "value": "lots"})
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestConstraintViolation(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, Users, Row{"name": "A", "email": "dup@example.com"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Users, Row{"name": "B", "email": "dup@example.com"})
	assert.True(t, errors.Is(err, ErrConstraint))

	_, err = s.Insert(ctx, Resources, Row{"engagement_id": int64(999), "name": "Orphan"})
	assert.True(t, errors.Is(err, ErrConstraint), "foreign keys are enforced")
}

func TestJSONAndBoolColumns(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	comments := []interface{}{map[string]interface{}{"id": float64(1), "text": "first"}}
	id, err := s.Insert(ctx, Activities, Row{"type": "task", "completed": true, "comments": comments})
	require.NoError(t, err)

	rows, err := s.GetAll(ctx, Activities)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["completed"])
	assert.Equal(t, comments, rows[0]["comments"])

	_, err = s.Update(ctx, Activities, id, Row{"completed": false})
	require.NoError(t, err)
	rows, err = s.GetAll(ctx, Activities)
	require.NoError(t, err)
	assert.Equal(t, false, rows[0]["completed"])
}

func TestRawQueryAndRun(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	res, err := s.Run(ctx, "INSERT INTO contacts (name, email) VALUES (?, ?)", "Raw", "raw@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Changes)
	assert.Greater(t, res.LastInsertID, int64(0))

	rows, err := s.Query(ctx, "SELECT name, email FROM contacts WHERE id = ?", res.LastInsertID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Raw", rows[0]["name"])
	assert.Equal(t, "raw@example.com", rows[0]["email"])
}
