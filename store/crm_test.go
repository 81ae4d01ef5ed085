// ABOUTME: Tests for the typed CRM surface over an in-memory SQLite store
// ABOUTME: Also runs the shared Store contract against the SQL Row Store
package store_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
	"github.com/harperreed/crmdesk/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T) store.Store {
	t.Helper()
	s, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newCRM(t *testing.T) *store.CRM {
	return store.NewCRM(newSQLStore(t))
}

func TestSQLContract(t *testing.T) {
	storetest.RunContract(t, newSQLStore)
}

func TestAddContactAppliesDefaults(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	c, err := crm.AddContact(ctx, models.Contact{Name: "Bob", Email: "bob@x.com", Company: "Acme"})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.NotEmpty(t, c.CreatedAt)

	ds, err := crm.LoadDataset(ctx)
	require.NoError(t, err)
	require.Len(t, ds.Contacts, 1)

	got := ds.Contacts[0]
	assert.Equal(t, "New", got.Status)
	assert.Equal(t, "Lead", got.Lifecycle)
	assert.Equal(t, models.DefaultOwnerID, got.OwnerID)
	assert.Equal(t, models.DefaultPropertyOrder, got.PropertyOrder)
	assert.Equal(t, "Acme", got.Company)
}

func TestUpdateMissingContact(t *testing.T) {
	crm := newCRM(t)

	_, err := crm.UpdateContact(context.Background(), models.Contact{ID: 77, Name: "Ghost"})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = crm.DeleteDeal(context.Background(), 77)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUpdateEngagementReplacesResources(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	e, err := crm.AddEngagement(ctx, models.Engagement{
		ClientName: "Acme",
		Resources: []models.Resource{
			{Name: "Ann", Role: "Recruiter"},
			{Name: "Ben", Role: "Sourcer"},
			{Name: "Staffing Co", Type: models.ResourceTypeVendor},
		},
	})
	require.NoError(t, err)
	require.Len(t, e.Resources, 3)
	assert.Equal(t, models.ResourceTypeResource, e.Resources[0].Type)

	e.Resources = []models.Resource{{Name: "Cat", Role: "Lead"}}
	_, err = crm.UpdateEngagement(ctx, e)
	require.NoError(t, err)

	ds, err := crm.LoadDataset(ctx)
	require.NoError(t, err)
	require.Len(t, ds.Engagements, 1)
	require.Len(t, ds.Engagements[0].Resources, 1)
	assert.Equal(t, "Cat", ds.Engagements[0].Resources[0].Name)
	assert.Equal(t, e.ID, ds.Engagements[0].Resources[0].EngagementID)
}

func TestDeleteEngagementRemovesResources(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	e, err := crm.AddEngagement(ctx, models.Engagement{ClientName: "Acme", Resources: []models.Resource{{Name: "Ann"}}})
	require.NoError(t, err)
	require.NoError(t, crm.DeleteEngagement(ctx, e.ID))

	rows, err := crm.Store().GetAll(ctx, db.Resources)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestActivityRoundTrip(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	contact, err := crm.AddContact(ctx, models.Contact{Name: "Dana"})
	require.NoError(t, err)

	a, err := crm.AddActivity(ctx, models.Activity{
		Type:      models.ActivityTask,
		Content:   "<p>Send proposal</p>",
		ContactID: models.IDPtr(contact.ID),
	})
	require.NoError(t, err)

	a.Completed = true
	a.Comments = []models.Comment{{Author: "Dana", Text: "done"}}
	_, err = crm.UpdateActivity(ctx, a)
	require.NoError(t, err)

	ds, err := crm.LoadDataset(ctx)
	require.NoError(t, err)
	require.Len(t, ds.Activities, 1)
	got := ds.Activities[0]
	assert.True(t, got.Completed)
	require.NotNil(t, got.ContactID)
	assert.Equal(t, contact.ID, *got.ContactID)
	assert.Nil(t, got.EngagementID)
	assert.Equal(t, []models.Comment{{Author: "Dana", Text: "done"}}, got.Comments)
}

func TestConfigDefaultsAndSave(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	cfg, err := crm.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConfig().Services, cfg.Services)

	cfg.Vendors = []string{"Staffing Co"}
	saved, err := crm.SaveConfig(ctx, cfg)
	require.NoError(t, err)

	saved.Services = []string{"Audit"}
	_, err = crm.SaveConfig(ctx, saved)
	require.NoError(t, err)

	rows, err := crm.Store().GetAll(ctx, db.Settings)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "settings is a singleton row")

	got, err := crm.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Audit"}, got.Services)
	assert.Equal(t, []string{"Staffing Co"}, got.Vendors)
}

func TestUsers(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	admin, err := crm.AddUser(ctx, db.NewUser{Name: "Admin", Email: "admin@x.com", Password: "pw", Role: models.RoleAdmin})
	require.NoError(t, err)
	other, err := crm.AddUser(ctx, db.NewUser{Name: "Sam", Email: "sam@x.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStandard, other.Role)

	users, err := crm.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}

	assert.True(t, errors.Is(crm.DeleteUser(ctx, admin.ID, admin.ID), store.ErrDeleteSelf))
	require.NoError(t, crm.DeleteUser(ctx, admin.ID, other.ID))
}

func TestExportStripsPasswordHashes(t *testing.T) {
	crm := newCRM(t)
	ctx := context.Background()

	_, err := crm.AddUser(ctx, db.NewUser{Name: "Admin", Email: "admin@x.com", Password: "pw", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = crm.AddContact(ctx, models.Contact{Name: "Bob"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, crm.Export(ctx, &buf))
	assert.False(t, strings.Contains(buf.String(), "password_hash"))
	assert.False(t, strings.Contains(buf.String(), "$2a$"))

	var ds models.Dataset
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ds))
	assert.Len(t, ds.Users, 1)
	assert.Len(t, ds.Contacts, 1)
	assert.NotNil(t, ds.LastSaved)
}
