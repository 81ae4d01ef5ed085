// ABOUTME: Tests for CRM data models
// ABOUTME: Validates row conversion, dataset cloning and defaults
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRowUsesColumnNames(t *testing.T) {
	contact := Contact{Name: "Bob", Email: "bob@x.com", Company: "Acme", OwnerID: 2}

	row, err := ToRow(contact, "id")
	require.NoError(t, err)

	assert.Equal(t, "Bob", row["name"])
	assert.Equal(t, "Acme", row["company"])
	assert.Equal(t, json.Number("2"), row["owner_id"])
	_, hasID := row["id"]
	assert.False(t, hasID, "omitted keys must be dropped")
}

func TestToRowNeverLeaksPasswordHash(t *testing.T) {
	row, err := ToRow(User{Name: "Ada", Email: "ada@x.com", PasswordHash: "secret"})
	require.NoError(t, err)

	_, ok := row["password_hash"]
	assert.False(t, ok)
	_, ok = row["PasswordHash"]
	assert.False(t, ok)
}

func TestFromRowHandlesNullsAndIDs(t *testing.T) {
	row := map[string]interface{}{
		"id":         int64(7),
		"title":      "Renewal",
		"value":      1250.5,
		"contact_id": nil,
		"close_date": nil,
	}

	var deal Deal
	require.NoError(t, FromRow(row, &deal))

	assert.Equal(t, int64(7), deal.ID)
	assert.Equal(t, "Renewal", deal.Title)
	assert.Equal(t, 1250.5, deal.Value)
	assert.Nil(t, deal.ContactID)
	assert.Empty(t, deal.CloseDate)
}

func TestFromRows(t *testing.T) {
	rows := []map[string]interface{}{
		{"id": int64(1), "name": "Acme"},
		{"id": int64(2), "name": "Globex"},
	}

	companies, err := FromRows[Company](rows)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "Globex", companies[1].Name)
}

func TestDatasetCloneIsDeep(t *testing.T) {
	original := &Dataset{
		Contacts:    []Contact{{ID: 1, Name: "Bob", PropertyOrder: []string{"email"}}},
		Engagements: []Engagement{{ID: 1, Resources: []Resource{{ID: 1, Name: "Ann"}}}},
		Activities:  []Activity{{ID: 1, ContactID: IDPtr(1), Comments: []Comment{{Text: "hi"}}}},
		Config:      DefaultConfig(),
	}

	clone := original.Clone()
	clone.Contacts[0].Name = "Robert"
	clone.Contacts[0].PropertyOrder[0] = "phone"
	clone.Engagements[0].Resources[0].Name = "Anne"
	*clone.Activities[0].ContactID = 99
	clone.Config.Services[0] = "Changed"

	assert.Equal(t, "Bob", original.Contacts[0].Name)
	assert.Equal(t, "email", original.Contacts[0].PropertyOrder[0])
	assert.Equal(t, "Ann", original.Engagements[0].Resources[0].Name)
	assert.Equal(t, int64(1), *original.Activities[0].ContactID)
	assert.Equal(t, "Recruitment", original.Config.Services[0])
}

func TestCompanyIsVirtual(t *testing.T) {
	assert.True(t, Company{ID: -42}.IsVirtual())
	assert.False(t, Company{ID: 3}.IsVirtual())
}

func TestContactApplyDefaults(t *testing.T) {
	c := Contact{Name: "Bob", Email: "bob@x.com", Company: "Acme"}
	c.ApplyDefaults(7)

	assert.Equal(t, "New", c.Status)
	assert.Equal(t, "Lead", c.Lifecycle)
	assert.Equal(t, int64(7), c.OwnerID)
	assert.Equal(t, DefaultThemeColor, c.ThemeColor)
	assert.Equal(t, DefaultPropertyOrder, c.PropertyOrder)

	kept := Contact{Status: "Contacted", OwnerID: 2}
	kept.ApplyDefaults(7)
	assert.Equal(t, "Contacted", kept.Status)
	assert.Equal(t, int64(2), kept.OwnerID)
}
