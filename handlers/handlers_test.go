// ABOUTME: Tests for the MCP tool and resource handlers
// ABOUTME: Drives handlers directly against a controller over in-memory SQLite
package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupController(t *testing.T) *crm.Controller {
	t.Helper()
	s, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctrl := crm.NewController(store.NewCRM(s))
	_, err = ctrl.Refresh(context.Background())
	require.NoError(t, err)
	return ctrl
}

func TestAddAndFindContacts(t *testing.T) {
	ctrl := setupController(t)
	h := NewContactHandlers(ctrl)
	ctx := context.Background()

	_, created, err := h.AddContact(ctx, nil, AddContactInput{Name: "John Doe", Email: "john@example.com", Company: "Acme Corp"})
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))
	assert.Equal(t, "New", created.Status)

	_, _, err = h.AddContact(ctx, nil, AddContactInput{Name: "Jane Roe", Email: "jane@globex.com", Company: "Globex"})
	require.NoError(t, err)

	_, found, err := h.FindContacts(ctx, nil, FindContactsInput{Query: "john"})
	require.NoError(t, err)
	require.Len(t, found.Contacts, 1)
	assert.Equal(t, "John Doe", found.Contacts[0].Name)

	_, found, err = h.FindContacts(ctx, nil, FindContactsInput{Company: " acme corp"})
	require.NoError(t, err)
	require.Len(t, found.Contacts, 1)

	_, found, err = h.FindContacts(ctx, nil, FindContactsInput{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, found.Contacts, 1)
}

func TestAddContactRequiresName(t *testing.T) {
	h := NewContactHandlers(setupController(t))

	_, _, err := h.AddContact(context.Background(), nil, AddContactInput{Name: "  "})
	assert.Error(t, err)
}

func TestUpdateContactKeepsUnsetFields(t *testing.T) {
	ctrl := setupController(t)
	h := NewContactHandlers(ctrl)
	ctx := context.Background()

	_, created, err := h.AddContact(ctx, nil, AddContactInput{Name: "Ada", Email: "ada@example.com", Phone: "555"})
	require.NoError(t, err)

	_, updated, err := h.UpdateContact(ctx, nil, UpdateContactInput{ID: created.ID, Email: "ada@engines.com"})
	require.NoError(t, err)
	assert.Equal(t, "ada@engines.com", updated.Email)
	assert.Equal(t, "555", updated.Phone)
	assert.Equal(t, "Ada", ctrl.Snapshot().Contacts[0].Name)

	_, _, err = h.UpdateContact(ctx, nil, UpdateContactInput{ID: 999, Name: "Ghost"})
	assert.Error(t, err)
}

func TestAddActivityAndDeleteContact(t *testing.T) {
	ctrl := setupController(t)
	h := NewContactHandlers(ctrl)
	ctx := context.Background()

	_, c, err := h.AddContact(ctx, nil, AddContactInput{Name: "Linus"})
	require.NoError(t, err)

	_, activity, err := h.AddActivity(ctx, nil, AddActivityInput{ContactID: c.ID, Content: "intro call"})
	require.NoError(t, err)
	assert.Equal(t, "note", activity.Type)
	require.NotNil(t, activity.ContactID)
	assert.Equal(t, c.ID, *activity.ContactID)

	_, _, err = h.AddActivity(ctx, nil, AddActivityInput{ContactID: 4242, Content: "nobody"})
	assert.Error(t, err)

	_, out, err := h.DeleteContact(ctx, nil, DeleteInput{ID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, c.ID, out.Deleted)

	snap := ctrl.Snapshot()
	assert.Empty(t, snap.Contacts)
	assert.Empty(t, snap.Activities, "activities go with their contact")
}

func TestListAndPromoteCompanies(t *testing.T) {
	ctrl := setupController(t)
	contacts := NewContactHandlers(ctrl)
	h := NewCompanyHandlers(ctrl)
	ctx := context.Background()

	_, _, err := contacts.AddContact(ctx, nil, AddContactInput{Name: "Wile E.", Company: "Acme"})
	require.NoError(t, err)

	_, list, err := h.ListCompanies(ctx, nil, ListCompaniesInput{VirtualOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Companies, 1)
	virtual := list.Companies[0]
	assert.True(t, virtual.Virtual)
	assert.Equal(t, 1, virtual.Contacts)
	assert.Less(t, virtual.Company.ID, int64(0))

	_, company, err := h.PromoteCompany(ctx, nil, PromoteCompanyInput{ID: virtual.Company.ID, Industry: "Anvils"})
	require.NoError(t, err)
	assert.Greater(t, company.ID, int64(0))
	assert.Equal(t, "Acme", company.Name)
	assert.Equal(t, "Anvils", company.Industry)

	_, list, err = h.ListCompanies(ctx, nil, ListCompaniesInput{})
	require.NoError(t, err)
	require.Len(t, list.Companies, 1)
	assert.False(t, list.Companies[0].Virtual)
}

func TestAssignOwnerPropagates(t *testing.T) {
	ctrl := setupController(t)
	contacts := NewContactHandlers(ctrl)
	h := NewCompanyHandlers(ctrl)
	ctx := context.Background()

	for _, name := range []string{"A", "B"} {
		_, _, err := contacts.AddContact(ctx, nil, AddContactInput{Name: name, Company: "Initech"})
		require.NoError(t, err)
	}

	_, out, err := h.AssignOwner(ctx, nil, AssignOwnerInput{CompanyID: crm.VirtualCompanyID("Initech"), OwnerID: 7})
	require.NoError(t, err)
	assert.Equal(t, "Initech", out.Company)
	assert.Equal(t, 2, out.Contacts)

	for _, c := range ctrl.Snapshot().Contacts {
		assert.Equal(t, int64(7), c.OwnerID)
	}
}

func TestAssignResourceRequiresName(t *testing.T) {
	h := NewCompanyHandlers(setupController(t))

	_, _, err := h.AssignResource(context.Background(), nil, AssignResourceInput{CompanyID: 1})
	assert.Error(t, err)
}

func TestDealsAndEngagements(t *testing.T) {
	ctrl := setupController(t)
	h := NewDealHandlers(ctrl)
	ctx := context.Background()

	_, deal, err := h.CreateDeal(ctx, nil, CreateDealInput{Title: "Big Deal", Value: 1000, Probability: 40})
	require.NoError(t, err)
	assert.Equal(t, "Lead", deal.Stage)

	_, _, err = h.CreateDeal(ctx, nil, CreateDealInput{Title: "Other", Value: 500, Stage: "Negotiation"})
	require.NoError(t, err)

	_, _, err = h.CreateDeal(ctx, nil, CreateDealInput{Title: "Bad", Probability: 150})
	assert.Error(t, err)

	_, deals, err := h.ListDeals(ctx, nil, ListDealsInput{})
	require.NoError(t, err)
	assert.Len(t, deals.Deals, 2)
	assert.Equal(t, 1500.0, deals.Total)

	_, deals, err = h.ListDeals(ctx, nil, ListDealsInput{Stage: "Negotiation"})
	require.NoError(t, err)
	assert.Len(t, deals.Deals, 1)

	_, e, err := h.AddEngagement(ctx, nil, AddEngagementInput{ClientName: "Acme", Resources: []string{"Alice", "", "Bob"}})
	require.NoError(t, err)
	assert.Len(t, e.Resources, 2)

	_, list, err := h.ListEngagements(ctx, nil, ListEngagementsInput{ClientName: "ACME"})
	require.NoError(t, err)
	require.Len(t, list.Engagements, 1)
	assert.Len(t, list.Engagements[0].Resources, 2)
}

func TestReadResource(t *testing.T) {
	ctrl := setupController(t)
	deals := NewDealHandlers(ctrl)
	h := NewResourceHandlers(ctrl)
	ctx := context.Background()

	for _, v := range []float64{100, 250} {
		_, _, err := deals.CreateDeal(ctx, nil, CreateDealInput{Title: "D", Value: v})
		require.NoError(t, err)
	}

	result, err := h.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "crm://pipeline"}})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)

	var pipeline map[string]stageTotal
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &pipeline))
	assert.Equal(t, stageTotal{Count: 2, Value: 350}, pipeline["Lead"])

	_, err = h.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "crm://nope"}})
	assert.Error(t, err)

	_, err = h.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "http://contacts"}})
	assert.Error(t, err)
}
