// ABOUTME: Demo dataset returned on first run when no blob is stored
// ABOUTME: Two contacts, one deal, two engagements with nested resources, and an admin account
package local

import (
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
)

// Seed admin credentials. The password should be changed after first login.
const (
	SeedAdminEmail    = "admin@crmdesk.local"
	SeedAdminPassword = "admin"
)

// seedDocument returns the demo dataset in stored-blob shape.
func seedDocument() (map[string]interface{}, error) {
	admin, err := db.UserRow(db.NewUser{
		Name:     "Administrator",
		Email:    SeedAdminEmail,
		Password: SeedAdminPassword,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}
	admin["id"] = int64(1)

	contacts := []models.Contact{
		{
			ID:        2,
			Name:      "Priya Raman",
			Email:     "priya@northwind.example",
			Phone:     "+1 555 0100",
			Company:   "Northwind Traders",
			JobTitle:  "Head of Talent",
			Status:    "Contacted",
			Lifecycle: "Prospect",
			FollowUp:  "2025-01-15",
			Timezone:  "America/New_York",
		},
		{
			ID:          3,
			Name:        "Marcus Lee",
			Email:       "marcus@contoso.example",
			Company:     "Contoso",
			JobTitle:    "VP Engineering",
			CompanySize: "201-500",
			Timezone:    "America/Los_Angeles",
		},
	}

	deal := models.Deal{
		ID:          4,
		Title:       "Contoso engineering hires",
		Company:     "Contoso",
		Value:       48000,
		Stage:       models.StageProposal,
		Probability: 40,
		CloseDate:   "2025-03-31",
		ContactID:   models.IDPtr(3),
	}

	engagements := []models.Engagement{
		{
			ID:          5,
			ClientName:  "Northwind Traders",
			ServiceType: "Recruitment",
			StartDate:   "2024-11-01",
			Status:      models.EngagementActive,
			Resources: []models.Resource{
				{ID: 7, Name: "Alex Kim", Role: "Lead Recruiter", Type: models.ResourceTypeResource},
				{ID: 8, Name: "Sam Ortiz", Role: "Sourcer", Type: models.ResourceTypeResource},
				{ID: 9, Name: "TalentBridge", Role: "Background checks", Type: models.ResourceTypeVendor},
			},
		},
		{
			ID:          6,
			ClientName:  "Contoso",
			ServiceType: "Contract Staffing",
			StartDate:   "2025-01-06",
			Status:      models.EngagementPlanned,
			Resources: []models.Resource{
				{ID: 10, Name: "Jordan Blake", Role: "Account Manager", Type: models.ResourceTypeResource},
				{ID: 11, Name: "Rina Patel", Role: "Recruiter", Type: models.ResourceTypeResource},
			},
		},
	}

	doc := map[string]interface{}{
		string(db.Users): []interface{}{map[string]interface{}(admin)},
	}
	if doc[string(db.Contacts)], err = toList(contacts); err != nil {
		return nil, err
	}
	if doc[string(db.Deals)], err = toList([]models.Deal{deal}); err != nil {
		return nil, err
	}
	// Engagements keep their resources nested; migration flattens them.
	if doc[string(db.Engagements)], err = toList(engagements); err != nil {
		return nil, err
	}
	return doc, nil
}

func toList[T any](items []T) ([]interface{}, error) {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		row, err := models.ToRow(item)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
