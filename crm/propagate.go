// ABOUTME: Company promotion and propagation of company fields to contacts and engagements
// ABOUTME: Matching is by normalised company name, the same key the directory uses
package crm

import (
	"context"
	"fmt"

	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
)

func (c *Controller) findCompany(id int64) (CompanyView, error) {
	view, ok := FindCompany(c.Companies(), id)
	if !ok {
		return CompanyView{}, fmt.Errorf("company %d: %w", id, store.ErrNotFound)
	}
	return view, nil
}

// PromoteCompany stores a virtual company under its exact name. Contacts are
// not modified; they now match the stored company.
func (c *Controller) PromoteCompany(ctx context.Context, virtualID int64, profile CompanyProfile) (models.Company, *models.Dataset, error) {
	if virtualID >= 0 {
		return models.Company{}, nil, fmt.Errorf("company %d is not virtual", virtualID)
	}
	view, err := c.findCompany(virtualID)
	if err != nil {
		return models.Company{}, nil, err
	}

	company := models.Company{Name: view.Name, OwnerID: view.OwnerID}
	profile.apply(&company)
	return c.AddCompany(ctx, company)
}

// SaveCompanyProfile promotes virtual companies and updates stored ones.
func (c *Controller) SaveCompanyProfile(ctx context.Context, id int64, profile CompanyProfile) (models.Company, *models.Dataset, error) {
	if id < 0 {
		return c.PromoteCompany(ctx, id, profile)
	}
	view, err := c.findCompany(id)
	if err != nil {
		return models.Company{}, nil, err
	}
	company := view.Company
	profile.apply(&company)
	return c.UpdateCompany(ctx, company)
}

// companyRow makes sure the company is stored, promoting a virtual one, and
// lets edit change it before writing.
func (c *Controller) companyRow(ctx context.Context, id int64, edit func(*CompanyProfile)) (models.Company, error) {
	view, err := c.findCompany(id)
	if err != nil {
		return models.Company{}, err
	}
	profile := CompanyProfile{
		Size:             view.Size,
		Website:          view.Website,
		Industry:         view.Industry,
		OwnerID:          view.OwnerID,
		AssignedResource: view.AssignedResource,
	}
	edit(&profile)

	company, _, err := c.SaveCompanyProfile(ctx, id, profile)
	return company, err
}

// AssignCompanyOwner sets the owner on the company, every contact whose
// company matches, and every engagement for that client.
func (c *Controller) AssignCompanyOwner(ctx context.Context, companyID, ownerID int64) (*models.Dataset, error) {
	company, err := c.companyRow(ctx, companyID, func(p *CompanyProfile) { p.OwnerID = ownerID })
	if err != nil {
		return nil, err
	}
	key := NormalizeName(company.Name)
	ds := c.Snapshot()

	for _, contact := range ds.Contacts {
		if NormalizeName(contact.Company) != key || contact.OwnerID == ownerID {
			continue
		}
		contact.OwnerID = ownerID
		if _, _, err := c.UpdateContact(ctx, contact); err != nil {
			return nil, err
		}
	}
	for _, e := range ds.Engagements {
		if NormalizeName(e.ClientName) != key || e.OwnerID == ownerID {
			continue
		}
		e.OwnerID = ownerID
		if _, _, err := c.UpdateEngagement(ctx, e); err != nil {
			return nil, err
		}
	}
	return c.Snapshot(), nil
}

// AssignCompanyResource sets the assigned resource on the company and its
// contacts, and adds the resource to each matching engagement that lacks it.
func (c *Controller) AssignCompanyResource(ctx context.Context, companyID int64, resource string) (*models.Dataset, error) {
	company, err := c.companyRow(ctx, companyID, func(p *CompanyProfile) { p.AssignedResource = resource })
	if err != nil {
		return nil, err
	}
	key := NormalizeName(company.Name)
	ds := c.Snapshot()

	for _, contact := range ds.Contacts {
		if NormalizeName(contact.Company) != key || contact.AssignedResource == resource {
			continue
		}
		contact.AssignedResource = resource
		if _, _, err := c.UpdateContact(ctx, contact); err != nil {
			return nil, err
		}
	}

	if NormalizeName(resource) == "" {
		return c.Snapshot(), nil
	}
	for _, e := range ds.Engagements {
		if NormalizeName(e.ClientName) != key || hasResource(e, resource) {
			continue
		}
		e.Resources = append(e.Resources, models.Resource{Name: resource, Type: models.ResourceTypeResource})
		if _, _, err := c.UpdateEngagement(ctx, e); err != nil {
			return nil, err
		}
	}
	return c.Snapshot(), nil
}

func hasResource(e models.Engagement, name string) bool {
	for _, r := range e.Resources {
		if NormalizeName(r.Name) == NormalizeName(name) {
			return true
		}
	}
	return false
}
