// ABOUTME: Controller owning the in-memory dataset shown to users
// ABOUTME: Mutations write through the Store, then update the owned copy and return a snapshot
package crm

import (
	"context"
	"fmt"
	"sync"

	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
)

// Controller is the single owner of the working dataset. Readers only ever
// receive deep copies.
type Controller struct {
	crm *store.CRM

	mu sync.RWMutex
	ds *models.Dataset
}

// NewController wraps crm. Call Refresh before reading.
func NewController(crm *store.CRM) *Controller {
	return &Controller{crm: crm, ds: &models.Dataset{}}
}

func (c *Controller) CRM() *store.CRM {
	return c.crm
}

// Refresh reloads the dataset from the Store.
func (c *Controller) Refresh(ctx context.Context) (*models.Dataset, error) {
	ds, err := c.crm.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.ds = ds
	c.mu.Unlock()
	return ds.Clone(), nil
}

func (c *Controller) Snapshot() *models.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ds.Clone()
}

// Companies returns the directory of stored and virtual companies.
func (c *Controller) Companies() []CompanyView {
	ds := c.Snapshot()
	return CompanyDirectory(ds.Contacts, ds.Companies)
}

// apply runs fn on the owned dataset and returns a copy of the result.
func (c *Controller) apply(fn func(ds *models.Dataset)) *models.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.ds)
	return c.ds.Clone()
}

func upsert[T any](items []T, item T, id func(T) int64) []T {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func removeWhere[T any](items []T, match func(T) bool) []T {
	out := items[:0]
	for _, it := range items {
		if !match(it) {
			out = append(out, it)
		}
	}
	return out
}

func contactID(v models.Contact) int64       { return v.ID }
func companyID(v models.Company) int64       { return v.ID }
func engagementID(v models.Engagement) int64 { return v.ID }
func dealID(v models.Deal) int64             { return v.ID }
func activityID(v models.Activity) int64     { return v.ID }
func noteID(v models.DashboardNote) int64    { return v.ID }
func taskID(v models.DashboardTask) int64    { return v.ID }

func refersTo(ref *int64, id int64) bool {
	return ref != nil && *ref == id
}

func (c *Controller) AddContact(ctx context.Context, v models.Contact) (models.Contact, *models.Dataset, error) {
	v, err := c.crm.AddContact(ctx, v)
	if err != nil {
		return models.Contact{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Contacts = upsert(ds.Contacts, v, contactID) }), nil
}

func (c *Controller) UpdateContact(ctx context.Context, v models.Contact) (models.Contact, *models.Dataset, error) {
	v, err := c.crm.UpdateContact(ctx, v)
	if err != nil {
		return models.Contact{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Contacts = upsert(ds.Contacts, v, contactID) }), nil
}

// DeleteContact also drops the contact's activities, matching the Store cascade.
func (c *Controller) DeleteContact(ctx context.Context, id int64) (*models.Dataset, error) {
	if err := c.crm.DeleteContact(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.Contacts = removeWhere(ds.Contacts, func(v models.Contact) bool { return v.ID == id })
		ds.Activities = removeWhere(ds.Activities, func(a models.Activity) bool { return refersTo(a.ContactID, id) })
	}), nil
}

func (c *Controller) AddCompany(ctx context.Context, v models.Company) (models.Company, *models.Dataset, error) {
	v, err := c.crm.AddCompany(ctx, v)
	if err != nil {
		return models.Company{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Companies = upsert(ds.Companies, v, companyID) }), nil
}

func (c *Controller) UpdateCompany(ctx context.Context, v models.Company) (models.Company, *models.Dataset, error) {
	v, err := c.crm.UpdateCompany(ctx, v)
	if err != nil {
		return models.Company{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Companies = upsert(ds.Companies, v, companyID) }), nil
}

// DeleteCompany removes a stored company. Its contacts keep their company
// name, so it reappears as a virtual company.
func (c *Controller) DeleteCompany(ctx context.Context, id int64) (*models.Dataset, error) {
	if id < 0 {
		return nil, fmt.Errorf("company %d is virtual: %w", id, store.ErrNotFound)
	}
	if err := c.crm.DeleteCompany(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.Companies = removeWhere(ds.Companies, func(v models.Company) bool { return v.ID == id })
	}), nil
}

func (c *Controller) AddEngagement(ctx context.Context, v models.Engagement) (models.Engagement, *models.Dataset, error) {
	v, err := c.crm.AddEngagement(ctx, v)
	if err != nil {
		return models.Engagement{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Engagements = upsert(ds.Engagements, v, engagementID) }), nil
}

func (c *Controller) UpdateEngagement(ctx context.Context, v models.Engagement) (models.Engagement, *models.Dataset, error) {
	v, err := c.crm.UpdateEngagement(ctx, v)
	if err != nil {
		return models.Engagement{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Engagements = upsert(ds.Engagements, v, engagementID) }), nil
}

func (c *Controller) DeleteEngagement(ctx context.Context, id int64) (*models.Dataset, error) {
	if err := c.crm.DeleteEngagement(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.Engagements = removeWhere(ds.Engagements, func(v models.Engagement) bool { return v.ID == id })
		ds.Activities = removeWhere(ds.Activities, func(a models.Activity) bool { return refersTo(a.EngagementID, id) })
	}), nil
}

func (c *Controller) AddDeal(ctx context.Context, v models.Deal) (models.Deal, *models.Dataset, error) {
	v, err := c.crm.AddDeal(ctx, v)
	if err != nil {
		return models.Deal{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Deals = upsert(ds.Deals, v, dealID) }), nil
}

func (c *Controller) UpdateDeal(ctx context.Context, v models.Deal) (models.Deal, *models.Dataset, error) {
	v, err := c.crm.UpdateDeal(ctx, v)
	if err != nil {
		return models.Deal{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Deals = upsert(ds.Deals, v, dealID) }), nil
}

func (c *Controller) DeleteDeal(ctx context.Context, id int64) (*models.Dataset, error) {
	if err := c.crm.DeleteDeal(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.Deals = removeWhere(ds.Deals, func(v models.Deal) bool { return v.ID == id })
	}), nil
}

func (c *Controller) AddActivity(ctx context.Context, v models.Activity) (models.Activity, *models.Dataset, error) {
	v, err := c.crm.AddActivity(ctx, v)
	if err != nil {
		return models.Activity{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Activities = upsert(ds.Activities, v, activityID) }), nil
}

func (c *Controller) UpdateActivity(ctx context.Context, v models.Activity) (models.Activity, *models.Dataset, error) {
	v, err := c.crm.UpdateActivity(ctx, v)
	if err != nil {
		return models.Activity{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.Activities = upsert(ds.Activities, v, activityID) }), nil
}

func (c *Controller) DeleteActivity(ctx context.Context, id int64) (*models.Dataset, error) {
	if err := c.crm.DeleteActivity(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.Activities = removeWhere(ds.Activities, func(v models.Activity) bool { return v.ID == id })
	}), nil
}

func (c *Controller) AddDashboardNote(ctx context.Context, v models.DashboardNote) (models.DashboardNote, *models.Dataset, error) {
	v, err := c.crm.AddDashboardNote(ctx, v)
	if err != nil {
		return models.DashboardNote{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.DashboardNotes = upsert(ds.DashboardNotes, v, noteID) }), nil
}

func (c *Controller) DeleteDashboardNote(ctx context.Context, id int64) (*models.Dataset, error) {
	if err := c.crm.DeleteDashboardNote(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.DashboardNotes = removeWhere(ds.DashboardNotes, func(v models.DashboardNote) bool { return v.ID == id })
	}), nil
}

func (c *Controller) AddDashboardTask(ctx context.Context, v models.DashboardTask) (models.DashboardTask, *models.Dataset, error) {
	v, err := c.crm.AddDashboardTask(ctx, v)
	if err != nil {
		return models.DashboardTask{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.DashboardTasks = upsert(ds.DashboardTasks, v, taskID) }), nil
}

func (c *Controller) UpdateDashboardTask(ctx context.Context, v models.DashboardTask) (models.DashboardTask, *models.Dataset, error) {
	v, err := c.crm.UpdateDashboardTask(ctx, v)
	if err != nil {
		return models.DashboardTask{}, nil, err
	}
	return v, c.apply(func(ds *models.Dataset) { ds.DashboardTasks = upsert(ds.DashboardTasks, v, taskID) }), nil
}

func (c *Controller) DeleteDashboardTask(ctx context.Context, id int64) (*models.Dataset, error) {
	if err := c.crm.DeleteDashboardTask(ctx, id); err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) {
		ds.DashboardTasks = removeWhere(ds.DashboardTasks, func(v models.DashboardTask) bool { return v.ID == id })
	}), nil
}

func (c *Controller) SaveConfig(ctx context.Context, cfg models.Config) (*models.Dataset, error) {
	cfg, err := c.crm.SaveConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c.apply(func(ds *models.Dataset) { ds.Config = cfg }), nil
}
