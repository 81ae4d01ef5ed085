// ABOUTME: Typed entity operations over any Store
// ABOUTME: Stamps timestamps, replaces engagement resources wholesale, maps zero changes to ErrNotFound
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
)

// CRM is the View-facing surface. It holds no entity state of its own.
type CRM struct {
	store Store
	now   func() time.Time
}

func NewCRM(s Store) *CRM {
	return &CRM{store: s, now: time.Now}
}

// Store returns the backend this CRM writes through.
func (c *CRM) Store() Store {
	return c.store
}

func (c *CRM) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

func (c *CRM) insert(ctx context.Context, table db.Table, v interface{}, omit ...string) (int64, error) {
	row, err := models.ToRow(v, append([]string{"id"}, omit...)...)
	if err != nil {
		return 0, err
	}
	id, err := c.store.Insert(ctx, table, row)
	if err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", table, err)
	}
	return id, nil
}

func (c *CRM) update(ctx context.Context, table db.Table, id int64, v interface{}, omit ...string) error {
	row, err := models.ToRow(v, append([]string{"id"}, omit...)...)
	if err != nil {
		return err
	}
	changed, err := c.store.Update(ctx, table, id, row)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", table, id, err)
	}
	if changed == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

func (c *CRM) remove(ctx context.Context, table db.Table, id int64) error {
	changed, err := c.store.Delete(ctx, table, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", table, id, err)
	}
	if changed == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

// AddContact inserts a contact, filling documented defaults for empty fields.
func (c *CRM) AddContact(ctx context.Context, contact models.Contact) (models.Contact, error) {
	contact.ApplyDefaults(models.DefaultOwnerID)
	contact.CreatedAt = c.timestamp()
	contact.UpdatedAt = contact.CreatedAt

	id, err := c.insert(ctx, db.Contacts, contact)
	if err != nil {
		return models.Contact{}, err
	}
	contact.ID = id
	return contact, nil
}

// UpdateContact replaces every field of the contact except created_at.
func (c *CRM) UpdateContact(ctx context.Context, contact models.Contact) (models.Contact, error) {
	contact.UpdatedAt = c.timestamp()
	if err := c.update(ctx, db.Contacts, contact.ID, contact, "created_at"); err != nil {
		return models.Contact{}, err
	}
	return contact, nil
}

func (c *CRM) DeleteContact(ctx context.Context, id int64) error {
	return c.remove(ctx, db.Contacts, id)
}

func (c *CRM) AddCompany(ctx context.Context, company models.Company) (models.Company, error) {
	if company.OwnerID == 0 {
		company.OwnerID = models.DefaultOwnerID
	}
	company.CreatedAt = c.timestamp()
	company.UpdatedAt = company.CreatedAt

	id, err := c.insert(ctx, db.Companies, company)
	if err != nil {
		return models.Company{}, err
	}
	company.ID = id
	return company, nil
}

func (c *CRM) UpdateCompany(ctx context.Context, company models.Company) (models.Company, error) {
	company.UpdatedAt = c.timestamp()
	if err := c.update(ctx, db.Companies, company.ID, company, "created_at"); err != nil {
		return models.Company{}, err
	}
	return company, nil
}

// DeleteCompany removes only the company row; contacts keep their company string.
func (c *CRM) DeleteCompany(ctx context.Context, id int64) error {
	return c.remove(ctx, db.Companies, id)
}

// AddEngagement inserts the engagement and then each of its resources.
func (c *CRM) AddEngagement(ctx context.Context, e models.Engagement) (models.Engagement, error) {
	if e.Status == "" {
		e.Status = models.EngagementActive
	}
	if e.OwnerID == 0 {
		e.OwnerID = models.DefaultOwnerID
	}
	e.CreatedAt = c.timestamp()
	e.UpdatedAt = e.CreatedAt

	id, err := c.insert(ctx, db.Engagements, e, "resources")
	if err != nil {
		return models.Engagement{}, err
	}
	e.ID = id

	resources, err := c.insertResources(ctx, id, e.Resources)
	if err != nil {
		return models.Engagement{}, err
	}
	e.Resources = resources
	return e, nil
}

// UpdateEngagement writes the engagement and replaces its resource list:
// every existing resource is deleted and the new list inserted.
func (c *CRM) UpdateEngagement(ctx context.Context, e models.Engagement) (models.Engagement, error) {
	e.UpdatedAt = c.timestamp()
	if err := c.update(ctx, db.Engagements, e.ID, e, "resources", "created_at"); err != nil {
		return models.Engagement{}, err
	}

	rows, err := c.store.GetAll(ctx, db.Resources)
	if err != nil {
		return models.Engagement{}, fmt.Errorf("failed to load resources: %w", err)
	}
	for _, row := range rows {
		if engagementID, _ := row["engagement_id"].(int64); engagementID != e.ID {
			continue
		}
		id, _ := row["id"].(int64)
		if _, err := c.store.Delete(ctx, db.Resources, id); err != nil {
			return models.Engagement{}, fmt.Errorf("failed to delete resource %d: %w", id, err)
		}
	}

	resources, err := c.insertResources(ctx, e.ID, e.Resources)
	if err != nil {
		return models.Engagement{}, err
	}
	e.Resources = resources
	return e, nil
}

func (c *CRM) insertResources(ctx context.Context, engagementID int64, resources []models.Resource) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(resources))
	for _, r := range resources {
		r.EngagementID = engagementID
		if r.Type == "" {
			r.Type = models.ResourceTypeResource
		}
		id, err := c.insert(ctx, db.Resources, r)
		if err != nil {
			return nil, err
		}
		r.ID = id
		out = append(out, r)
	}
	return out, nil
}

// DeleteEngagement removes the engagement; its resources and activities cascade.
func (c *CRM) DeleteEngagement(ctx context.Context, id int64) error {
	return c.remove(ctx, db.Engagements, id)
}

func (c *CRM) AddDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	if deal.Stage == "" {
		deal.Stage = models.StageLead
	}
	if deal.OwnerID == 0 {
		deal.OwnerID = models.DefaultOwnerID
	}
	deal.CreatedAt = c.timestamp()
	deal.UpdatedAt = deal.CreatedAt

	id, err := c.insert(ctx, db.Deals, deal)
	if err != nil {
		return models.Deal{}, err
	}
	deal.ID = id
	return deal, nil
}

func (c *CRM) UpdateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	deal.UpdatedAt = c.timestamp()
	if err := c.update(ctx, db.Deals, deal.ID, deal, "created_at"); err != nil {
		return models.Deal{}, err
	}
	return deal, nil
}

func (c *CRM) DeleteDeal(ctx context.Context, id int64) error {
	return c.remove(ctx, db.Deals, id)
}

func (c *CRM) AddActivity(ctx context.Context, a models.Activity) (models.Activity, error) {
	if a.Type == "" {
		a.Type = models.ActivityNote
	}
	if a.Comments == nil {
		a.Comments = []models.Comment{}
	}
	a.CreatedAt = c.timestamp()
	if a.Date == "" {
		a.Date = a.CreatedAt
	}

	id, err := c.insert(ctx, db.Activities, a)
	if err != nil {
		return models.Activity{}, err
	}
	a.ID = id
	return a, nil
}

func (c *CRM) UpdateActivity(ctx context.Context, a models.Activity) (models.Activity, error) {
	if err := c.update(ctx, db.Activities, a.ID, a, "created_at"); err != nil {
		return models.Activity{}, err
	}
	return a, nil
}

func (c *CRM) DeleteActivity(ctx context.Context, id int64) error {
	return c.remove(ctx, db.Activities, id)
}

func (c *CRM) AddDashboardNote(ctx context.Context, n models.DashboardNote) (models.DashboardNote, error) {
	n.CreatedAt = c.timestamp()
	id, err := c.insert(ctx, db.DashboardNotes, n)
	if err != nil {
		return models.DashboardNote{}, err
	}
	n.ID = id
	return n, nil
}

func (c *CRM) DeleteDashboardNote(ctx context.Context, id int64) error {
	return c.remove(ctx, db.DashboardNotes, id)
}

func (c *CRM) AddDashboardTask(ctx context.Context, task models.DashboardTask) (models.DashboardTask, error) {
	task.CreatedAt = c.timestamp()
	id, err := c.insert(ctx, db.DashboardTasks, task)
	if err != nil {
		return models.DashboardTask{}, err
	}
	task.ID = id
	return task, nil
}

func (c *CRM) UpdateDashboardTask(ctx context.Context, task models.DashboardTask) (models.DashboardTask, error) {
	if err := c.update(ctx, db.DashboardTasks, task.ID, task, "created_at"); err != nil {
		return models.DashboardTask{}, err
	}
	return task, nil
}

func (c *CRM) DeleteDashboardTask(ctx context.Context, id int64) error {
	return c.remove(ctx, db.DashboardTasks, id)
}

// GetConfig returns the stored settings, or the defaults when none are stored.
func (c *CRM) GetConfig(ctx context.Context) (models.Config, error) {
	rows, err := c.store.GetAll(ctx, db.Settings)
	if err != nil {
		return models.Config{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return configFromRows(rows)
}

func configFromRows(rows []db.Row) (models.Config, error) {
	cfg := models.DefaultConfig()
	if len(rows) == 0 {
		return cfg, nil
	}

	var stored models.Config
	if err := models.FromRow(rows[0], &stored); err != nil {
		return models.Config{}, err
	}
	cfg.ID = stored.ID
	if stored.Services != nil {
		cfg.Services = stored.Services
	}
	if stored.Timezones != nil {
		cfg.Timezones = stored.Timezones
	}
	if stored.Vendors != nil {
		cfg.Vendors = stored.Vendors
	}
	return cfg, nil
}

// SaveConfig updates the settings row, inserting it on first save.
func (c *CRM) SaveConfig(ctx context.Context, cfg models.Config) (models.Config, error) {
	rows, err := c.store.GetAll(ctx, db.Settings)
	if err != nil {
		return models.Config{}, fmt.Errorf("failed to load settings: %w", err)
	}

	if len(rows) == 0 {
		row, err := models.ToRow(cfg)
		if err != nil {
			return models.Config{}, err
		}
		if cfg.ID == 0 {
			delete(row, "id")
		}
		id, err := c.store.Insert(ctx, db.Settings, row)
		if err != nil {
			return models.Config{}, fmt.Errorf("failed to save settings: %w", err)
		}
		cfg.ID = id
		return cfg, nil
	}

	id, _ := rows[0]["id"].(int64)
	cfg.ID = id
	if err := c.update(ctx, db.Settings, id, cfg); err != nil {
		return models.Config{}, err
	}
	return cfg, nil
}

// ListUsers returns every user without password hashes.
func (c *CRM) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := c.store.GetAll(ctx, db.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return models.FromRows[models.User](db.StripSecrets(db.Users, rows))
}

// AddUser hashes the password and inserts the account.
func (c *CRM) AddUser(ctx context.Context, u db.NewUser) (models.User, error) {
	row, err := db.UserRow(u)
	if err != nil {
		return models.User{}, err
	}
	id, err := c.store.Insert(ctx, db.Users, row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to add user: %w", err)
	}

	var user models.User
	if err := models.FromRow(db.StripSecrets(db.Users, []db.Row{row})[0], &user); err != nil {
		return models.User{}, err
	}
	user.ID = id
	return user, nil
}

// DeleteUser removes a user other than the acting one.
func (c *CRM) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrDeleteSelf
	}
	return c.remove(ctx, db.Users, id)
}
