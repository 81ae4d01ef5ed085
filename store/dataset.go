// ABOUTME: Whole-dataset snapshots built from a Store
// ABOUTME: LoadDataset assembles every collection; Export writes it as JSON without password hashes
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
)

// LoadDataset reads every table and returns a freshly owned dataset.
// Engagements carry their resources; users carry no password hash.
func (c *CRM) LoadDataset(ctx context.Context) (*models.Dataset, error) {
	rows := make(map[db.Table][]db.Row, len(db.Schema))
	for _, table := range db.Tables() {
		r, err := c.store.GetAll(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", table, err)
		}
		rows[table] = r
	}

	var (
		ds  models.Dataset
		err error
	)
	if ds.Users, err = models.FromRows[models.User](db.StripSecrets(db.Users, rows[db.Users])); err != nil {
		return nil, err
	}
	if ds.Contacts, err = models.FromRows[models.Contact](rows[db.Contacts]); err != nil {
		return nil, err
	}
	if ds.Companies, err = models.FromRows[models.Company](rows[db.Companies]); err != nil {
		return nil, err
	}
	if ds.Engagements, err = models.FromRows[models.Engagement](rows[db.Engagements]); err != nil {
		return nil, err
	}
	if ds.Deals, err = models.FromRows[models.Deal](rows[db.Deals]); err != nil {
		return nil, err
	}
	if ds.Activities, err = models.FromRows[models.Activity](rows[db.Activities]); err != nil {
		return nil, err
	}
	if ds.DashboardNotes, err = models.FromRows[models.DashboardNote](rows[db.DashboardNotes]); err != nil {
		return nil, err
	}
	if ds.DashboardTasks, err = models.FromRows[models.DashboardTask](rows[db.DashboardTasks]); err != nil {
		return nil, err
	}
	if ds.Config, err = configFromRows(rows[db.Settings]); err != nil {
		return nil, err
	}

	resources, err := models.FromRows[models.Resource](rows[db.Resources])
	if err != nil {
		return nil, err
	}
	byEngagement := make(map[int64][]models.Resource)
	for _, r := range resources {
		byEngagement[r.EngagementID] = append(byEngagement[r.EngagementID], r)
	}
	for i := range ds.Engagements {
		ds.Engagements[i].Resources = byEngagement[ds.Engagements[i].ID]
	}

	return &ds, nil
}

// Export writes the dataset as indented JSON stamped with the export time.
func (c *CRM) Export(ctx context.Context, w io.Writer) error {
	ds, err := c.LoadDataset(ctx)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	ds.LastSaved = &now

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
