// ABOUTME: Conversion between entity structs and generic table rows
// ABOUTME: Rows use the same keys as the JSON tags, which equal the column names
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToRow converts an entity into a column-keyed map, dropping the omitted keys.
// Numbers come back as json.Number; the store coerces them per column type.
func ToRow(v interface{}, omit ...string) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	row := make(map[string]interface{})
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to decode %T row: %w", v, err)
	}

	for _, key := range omit {
		delete(row, key)
	}
	return row, nil
}

// FromRow fills v from a column-keyed map.
func FromRow(row map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode row into %T: %w", v, err)
	}
	return nil
}

// FromRows decodes a slice of rows into a slice of T.
func FromRows[T any](rows []map[string]interface{}) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := FromRow(row, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}

	out := &Dataset{
		Users:          append([]User(nil), d.Users...),
		Companies:      append([]Company(nil), d.Companies...),
		DashboardNotes: append([]DashboardNote(nil), d.DashboardNotes...),
		DashboardTasks: append([]DashboardTask(nil), d.DashboardTasks...),
		Config: Config{
			ID:        d.Config.ID,
			Services:  append([]string(nil), d.Config.Services...),
			Timezones: append([]string(nil), d.Config.Timezones...),
			Vendors:   append([]string(nil), d.Config.Vendors...),
		},
	}

	if d.LastSaved != nil {
		t := *d.LastSaved
		out.LastSaved = &t
	}

	out.Contacts = make([]Contact, len(d.Contacts))
	for i, c := range d.Contacts {
		c.PropertyOrder = append([]string(nil), c.PropertyOrder...)
		out.Contacts[i] = c
	}

	out.Engagements = make([]Engagement, len(d.Engagements))
	for i, e := range d.Engagements {
		e.Resources = append([]Resource(nil), e.Resources...)
		out.Engagements[i] = e
	}

	out.Deals = make([]Deal, len(d.Deals))
	for i, deal := range d.Deals {
		deal.ContactID = cloneID(deal.ContactID)
		out.Deals[i] = deal
	}

	out.Activities = make([]Activity, len(d.Activities))
	for i, a := range d.Activities {
		a.Comments = append([]Comment(nil), a.Comments...)
		a.ContactID = cloneID(a.ContactID)
		a.EngagementID = cloneID(a.EngagementID)
		a.CompanyID = cloneID(a.CompanyID)
		out.Activities[i] = a
	}

	return out
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// IDPtr returns a pointer to id, convenient for optional foreign keys.
func IDPtr(id int64) *int64 {
	return &id
}
