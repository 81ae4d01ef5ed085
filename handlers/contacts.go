// ABOUTME: Contact MCP tool handlers
// ABOUTME: Implements add_contact, find_contacts, update_contact, delete_contact and add_activity
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ContactHandlers struct {
	ctrl *crm.Controller
}

func NewContactHandlers(ctrl *crm.Controller) *ContactHandlers {
	return &ContactHandlers{ctrl: ctrl}
}

type AddContactInput struct {
	Name     string `json:"name" jsonschema:"Contact name (required)"`
	Email    string `json:"email,omitempty" jsonschema:"Contact email address"`
	Phone    string `json:"phone,omitempty" jsonschema:"Contact phone number"`
	Company  string `json:"company,omitempty" jsonschema:"Company name; contacts sharing a name form a company"`
	JobTitle string `json:"job_title,omitempty" jsonschema:"Job title"`
	Notes    string `json:"notes,omitempty" jsonschema:"Additional notes about the contact"`
}

func (h *ContactHandlers) AddContact(ctx context.Context, _ *mcp.CallToolRequest, input AddContactInput) (*mcp.CallToolResult, models.Contact, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, models.Contact{}, fmt.Errorf("name is required")
	}

	contact, _, err := h.ctrl.AddContact(ctx, models.Contact{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Company:  input.Company,
		JobTitle: input.JobTitle,
		Notes:    input.Notes,
	})
	if err != nil {
		return nil, models.Contact{}, fmt.Errorf("failed to create contact: %w", err)
	}
	return nil, contact, nil
}

type FindContactsInput struct {
	Query   string `json:"query,omitempty" jsonschema:"Search query (searches name and email)"`
	Company string `json:"company,omitempty" jsonschema:"Filter by company name"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type FindContactsOutput struct {
	Contacts []models.Contact `json:"contacts"`
}

func (h *ContactHandlers) FindContacts(_ context.Context, _ *mcp.CallToolRequest, input FindContactsInput) (*mcp.CallToolResult, FindContactsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	q := strings.ToLower(strings.TrimSpace(input.Query))
	key := crm.NormalizeName(input.Company)

	result := []models.Contact{}
	for _, c := range h.ctrl.Snapshot().Contacts {
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(strings.ToLower(c.Email), q) {
			continue
		}
		if key != "" && crm.NormalizeName(c.Company) != key {
			continue
		}
		result = append(result, c)
		if len(result) >= limit {
			break
		}
	}
	return nil, FindContactsOutput{Contacts: result}, nil
}

type UpdateContactInput struct {
	ID        int64  `json:"id" jsonschema:"Contact ID (required)"`
	Name      string `json:"name,omitempty" jsonschema:"Updated contact name"`
	Email     string `json:"email,omitempty" jsonschema:"Updated email address"`
	Phone     string `json:"phone,omitempty" jsonschema:"Updated phone number"`
	Company   string `json:"company,omitempty" jsonschema:"Updated company name"`
	Status    string `json:"status,omitempty" jsonschema:"Updated status"`
	Lifecycle string `json:"lifecycle,omitempty" jsonschema:"Updated lifecycle stage"`
	Notes     string `json:"notes,omitempty" jsonschema:"Updated notes"`
}

func (h *ContactHandlers) contact(id int64) (models.Contact, error) {
	for _, c := range h.ctrl.Snapshot().Contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Contact{}, fmt.Errorf("contact not found")
}

func (h *ContactHandlers) UpdateContact(ctx context.Context, _ *mcp.CallToolRequest, input UpdateContactInput) (*mcp.CallToolResult, models.Contact, error) {
	if input.ID == 0 {
		return nil, models.Contact{}, fmt.Errorf("id is required")
	}
	contact, err := h.contact(input.ID)
	if err != nil {
		return nil, models.Contact{}, err
	}

	// Empty inputs leave the field alone
	if input.Name != "" {
		contact.Name = input.Name
	}
	if input.Email != "" {
		contact.Email = input.Email
	}
	if input.Phone != "" {
		contact.Phone = input.Phone
	}
	if input.Company != "" {
		contact.Company = input.Company
	}
	if input.Status != "" {
		contact.Status = input.Status
	}
	if input.Lifecycle != "" {
		contact.Lifecycle = input.Lifecycle
	}
	if input.Notes != "" {
		contact.Notes = input.Notes
	}

	updated, _, err := h.ctrl.UpdateContact(ctx, contact)
	if err != nil {
		return nil, models.Contact{}, fmt.Errorf("failed to update contact: %w", err)
	}
	return nil, updated, nil
}

type DeleteInput struct {
	ID int64 `json:"id" jsonschema:"Record ID (required)"`
}

type DeleteOutput struct {
	Deleted int64 `json:"deleted"`
}

func (h *ContactHandlers) DeleteContact(ctx context.Context, _ *mcp.CallToolRequest, input DeleteInput) (*mcp.CallToolResult, DeleteOutput, error) {
	if _, err := h.ctrl.DeleteContact(ctx, input.ID); err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil, DeleteOutput{Deleted: input.ID}, nil
}

type AddActivityInput struct {
	ContactID int64  `json:"contact_id" jsonschema:"Contact ID (required)"`
	Type      string `json:"type,omitempty" jsonschema:"Activity type: note, call, email, meeting or task (default note)"`
	Content   string `json:"content" jsonschema:"What happened (required)"`
	Date      string `json:"date,omitempty" jsonschema:"Date of the activity (YYYY-MM-DD)"`
}

func (h *ContactHandlers) AddActivity(ctx context.Context, _ *mcp.CallToolRequest, input AddActivityInput) (*mcp.CallToolResult, models.Activity, error) {
	if input.Content == "" {
		return nil, models.Activity{}, fmt.Errorf("content is required")
	}
	if _, err := h.contact(input.ContactID); err != nil {
		return nil, models.Activity{}, err
	}
	kind := input.Type
	if kind == "" {
		kind = "note"
	}

	activity, _, err := h.ctrl.AddActivity(ctx, models.Activity{
		Type:      kind,
		Content:   input.Content,
		Date:      input.Date,
		ContactID: models.IDPtr(input.ContactID),
	})
	if err != nil {
		return nil, models.Activity{}, fmt.Errorf("failed to log activity: %w", err)
	}
	return nil, activity, nil
}
