// ABOUTME: Company MCP tool handlers
// ABOUTME: Lists stored and virtual companies, promotes them and propagates owners and resources
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type CompanyHandlers struct {
	ctrl *crm.Controller
}

func NewCompanyHandlers(ctrl *crm.Controller) *CompanyHandlers {
	return &CompanyHandlers{ctrl: ctrl}
}

type ListCompaniesInput struct {
	VirtualOnly bool `json:"virtual_only,omitempty" jsonschema:"Only return companies that exist purely through contacts"`
}

type CompanyOutput struct {
	Company  models.Company `json:"company"`
	Virtual  bool           `json:"virtual"`
	Contacts int            `json:"contact_count"`
}

type ListCompaniesOutput struct {
	Companies []CompanyOutput `json:"companies"`
}

func (h *CompanyHandlers) ListCompanies(_ context.Context, _ *mcp.CallToolRequest, input ListCompaniesInput) (*mcp.CallToolResult, ListCompaniesOutput, error) {
	result := []CompanyOutput{}
	for _, v := range h.ctrl.Companies() {
		if input.VirtualOnly && !v.Virtual {
			continue
		}
		result = append(result, CompanyOutput{Company: v.Company, Virtual: v.Virtual, Contacts: len(v.Contacts)})
	}
	return nil, ListCompaniesOutput{Companies: result}, nil
}

type PromoteCompanyInput struct {
	ID       int64  `json:"id" jsonschema:"Virtual company ID (negative, from list_companies)"`
	Website  string `json:"website,omitempty" jsonschema:"Company website"`
	Industry string `json:"industry,omitempty" jsonschema:"Industry"`
	Size     string `json:"size,omitempty" jsonschema:"Company size"`
}

func (h *CompanyHandlers) PromoteCompany(ctx context.Context, _ *mcp.CallToolRequest, input PromoteCompanyInput) (*mcp.CallToolResult, models.Company, error) {
	company, _, err := h.ctrl.PromoteCompany(ctx, input.ID, crm.CompanyProfile{
		Website:  input.Website,
		Industry: input.Industry,
		Size:     input.Size,
	})
	if err != nil {
		return nil, models.Company{}, fmt.Errorf("failed to promote company: %w", err)
	}
	return nil, company, nil
}

type AssignOwnerInput struct {
	CompanyID int64 `json:"company_id" jsonschema:"Company ID, stored or virtual"`
	OwnerID   int64 `json:"owner_id" jsonschema:"User ID of the new owner"`
}

type AssignOutput struct {
	Company  string `json:"company"`
	Contacts int    `json:"contacts"`
}

func (h *CompanyHandlers) AssignOwner(ctx context.Context, _ *mcp.CallToolRequest, input AssignOwnerInput) (*mcp.CallToolResult, AssignOutput, error) {
	ds, err := h.ctrl.AssignCompanyOwner(ctx, input.CompanyID, input.OwnerID)
	if err != nil {
		return nil, AssignOutput{}, fmt.Errorf("failed to assign owner: %w", err)
	}
	return nil, summarize(ds, input.CompanyID), nil
}

type AssignResourceInput struct {
	CompanyID int64  `json:"company_id" jsonschema:"Company ID, stored or virtual"`
	Resource  string `json:"resource" jsonschema:"Resource name to assign"`
}

func (h *CompanyHandlers) AssignResource(ctx context.Context, _ *mcp.CallToolRequest, input AssignResourceInput) (*mcp.CallToolResult, AssignOutput, error) {
	if input.Resource == "" {
		return nil, AssignOutput{}, fmt.Errorf("resource is required")
	}
	ds, err := h.ctrl.AssignCompanyResource(ctx, input.CompanyID, input.Resource)
	if err != nil {
		return nil, AssignOutput{}, fmt.Errorf("failed to assign resource: %w", err)
	}
	return nil, summarize(ds, input.CompanyID), nil
}

// summarize reports the company name and how many contacts now carry it.
// A virtual id is promoted during assignment, so the lookup falls back to the
// name recorded for that id before the call.
func summarize(ds *models.Dataset, id int64) AssignOutput {
	views := crm.CompanyDirectory(ds.Contacts, ds.Companies)
	if v, ok := crm.FindCompany(views, id); ok {
		return AssignOutput{Company: v.Name, Contacts: len(v.Contacts)}
	}
	for _, v := range views {
		if crm.VirtualCompanyID(v.Name) == id {
			return AssignOutput{Company: v.Name, Contacts: len(v.Contacts)}
		}
	}
	return AssignOutput{}
}
