// ABOUTME: Deal and engagement MCP tool handlers
// ABOUTME: Implements create_deal, list_deals, add_engagement and list_engagements
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type DealHandlers struct {
	ctrl *crm.Controller
}

func NewDealHandlers(ctrl *crm.Controller) *DealHandlers {
	return &DealHandlers{ctrl: ctrl}
}

type CreateDealInput struct {
	Title       string  `json:"title" jsonschema:"Deal title (required)"`
	Company     string  `json:"company,omitempty" jsonschema:"Company name"`
	Value       float64 `json:"value,omitempty" jsonschema:"Deal value"`
	Stage       string  `json:"stage,omitempty" jsonschema:"Pipeline stage (default Lead)"`
	Probability int64   `json:"probability,omitempty" jsonschema:"Win probability, 0-100"`
	CloseDate   string  `json:"close_date,omitempty" jsonschema:"Expected close date (YYYY-MM-DD)"`
	ContactID   int64   `json:"contact_id,omitempty" jsonschema:"Primary contact ID"`
}

func (h *DealHandlers) CreateDeal(ctx context.Context, _ *mcp.CallToolRequest, input CreateDealInput) (*mcp.CallToolResult, models.Deal, error) {
	if input.Title == "" {
		return nil, models.Deal{}, fmt.Errorf("title is required")
	}
	if input.Probability < 0 || input.Probability > 100 {
		return nil, models.Deal{}, fmt.Errorf("probability must be between 0 and 100")
	}

	deal := models.Deal{
		Title:       input.Title,
		Company:     input.Company,
		Value:       input.Value,
		Stage:       input.Stage,
		Probability: input.Probability,
		CloseDate:   input.CloseDate,
	}
	if input.ContactID > 0 {
		deal.ContactID = models.IDPtr(input.ContactID)
	}

	created, _, err := h.ctrl.AddDeal(ctx, deal)
	if err != nil {
		return nil, models.Deal{}, fmt.Errorf("failed to create deal: %w", err)
	}
	return nil, created, nil
}

type ListDealsInput struct {
	Stage string `json:"stage,omitempty" jsonschema:"Filter by stage"`
}

type ListDealsOutput struct {
	Deals []models.Deal `json:"deals"`
	Total float64       `json:"total_value"`
}

func (h *DealHandlers) ListDeals(_ context.Context, _ *mcp.CallToolRequest, input ListDealsInput) (*mcp.CallToolResult, ListDealsOutput, error) {
	output := ListDealsOutput{Deals: []models.Deal{}}
	for _, d := range h.ctrl.Snapshot().Deals {
		if input.Stage != "" && d.Stage != input.Stage {
			continue
		}
		output.Deals = append(output.Deals, d)
		output.Total += d.Value
	}
	return nil, output, nil
}

type AddEngagementInput struct {
	ClientName  string   `json:"client_name" jsonschema:"Client name (required)"`
	ServiceType string   `json:"service_type,omitempty" jsonschema:"Service type"`
	StartDate   string   `json:"start_date,omitempty" jsonschema:"Start date (YYYY-MM-DD)"`
	EndDate     string   `json:"end_date,omitempty" jsonschema:"End date (YYYY-MM-DD)"`
	Resources   []string `json:"resources,omitempty" jsonschema:"Names of people staffed on the engagement"`
}

func (h *DealHandlers) AddEngagement(ctx context.Context, _ *mcp.CallToolRequest, input AddEngagementInput) (*mcp.CallToolResult, models.Engagement, error) {
	if input.ClientName == "" {
		return nil, models.Engagement{}, fmt.Errorf("client_name is required")
	}

	e := models.Engagement{
		ClientName:  input.ClientName,
		ServiceType: input.ServiceType,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}
	for _, name := range input.Resources {
		if name != "" {
			e.Resources = append(e.Resources, models.Resource{Name: name})
		}
	}

	created, _, err := h.ctrl.AddEngagement(ctx, e)
	if err != nil {
		return nil, models.Engagement{}, fmt.Errorf("failed to create engagement: %w", err)
	}
	return nil, created, nil
}

type ListEngagementsInput struct {
	ClientName string `json:"client_name,omitempty" jsonschema:"Filter by client name"`
	Status     string `json:"status,omitempty" jsonschema:"Filter by status"`
}

type ListEngagementsOutput struct {
	Engagements []models.Engagement `json:"engagements"`
}

func (h *DealHandlers) ListEngagements(_ context.Context, _ *mcp.CallToolRequest, input ListEngagementsInput) (*mcp.CallToolResult, ListEngagementsOutput, error) {
	key := crm.NormalizeName(input.ClientName)
	output := ListEngagementsOutput{Engagements: []models.Engagement{}}
	for _, e := range h.ctrl.Snapshot().Engagements {
		if key != "" && crm.NormalizeName(e.ClientName) != key {
			continue
		}
		if input.Status != "" && e.Status != input.Status {
			continue
		}
		output.Engagements = append(output.Engagements, e)
	}
	return nil, output, nil
}
