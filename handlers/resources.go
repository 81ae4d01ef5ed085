// ABOUTME: MCP resource handlers for exposing CRM data
// ABOUTME: Provides read-only JSON views of contacts, companies, deals and the pipeline via crm:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harperreed/crmdesk/crm"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ResourceHandlers struct {
	ctrl *crm.Controller
}

func NewResourceHandlers(ctrl *crm.Controller) *ResourceHandlers {
	return &ResourceHandlers{ctrl: ctrl}
}

// Resources lists the fixed URIs served by ReadResource.
func (h *ResourceHandlers) Resources() []*mcp.Resource {
	return []*mcp.Resource{
		{URI: "crm://contacts", Name: "contacts", Description: "All contacts", MIMEType: "application/json"},
		{URI: "crm://companies", Name: "companies", Description: "Stored and virtual companies", MIMEType: "application/json"},
		{URI: "crm://deals", Name: "deals", Description: "All deals", MIMEType: "application/json"},
		{URI: "crm://pipeline", Name: "pipeline", Description: "Deal count and value per stage", MIMEType: "application/json"},
	}
}

type stageTotal struct {
	Count int     `json:"count"`
	Value float64 `json:"total_value"`
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(_ context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, "crm://") {
		return nil, fmt.Errorf("invalid URI scheme: expected crm://")
	}

	var payload interface{}
	switch strings.TrimPrefix(uri, "crm://") {
	case "contacts":
		payload = h.ctrl.Snapshot().Contacts
	case "companies":
		payload = h.ctrl.Companies()
	case "deals":
		payload = h.ctrl.Snapshot().Deals
	case "pipeline":
		pipeline := map[string]stageTotal{}
		for _, d := range h.ctrl.Snapshot().Deals {
			stage := d.Stage
			if stage == "" {
				stage = "unknown"
			}
			p := pipeline[stage]
			p.Count++
			p.Value += d.Value
			pipeline[stage] = p
		}
		payload = pipeline
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
