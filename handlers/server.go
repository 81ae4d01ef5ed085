// ABOUTME: Builds the MCP server with every CRM tool and resource registered
// ABOUTME: Tools mutate through the crm.Controller so the owned dataset stays current
package handlers

import (
	"github.com/harperreed/crmdesk/crm"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer registers the CRM tools and resources against ctrl.
func NewServer(ctrl *crm.Controller, version string) *mcp.Server {
	contactHandlers := NewContactHandlers(ctrl)
	companyHandlers := NewCompanyHandlers(ctrl)
	dealHandlers := NewDealHandlers(ctrl)
	resourceHandlers := NewResourceHandlers(ctrl)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmdesk",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_contact",
		Description: "Add a new contact to the CRM",
	}, contactHandlers.AddContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_contacts",
		Description: "Search for contacts by name, email, or company",
	}, contactHandlers.FindContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_contact",
		Description: "Update an existing contact's information",
	}, contactHandlers.UpdateContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_contact",
		Description: "Delete a contact and its activities",
	}, contactHandlers.DeleteContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_activity",
		Description: "Record a call, email, meeting, note or task against a contact",
	}, contactHandlers.AddActivity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_companies",
		Description: "List stored companies and the virtual companies implied by contact records",
	}, companyHandlers.ListCompanies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "promote_company",
		Description: "Turn a virtual company into a stored company record",
	}, companyHandlers.PromoteCompany)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assign_company_owner",
		Description: "Set the owner of a company and every contact that works there",
	}, companyHandlers.AssignOwner)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assign_company_resource",
		Description: "Assign a resource to a company, its contacts and its engagements",
	}, companyHandlers.AssignResource)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_deal",
		Description: "Create a new deal in the pipeline",
	}, dealHandlers.CreateDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deals",
		Description: "List deals with the total pipeline value, optionally by stage",
	}, dealHandlers.ListDeals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_engagement",
		Description: "Create a client engagement with its staffed resources",
	}, dealHandlers.AddEngagement)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_engagements",
		Description: "List engagements, optionally filtered by client or status",
	}, dealHandlers.ListEngagements)

	for _, r := range resourceHandlers.Resources() {
		server.AddResource(r, resourceHandlers.ReadResource)
	}

	return server
}
