// ABOUTME: Assembles the MCP server from the tool, resource and prompt handlers
// ABOUTME: Shared by the mcp subcommand and the handler tests
package handlers

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/provider"
)

// NewServer registers every roster tool, resource and prompt.
func NewServer(p *provider.Provider, version string) *mcp.Server {
	contacts := NewContactHandlers(p)
	agg := NewAggregationHandlers(p)
	query := NewQueryHandlers(p)
	vis := NewVizHandlers(p)
	resources := NewResourceHandlers(p)
	prompts := NewPromptHandlers(p)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "roster",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_contact",
		Description: "Add a raw contact to an account; it is aggregated with matching contacts",
	}, contacts.AddContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_contacts",
		Description: "Search contacts by name, email, phone or nickname",
	}, contacts.FindContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_contact",
		Description: "Get a contact by id or lookup key with every source it aggregates",
	}, contacts.GetContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_contact_data",
		Description: "Attach an email, phone, nickname or other item to a raw contact",
	}, contacts.AddData)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_raw_contact",
		Description: "Delete one source of a contact",
	}, contacts.DeleteRawContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_aggregation_exception",
		Description: "Force two raw contacts together or apart, or return them to automatic matching",
	}, agg.SetException)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_aggregation_exceptions",
		Description: "List manual aggregation decisions",
	}, agg.ListExceptions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_merges",
		Description: "Find contacts that may be the same person as a given contact",
	}, agg.Suggest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "join_contacts",
		Description: "Merge two contacts by keeping all of their sources together",
	}, agg.JoinContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "split_contact",
		Description: "Split a contact into one contact per source",
	}, agg.SplitContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_roster",
		Description: "Universal query tool across contacts, raw contacts, accounts, groups, directories and deletions",
	}, query.Query)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_graph",
		Description: "Render contact aggregation as GraphViz DOT",
	}, vis.GenerateGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dashboard",
		Description: "Summarize contacts per account and merge statistics",
	}, vis.Dashboard)

	for _, r := range resources.Resources() {
		server.AddResource(r, resources.ReadResource)
	}
	for _, t := range resources.Templates() {
		server.AddResourceTemplate(t, resources.ReadResource)
	}
	for _, pr := range prompts.Prompts() {
		server.AddPrompt(pr, prompts.GetPrompt)
	}
	return server
}
