// ABOUTME: GraphViz visualization MCP handlers
// ABOUTME: Provides generate_graph and dashboard tools for agents
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/viz"
)

type VizHandlers struct {
	p *provider.Provider
}

func NewVizHandlers(p *provider.Provider) *VizHandlers {
	return &VizHandlers{p: p}
}

type GenerateGraphInput struct {
	ContactID int64 `json:"contact_id,omitempty" jsonschema:"Only draw this contact; omit for every contact"`
	Profile   bool  `json:"profile,omitempty" jsonschema:"Draw the profile database"`
}

type GenerateGraphOutput struct {
	DOTSource string `json:"dot_source"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

func (h *VizHandlers) GenerateGraph(ctx context.Context, _ *mcp.CallToolRequest, input GenerateGraphInput) (*mcp.CallToolResult, GenerateGraphOutput, error) {
	generator := viz.NewGraphGenerator(h.p, provider.CallOptions{Profile: input.Profile})

	var contactID *int64
	if input.ContactID > 0 {
		contactID = &input.ContactID
	}
	graph, err := generator.GenerateMembershipGraph(ctx, contactID)
	if err != nil {
		return nil, GenerateGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}
	return nil, GenerateGraphOutput{
		DOTSource: graph.DOT,
		NodeCount: graph.Nodes,
		EdgeCount: graph.Edges,
	}, nil
}

type DashboardInput struct {
	Profile bool `json:"profile,omitempty" jsonschema:"Summarize the profile database"`
}

type DashboardOutput struct {
	Text           string `json:"text"`
	Contacts       int    `json:"contacts"`
	RawContacts    int    `json:"raw_contacts"`
	MergedContacts int    `json:"merged_contacts"`
}

func (h *VizHandlers) Dashboard(ctx context.Context, _ *mcp.CallToolRequest, input DashboardInput) (*mcp.CallToolResult, DashboardOutput, error) {
	stats, err := viz.GenerateDashboardStats(ctx, h.p, provider.CallOptions{Profile: input.Profile})
	if err != nil {
		return nil, DashboardOutput{}, fmt.Errorf("failed to build dashboard: %w", err)
	}
	return nil, DashboardOutput{
		Text:           viz.RenderDashboard(stats),
		Contacts:       stats.TotalContacts,
		RawContacts:    stats.TotalRawContacts,
		MergedContacts: stats.MergedContacts,
	}, nil
}
