// ABOUTME: MCP resource handlers for exposing contact data
// ABOUTME: Provides read-only access to contacts, accounts and directories via roster:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/provider"
)

const resourceScheme = "roster://"

type ResourceHandlers struct {
	p *provider.Provider
}

func NewResourceHandlers(p *provider.Provider) *ResourceHandlers {
	return &ResourceHandlers{p: p}
}

// Resources lists the fixed resources ReadResource serves.
func (h *ResourceHandlers) Resources() []*mcp.Resource {
	return []*mcp.Resource{
		{URI: resourceScheme + "contacts", Name: "contacts", Description: "All contacts in sort order", MIMEType: "application/json"},
		{URI: resourceScheme + "accounts", Name: "accounts", Description: "Known accounts", MIMEType: "application/json"},
		{URI: resourceScheme + "directories", Name: "directories", Description: "Contact directories", MIMEType: "application/json"},
	}
}

// Templates lists the parameterized resources ReadResource serves.
func (h *ResourceHandlers) Templates() []*mcp.ResourceTemplate {
	return []*mcp.ResourceTemplate{
		{URITemplate: resourceScheme + "contacts/{id}", Name: "contact", Description: "One contact with its raw contacts", MIMEType: "application/json"},
		{URITemplate: resourceScheme + "lookup/{key}", Name: "contact-by-lookup-key", Description: "A contact resolved from its lookup key", MIMEType: "application/json"},
	}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, resourceScheme), "/", 2)
	opts := provider.CallOptions{}

	var (
		v   any
		err error
	)
	switch {
	case parts[0] == "contacts" && len(parts) == 1:
		v, err = h.p.ListContacts(ctx, opts, 0, 0)
	case parts[0] == "contacts":
		id, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("invalid contact ID: %w", perr)
		}
		var c *provider.ContactView
		if c, err = h.p.GetContact(ctx, opts, id); err == nil {
			v = contactToOutput(c)
		}
	case parts[0] == "lookup" && len(parts) == 2:
		var c *provider.ContactView
		if c, err = h.p.LookupContact(ctx, parts[1]); err == nil {
			v = contactToOutput(c)
		}
	case parts[0] == "accounts":
		v, err = h.p.ListAccounts(ctx, opts)
	case parts[0] == "directories":
		v, err = h.p.ListDirectories(ctx)
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
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
