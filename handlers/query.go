// ABOUTME: Universal query tool handler
// ABOUTME: Implements query_roster across contacts, raw contacts, accounts, groups, directories and deletions
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

type QueryHandlers struct {
	p *provider.Provider
}

func NewQueryHandlers(p *provider.Provider) *QueryHandlers {
	return &QueryHandlers{p: p}
}

type QueryInput struct {
	EntityType  string `json:"entity_type" jsonschema:"Type of entity to query (contact, raw_contact, account, group, directory, deleted_contact)"`
	Query       string `json:"query,omitempty" jsonschema:"Search query for contacts"`
	ID          int64  `json:"id,omitempty" jsonschema:"Row id for raw_contact"`
	AccountName string `json:"account_name,omitempty" jsonschema:"Account name for group queries"`
	AccountType string `json:"account_type,omitempty" jsonschema:"Account type for group queries"`
	Since       string `json:"since,omitempty" jsonschema:"RFC 3339 time for deleted_contact queries"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10)"`
	Profile     bool   `json:"profile,omitempty" jsonschema:"Query the profile database"`
}

type QueryOutput struct {
	EntityType string `json:"entity_type"`
	Results    []any  `json:"results"`
	Count      int    `json:"count"`
}

func (h *QueryHandlers) Query(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 10
	}
	opts := provider.CallOptions{Profile: input.Profile}

	var (
		results []any
		err     error
	)
	switch input.EntityType {
	case "contact":
		results, err = h.queryContacts(ctx, opts, input)
	case "raw_contact":
		results, err = h.queryRawContact(ctx, opts, input)
	case "account":
		results, err = collect(h.p.ListAccounts(ctx, opts))
	case "group":
		acct := models.Account{Name: input.AccountName, Type: input.AccountType}
		results, err = collect(h.p.ListGroups(ctx, opts, acct))
	case "directory":
		results, err = collect(h.p.ListDirectories(ctx))
	case "deleted_contact":
		results, err = h.queryDeleted(ctx, opts, input)
	default:
		return nil, QueryOutput{}, fmt.Errorf("invalid entity_type: %s (valid: contact, raw_contact, account, group, directory, deleted_contact)", input.EntityType)
	}
	if err != nil {
		return nil, QueryOutput{}, err
	}
	if len(results) > input.Limit {
		results = results[:input.Limit]
	}
	if results == nil {
		results = []any{}
	}
	return nil, QueryOutput{EntityType: input.EntityType, Results: results, Count: len(results)}, nil
}

func collect[T any](items []T, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, nil
}

func (h *QueryHandlers) queryContacts(ctx context.Context, opts provider.CallOptions, input QueryInput) ([]any, error) {
	var (
		contacts []provider.ContactView
		err      error
	)
	if input.Query == "" {
		contacts, err = h.p.ListContacts(ctx, opts, input.Limit, 0)
	} else {
		contacts, err = h.p.FindContacts(ctx, opts, input.Query, input.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	out := make([]any, len(contacts))
	for i := range contacts {
		out[i] = summarize(contacts[i])
	}
	return out, nil
}

func (h *QueryHandlers) queryRawContact(ctx context.Context, opts provider.CallOptions, input QueryInput) ([]any, error) {
	if input.ID <= 0 {
		return nil, fmt.Errorf("id is required for raw_contact queries")
	}
	r, err := h.p.RawContact(ctx, opts, input.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw contact: %w", err)
	}
	return []any{r}, nil
}

func (h *QueryHandlers) queryDeleted(ctx context.Context, opts provider.CallOptions, input QueryInput) ([]any, error) {
	var since time.Time
	if input.Since != "" {
		t, err := time.Parse(time.RFC3339, input.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
		since = t
	}
	return collect(h.p.DeletedContactsSince(ctx, opts, since))
}
