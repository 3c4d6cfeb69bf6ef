// ABOUTME: Aggregation MCP tool handlers
// ABOUTME: Exception, suggestion, join and split tools over the aggregation engine
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

type AggregationHandlers struct {
	p *provider.Provider
}

func NewAggregationHandlers(p *provider.Provider) *AggregationHandlers {
	return &AggregationHandlers{p: p}
}

type SetExceptionInput struct {
	Type          string `json:"type" jsonschema:"keep_together, keep_separate or automatic"`
	RawContactID1 int64  `json:"raw_contact_id1" jsonschema:"First raw contact"`
	RawContactID2 int64  `json:"raw_contact_id2" jsonschema:"Second raw contact"`
	Profile       bool   `json:"profile,omitempty" jsonschema:"Use the profile database"`
}

type SetExceptionOutput struct {
	Type       string `json:"type"`
	ContactID1 int64  `json:"contact_id1"`
	ContactID2 int64  `json:"contact_id2"`
	Joined     bool   `json:"joined"`
}

func (h *AggregationHandlers) SetException(ctx context.Context, _ *mcp.CallToolRequest, input SetExceptionInput) (*mcp.CallToolResult, SetExceptionOutput, error) {
	typ, ok := models.ParseExceptionType(input.Type)
	if !ok {
		return nil, SetExceptionOutput{}, fmt.Errorf("invalid type %q (valid: keep_together, keep_separate, automatic)", input.Type)
	}
	opts := provider.CallOptions{Profile: input.Profile}
	if err := h.p.SetAggregationException(ctx, opts, typ, input.RawContactID1, input.RawContactID2); err != nil {
		return nil, SetExceptionOutput{}, fmt.Errorf("failed to set exception: %w", err)
	}

	r1, err := h.p.RawContact(ctx, opts, input.RawContactID1)
	if err != nil {
		return nil, SetExceptionOutput{}, err
	}
	r2, err := h.p.RawContact(ctx, opts, input.RawContactID2)
	if err != nil {
		return nil, SetExceptionOutput{}, err
	}
	return nil, SetExceptionOutput{
		Type:       typ.String(),
		ContactID1: r1.ContactID,
		ContactID2: r2.ContactID,
		Joined:     r1.ContactID == r2.ContactID,
	}, nil
}

type ListExceptionsInput struct {
	Type    string `json:"type,omitempty" jsonschema:"Only list exceptions of this type"`
	Profile bool   `json:"profile,omitempty" jsonschema:"Use the profile database"`
}

type ExceptionOutput struct {
	Type          string `json:"type"`
	RawContactID1 int64  `json:"raw_contact_id1"`
	RawContactID2 int64  `json:"raw_contact_id2"`
}

type ListExceptionsOutput struct {
	Exceptions []ExceptionOutput `json:"exceptions"`
	Count      int               `json:"count"`
}

func (h *AggregationHandlers) ListExceptions(ctx context.Context, _ *mcp.CallToolRequest, input ListExceptionsInput) (*mcp.CallToolResult, ListExceptionsOutput, error) {
	var filter *models.ExceptionType
	if input.Type != "" {
		typ, ok := models.ParseExceptionType(input.Type)
		if !ok {
			return nil, ListExceptionsOutput{}, fmt.Errorf("invalid type %q", input.Type)
		}
		filter = &typ
	}

	list, err := h.p.ListAggregationExceptions(ctx, provider.CallOptions{Profile: input.Profile})
	if err != nil {
		return nil, ListExceptionsOutput{}, fmt.Errorf("failed to list exceptions: %w", err)
	}
	out := ListExceptionsOutput{Exceptions: []ExceptionOutput{}}
	for _, e := range list {
		if filter != nil && e.Type != *filter {
			continue
		}
		out.Exceptions = append(out.Exceptions, ExceptionOutput{
			Type:          e.Type.String(),
			RawContactID1: e.RawContactID1,
			RawContactID2: e.RawContactID2,
		})
	}
	out.Count = len(out.Exceptions)
	return nil, out, nil
}

type SuggestInput struct {
	ContactID int64    `json:"contact_id" jsonschema:"Contact to find possible duplicates of"`
	Max       int      `json:"max,omitempty" jsonschema:"Maximum suggestions (default from config)"`
	Names     []string `json:"names,omitempty" jsonschema:"Match these names instead of the contact's own"`
	Emails    []string `json:"emails,omitempty" jsonschema:"Match these emails instead of the contact's own"`
	Phones    []string `json:"phones,omitempty" jsonschema:"Match these phone numbers instead of the contact's own"`
	Profile   bool     `json:"profile,omitempty" jsonschema:"Use the profile database"`
}

type SuggestOutput struct {
	Suggestions []models.Suggestion `json:"suggestions"`
	Count       int                 `json:"count"`
}

func (h *AggregationHandlers) Suggest(ctx context.Context, _ *mcp.CallToolRequest, input SuggestInput) (*mcp.CallToolResult, SuggestOutput, error) {
	list, err := h.p.Suggestions(ctx, provider.CallOptions{Profile: input.Profile}, input.ContactID, input.Max, aggregation.SuggestionFilter{
		Names:  input.Names,
		Emails: input.Emails,
		Phones: input.Phones,
	})
	if err != nil {
		return nil, SuggestOutput{}, fmt.Errorf("failed to compute suggestions: %w", err)
	}
	if list == nil {
		list = []models.Suggestion{}
	}
	return nil, SuggestOutput{Suggestions: list, Count: len(list)}, nil
}

type JoinContactsInput struct {
	ContactID1 int64 `json:"contact_id1" jsonschema:"Contact to keep"`
	ContactID2 int64 `json:"contact_id2" jsonschema:"Contact to join into the first"`
	Profile    bool  `json:"profile,omitempty" jsonschema:"Use the profile database"`
}

type JoinContactsOutput struct {
	ContactID int64 `json:"contact_id"`
}

func (h *AggregationHandlers) JoinContacts(ctx context.Context, _ *mcp.CallToolRequest, input JoinContactsInput) (*mcp.CallToolResult, JoinContactsOutput, error) {
	id, err := h.p.JoinContacts(ctx, provider.CallOptions{Profile: input.Profile}, input.ContactID1, input.ContactID2)
	if err != nil {
		return nil, JoinContactsOutput{}, fmt.Errorf("failed to join contacts: %w", err)
	}
	return nil, JoinContactsOutput{ContactID: id}, nil
}

type SplitContactInput struct {
	ContactID int64 `json:"contact_id" jsonschema:"Contact to split into one contact per member"`
	Profile   bool  `json:"profile,omitempty" jsonschema:"Use the profile database"`
}

type SplitContactOutput struct {
	ContactIDs []int64 `json:"contact_ids"`
}

func (h *AggregationHandlers) SplitContact(ctx context.Context, _ *mcp.CallToolRequest, input SplitContactInput) (*mcp.CallToolResult, SplitContactOutput, error) {
	ids, err := h.p.SplitContact(ctx, provider.CallOptions{Profile: input.Profile}, input.ContactID)
	if err != nil {
		return nil, SplitContactOutput{}, fmt.Errorf("failed to split contact: %w", err)
	}
	return nil, SplitContactOutput{ContactIDs: ids}, nil
}
