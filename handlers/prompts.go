// ABOUTME: MCP prompt handlers for reusable contact workflow templates
// ABOUTME: Provides prompts for reviewing a contact, its merge suggestions and exceptions
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/provider"
)

type PromptHandlers struct {
	p *provider.Provider
}

func NewPromptHandlers(p *provider.Provider) *PromptHandlers {
	return &PromptHandlers{p: p}
}

// Prompts lists the prompts GetPrompt serves.
func (h *PromptHandlers) Prompts() []*mcp.Prompt {
	contactArg := []*mcp.PromptArgument{{Name: "contact_id", Description: "Contact id", Required: true}}
	return []*mcp.Prompt{
		{Name: "contact-summary", Description: "Summarize a contact and where its data comes from", Arguments: contactArg},
		{Name: "merge-review", Description: "Review possible duplicates of a contact", Arguments: contactArg},
		{Name: "exception-audit", Description: "Audit the user's keep-together and keep-separate decisions"},
	}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	arguments := request.Params.Arguments
	switch name {
	case "contact-summary":
		return h.getContactSummaryPrompt(ctx, arguments)
	case "merge-review":
		return h.getMergeReviewPrompt(ctx, arguments)
	case "exception-audit":
		return h.getExceptionAuditPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
}

func contactIDArg(args map[string]string) (int64, error) {
	s, ok := args["contact_id"]
	if !ok {
		return 0, fmt.Errorf("contact_id is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid contact_id: %w", err)
	}
	return id, nil
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}

func writeContact(b *strings.Builder, c ContactOutput) {
	fmt.Fprintf(b, "Name: %s (contact %d)\n", c.Contact.DisplayName, c.Contact.ID)
	for _, r := range c.RawContacts {
		fmt.Fprintf(b, "- from %s (raw contact %d, %s)\n", r.Account, r.ID, r.Mode)
		for _, d := range r.Data {
			fmt.Fprintf(b, "    %s: %s\n", d.Kind, d.Value)
		}
	}
}

func (h *PromptHandlers) getContactSummaryPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	id, err := contactIDArg(args)
	if err != nil {
		return nil, err
	}
	contact, err := h.p.GetContact(ctx, provider.CallOptions{}, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contact: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please provide a summary of this contact:\n\n")
	writeContact(&promptText, contactToOutput(contact))
	promptText.WriteString("\nPlease describe:")
	promptText.WriteString("\n1. Who this person is, based on all sources")
	promptText.WriteString("\n2. Where the sources disagree")

	return userPrompt(fmt.Sprintf("Summary for contact: %s", contact.DisplayName), promptText.String()), nil
}

func (h *PromptHandlers) getMergeReviewPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	id, err := contactIDArg(args)
	if err != nil {
		return nil, err
	}
	opts := provider.CallOptions{}
	contact, err := h.p.GetContact(ctx, opts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contact: %w", err)
	}
	suggestions, err := h.p.Suggestions(ctx, opts, id, 0, aggregation.SuggestionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("This contact may have duplicates:\n\n")
	writeContact(&promptText, contactToOutput(contact))
	if len(suggestions) == 0 {
		promptText.WriteString("\nNo candidates were found.\n")
	}
	for _, s := range suggestions {
		candidate, err := h.p.GetContact(ctx, opts, s.ContactID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&promptText, "\nCandidate (score %d, matched on %s):\n", s.Score, strings.Join(s.Signals, ", "))
		writeContact(&promptText, contactToOutput(candidate))
	}
	promptText.WriteString("\nFor each candidate, say whether it is the same person. ")
	promptText.WriteString("Use join_contacts for matches and set_aggregation_exception with keep_separate for false matches.")

	return userPrompt(fmt.Sprintf("Merge review for: %s", contact.DisplayName), promptText.String()), nil
}

func (h *PromptHandlers) getExceptionAuditPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	opts := provider.CallOptions{}
	exceptions, err := h.p.ListAggregationExceptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exceptions: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("These are the manual aggregation decisions on record:\n\n")
	for _, e := range exceptions {
		name := func(rawID int64) string {
			r, err := h.p.RawContact(ctx, opts, rawID)
			if err != nil || r.DisplayName == "" {
				return fmt.Sprintf("raw contact %d", rawID)
			}
			return fmt.Sprintf("%s (%s)", r.DisplayName, r.Account)
		}
		fmt.Fprintf(&promptText, "- %s: %s / %s\n", e.Type, name(e.RawContactID1), name(e.RawContactID2))
	}
	if len(exceptions) == 0 {
		promptText.WriteString("(none)\n")
	}
	promptText.WriteString("\nPoint out decisions that look inconsistent with each other.")

	return userPrompt("Aggregation exception audit", promptText.String()), nil
}
