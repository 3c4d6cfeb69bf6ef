// ABOUTME: Contact MCP tool handlers
// ABOUTME: Implements add_contact, find_contacts, get_contact, add_contact_data and delete_raw_contact tools
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

type ContactHandlers struct {
	p *provider.Provider
}

func NewContactHandlers(p *provider.Provider) *ContactHandlers {
	return &ContactHandlers{p: p}
}

type AddContactInput struct {
	AccountName  string `json:"account_name,omitempty" jsonschema:"Account name, empty for the local account"`
	AccountType  string `json:"account_type,omitempty" jsonschema:"Account type, empty for the local account"`
	DataSet      string `json:"data_set,omitempty" jsonschema:"Optional data set within the account"`
	Profile      bool   `json:"profile,omitempty" jsonschema:"Use the profile (me) database"`
	Name         string `json:"name" jsonschema:"Display name (required)"`
	Email        string `json:"email,omitempty" jsonschema:"Email address"`
	Phone        string `json:"phone,omitempty" jsonschema:"Phone number"`
	Nickname     string `json:"nickname,omitempty" jsonschema:"Nickname"`
	Organization string `json:"organization,omitempty" jsonschema:"Company name"`
	Note         string `json:"note,omitempty" jsonschema:"Free-form note"`
	SourceID     string `json:"source_id,omitempty" jsonschema:"Id of the record in its account"`
}

type AddContactOutput struct {
	RawContactID int64  `json:"raw_contact_id"`
	ContactID    int64  `json:"contact_id"`
	LookupKey    string `json:"lookup_key"`
	DisplayName  string `json:"display_name"`
}

func dataRow(mime string, col int, value string) models.DataRow {
	row := models.DataRow{MimeType: mime}
	row.Set(col, value)
	return row
}

func (h *ContactHandlers) AddContact(ctx context.Context, _ *mcp.CallToolRequest, input AddContactInput) (*mcp.CallToolResult, AddContactOutput, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, AddContactOutput{}, fmt.Errorf("name is required")
	}

	rows := []models.DataRow{dataRow(models.MimeStructuredName, models.NameDisplayName, input.Name)}
	optional := []struct {
		mime  string
		col   int
		value string
	}{
		{models.MimeEmail, models.EmailAddress, input.Email},
		{models.MimePhone, models.PhoneNumber, input.Phone},
		{models.MimeNickname, models.NicknameName, input.Nickname},
		{models.MimeOrganization, models.OrgCompany, input.Organization},
		{models.MimeNote, models.NoteText, input.Note},
	}
	for _, o := range optional {
		if o.value != "" {
			rows = append(rows, dataRow(o.mime, o.col, o.value))
		}
	}

	opts := provider.CallOptions{Profile: input.Profile}
	rawID, err := h.p.InsertRawContact(ctx, opts, provider.NewRawContact{
		Account:  models.Account{Name: input.AccountName, Type: input.AccountType, DataSet: input.DataSet},
		SourceID: input.SourceID,
		Data:     rows,
	})
	if err != nil {
		return nil, AddContactOutput{}, fmt.Errorf("failed to add contact: %w", err)
	}

	raw, err := h.p.RawContact(ctx, opts, rawID)
	if err != nil {
		return nil, AddContactOutput{}, fmt.Errorf("failed to load raw contact: %w", err)
	}
	contact, err := h.p.GetContact(ctx, opts, raw.ContactID)
	if err != nil {
		return nil, AddContactOutput{}, fmt.Errorf("failed to load contact: %w", err)
	}
	return nil, AddContactOutput{
		RawContactID: rawID,
		ContactID:    contact.ID,
		LookupKey:    contact.LookupKey,
		DisplayName:  contact.DisplayName,
	}, nil
}

type FindContactsInput struct {
	Query   string `json:"query,omitempty" jsonschema:"Name, email, phone or nickname to search; empty lists all contacts"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10)"`
	Profile bool   `json:"profile,omitempty" jsonschema:"Search the profile database"`
}

type ContactSummary struct {
	ID          int64  `json:"id"`
	LookupKey   string `json:"lookup_key"`
	DisplayName string `json:"display_name"`
	Members     int    `json:"members"`
	Starred     bool   `json:"starred,omitempty"`
	HasPhone    bool   `json:"has_phone_number,omitempty"`
}

type FindContactsOutput struct {
	Contacts []ContactSummary `json:"contacts"`
	Count    int              `json:"count"`
}

func summarize(c provider.ContactView) ContactSummary {
	return ContactSummary{
		ID:          c.ID,
		LookupKey:   c.LookupKey,
		DisplayName: c.DisplayName,
		Members:     len(c.RawContacts),
		Starred:     c.Starred,
		HasPhone:    c.HasPhoneNumber,
	}
}

func (h *ContactHandlers) FindContacts(ctx context.Context, _ *mcp.CallToolRequest, input FindContactsInput) (*mcp.CallToolResult, FindContactsOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 10
	}
	opts := provider.CallOptions{Profile: input.Profile}

	var (
		contacts []provider.ContactView
		err      error
	)
	if strings.TrimSpace(input.Query) == "" {
		contacts, err = h.p.ListContacts(ctx, opts, input.Limit, 0)
	} else {
		contacts, err = h.p.FindContacts(ctx, opts, input.Query, input.Limit)
	}
	if err != nil {
		return nil, FindContactsOutput{}, fmt.Errorf("failed to find contacts: %w", err)
	}

	out := FindContactsOutput{Contacts: make([]ContactSummary, 0, len(contacts))}
	for _, c := range contacts {
		out.Contacts = append(out.Contacts, summarize(c))
	}
	out.Count = len(out.Contacts)
	return nil, out, nil
}

type GetContactInput struct {
	ContactID int64  `json:"contact_id,omitempty" jsonschema:"Contact id"`
	LookupKey string `json:"lookup_key,omitempty" jsonschema:"Lookup key; survives merges and splits"`
	Profile   bool   `json:"profile,omitempty" jsonschema:"Read from the profile database"`
}

type DataItem struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	IsPrimary bool   `json:"is_primary,omitempty"`
}

type RawContactOutput struct {
	ID          int64      `json:"id"`
	Account     string     `json:"account"`
	SourceID    string     `json:"source_id,omitempty"`
	Mode        string     `json:"aggregation_mode"`
	DisplayName string     `json:"display_name,omitempty"`
	Data        []DataItem `json:"data"`
}

type ContactOutput struct {
	Contact        ContactSummary     `json:"contact"`
	DisplayNameAlt string             `json:"display_name_alt,omitempty"`
	PhotoFileID    string             `json:"photo_file_id,omitempty"`
	Status         string             `json:"status,omitempty"`
	RawContacts    []RawContactOutput `json:"raw_contacts"`
}

func dataItem(row models.DataRow) DataItem {
	kind, value := row.Kind()
	return DataItem{ID: row.ID, Kind: kind, Value: value, IsPrimary: row.IsPrimary}
}

func contactToOutput(c *provider.ContactView) ContactOutput {
	out := ContactOutput{
		Contact:        summarize(*c),
		DisplayNameAlt: c.DisplayNameAlt,
		PhotoFileID:    c.PhotoFileID,
		Status:         c.Status,
		RawContacts:    make([]RawContactOutput, 0, len(c.RawContacts)),
	}
	for _, r := range c.RawContacts {
		raw := RawContactOutput{
			ID:          r.ID,
			Account:     r.Account.String(),
			SourceID:    r.SourceID,
			Mode:        r.AggregationMode.String(),
			DisplayName: r.DisplayName,
			Data:        make([]DataItem, 0, len(r.Data)),
		}
		for _, row := range r.Data {
			raw.Data = append(raw.Data, dataItem(row))
		}
		out.RawContacts = append(out.RawContacts, raw)
	}
	return out
}

func (h *ContactHandlers) GetContact(ctx context.Context, _ *mcp.CallToolRequest, input GetContactInput) (*mcp.CallToolResult, ContactOutput, error) {
	var (
		c   *provider.ContactView
		err error
	)
	switch {
	case input.LookupKey != "":
		c, err = h.p.LookupContact(ctx, input.LookupKey)
	case input.ContactID > 0:
		c, err = h.p.GetContact(ctx, provider.CallOptions{Profile: input.Profile}, input.ContactID)
	default:
		return nil, ContactOutput{}, fmt.Errorf("contact_id or lookup_key is required")
	}
	if err != nil {
		return nil, ContactOutput{}, fmt.Errorf("failed to get contact: %w", err)
	}
	return nil, contactToOutput(c), nil
}

type AddDataInput struct {
	RawContactID int64  `json:"raw_contact_id" jsonschema:"Raw contact to attach the item to"`
	Kind         string `json:"kind" jsonschema:"One of name, nickname, organization, phone, email, identity, note, postal"`
	Value        string `json:"value" jsonschema:"Value of the item"`
	Primary      bool   `json:"primary,omitempty" jsonschema:"Mark as the primary item of its kind"`
	Profile      bool   `json:"profile,omitempty" jsonschema:"Write to the profile database"`
}

type AddDataOutput struct {
	DataID    int64 `json:"data_id"`
	ContactID int64 `json:"contact_id"`
}

func (h *ContactHandlers) AddData(ctx context.Context, _ *mcp.CallToolRequest, input AddDataInput) (*mcp.CallToolResult, AddDataOutput, error) {
	mime, col, ok := models.MimeForKind(input.Kind)
	if !ok || mime == models.MimePhoto || mime == models.MimeGroupMembership {
		return nil, AddDataOutput{}, fmt.Errorf("unsupported kind %q", input.Kind)
	}
	if strings.TrimSpace(input.Value) == "" {
		return nil, AddDataOutput{}, fmt.Errorf("value is required")
	}

	row := dataRow(mime, col, input.Value)
	row.RawContactID = input.RawContactID
	row.IsPrimary = input.Primary

	opts := provider.CallOptions{Profile: input.Profile}
	id, err := h.p.InsertData(ctx, opts, row)
	if err != nil {
		return nil, AddDataOutput{}, fmt.Errorf("failed to add %s: %w", input.Kind, err)
	}
	raw, err := h.p.RawContact(ctx, opts, input.RawContactID)
	if err != nil {
		return nil, AddDataOutput{}, fmt.Errorf("failed to load raw contact: %w", err)
	}
	return nil, AddDataOutput{DataID: id, ContactID: raw.ContactID}, nil
}

type DeleteRawContactInput struct {
	RawContactID int64 `json:"raw_contact_id" jsonschema:"Raw contact to delete"`
	Profile      bool  `json:"profile,omitempty" jsonschema:"Delete from the profile database"`
}

type DeleteOutput struct {
	Deleted int `json:"deleted"`
}

func (h *ContactHandlers) DeleteRawContact(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRawContactInput) (*mcp.CallToolResult, DeleteOutput, error) {
	n, err := h.p.DeleteRawContact(ctx, provider.CallOptions{Profile: input.Profile}, input.RawContactID)
	if err != nil {
		return nil, DeleteOutput{}, fmt.Errorf("failed to delete raw contact: %w", err)
	}
	return nil, DeleteOutput{Deleted: n}, nil
}
