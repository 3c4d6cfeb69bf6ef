// ABOUTME: Contact CLI commands
// ABOUTME: Adds, lists, shows and deletes contacts and their data items
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// AddContactCommand inserts a raw contact and reports the contact it joined.
func AddContactCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("add")
	name := fs.String("name", "", "Display name (required)")
	email := fs.StringSlice("email", nil, "Email address (repeatable)")
	phone := fs.StringSlice("phone", nil, "Phone number (repeatable)")
	nickname := fs.String("nickname", "", "Nickname")
	org := fs.String("org", "", "Company name")
	note := fs.String("note", "", "Free-form note")
	account := fs.String("account", "", "Account as type:name, empty for the local account")
	sourceID := fs.String("source-id", "", "Id of the record in its account")
	profile := fs.Bool("profile", false, "Write to the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("--name is required")
	}
	acct, err := parseAccount(*account)
	if err != nil {
		return err
	}

	rows := []models.DataRow{newRow(models.MimeStructuredName, models.NameDisplayName, *name)}
	for _, e := range *email {
		rows = append(rows, newRow(models.MimeEmail, models.EmailAddress, e))
	}
	for _, ph := range *phone {
		rows = append(rows, newRow(models.MimePhone, models.PhoneNumber, ph))
	}
	if *nickname != "" {
		rows = append(rows, newRow(models.MimeNickname, models.NicknameName, *nickname))
	}
	if *org != "" {
		rows = append(rows, newRow(models.MimeOrganization, models.OrgCompany, *org))
	}
	if *note != "" {
		rows = append(rows, newRow(models.MimeNote, models.NoteText, *note))
	}

	opts := provider.CallOptions{Profile: *profile}
	rawID, err := env.Provider.InsertRawContact(ctx, opts, provider.NewRawContact{
		Account:  acct,
		SourceID: *sourceID,
		Data:     rows,
	})
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	raw, err := env.Provider.RawContact(ctx, opts, rawID)
	if err != nil {
		return fmt.Errorf("failed to load raw contact: %w", err)
	}

	env.printf("%s Raw contact %d added to contact %d\n", okStyle.Render("✓"), rawID, raw.ContactID)
	if c, err := env.Provider.GetContact(ctx, opts, raw.ContactID); err == nil {
		env.printf("  Name:    %s\n", c.DisplayName)
		env.printf("  Lookup:  %s\n", c.LookupKey)
		env.printf("  Members: %d\n", len(c.RawContacts))
	}
	return nil
}

func newRow(mime string, col int, value string) models.DataRow {
	row := models.DataRow{MimeType: mime}
	row.Set(col, value)
	return row
}

// ListContactsCommand lists contacts, optionally filtered by a search query.
func ListContactsCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("list")
	query := fs.StringP("query", "q", "", "Search by name, email or phone")
	limit := fs.Int("limit", 50, "Maximum results")
	offset := fs.Int("offset", 0, "Skip this many contacts")
	profile := fs.Bool("profile", false, "List the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	opts := provider.CallOptions{Profile: *profile}
	var (
		contacts []provider.ContactView
		err      error
	)
	if *query != "" {
		contacts, err = env.Provider.FindContacts(ctx, opts, *query, *limit)
	} else {
		contacts, err = env.Provider.ListContacts(ctx, opts, *limit, *offset)
	}
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	if len(contacts) == 0 {
		env.printf("No contacts found\n")
		return nil
	}

	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTARRED\tPHONE\tLOOKUP")
	for _, c := range contacts {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			c.ID, nameOrUnnamed(c.DisplayName), yesNo(c.Starred), yesNo(c.HasPhoneNumber), c.LookupKey)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	env.printf("\n%d contact(s)\n", len(contacts))
	return nil
}

// ShowContactCommand prints a contact with its raw contacts and data items.
func ShowContactCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("show")
	lookup := fs.String("lookup", "", "Resolve the contact by lookup key")
	profile := fs.Bool("profile", false, "Read the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	var (
		c   *provider.ContactView
		err error
	)
	switch {
	case *lookup != "":
		c, err = env.Provider.LookupContact(ctx, *lookup)
	case fs.NArg() == 1:
		var id int64
		if id, err = parseID("contact id", fs.Arg(0)); err != nil {
			return err
		}
		c, err = env.Provider.GetContact(ctx, provider.CallOptions{Profile: *profile}, id)
	default:
		return fmt.Errorf("usage: roster contacts show <contact-id> | --lookup <key>")
	}
	if err != nil {
		return fmt.Errorf("failed to get contact: %w", err)
	}
	printContact(env, c)
	return nil
}

func printContact(env *Env, c *provider.ContactView) {
	env.printf("%s\n", headerStyle.Render(fmt.Sprintf("%s (contact %d)", nameOrUnnamed(c.DisplayName), c.ID)))
	env.printf("  Lookup:   %s\n", c.LookupKey)
	if c.DisplayNameAlt != "" && c.DisplayNameAlt != c.DisplayName {
		env.printf("  Sorts as: %s\n", c.DisplayNameAlt)
	}
	if c.Starred {
		env.printf("  Starred\n")
	}
	if c.PhotoFileID != "" {
		env.printf("  Photo:    %s\n", c.PhotoFileID)
	}
	if c.Status != "" {
		env.printf("  Status:   %s\n", c.Status)
	}
	for _, r := range c.RawContacts {
		env.printf("\n  Raw contact %d  %s\n", r.ID, dimStyle.Render(accountLabel(r.Account)))
		if r.SourceID != "" {
			env.printf("    source id: %s\n", r.SourceID)
		}
		if r.AggregationMode != models.AggregationModeDefault {
			env.printf("    mode:      %s\n", r.AggregationMode)
		}
		for _, row := range r.Data {
			kind, value := row.Kind()
			marker := ""
			if row.IsSuperPrimary {
				marker = " **"
			} else if row.IsPrimary {
				marker = " *"
			}
			env.printf("    [%d] %-12s %s%s\n", row.ID, kind, value, marker)
		}
	}
}

func nameOrUnnamed(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

// AddDataCommand attaches one data item to a raw contact.
func AddDataCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("add-data")
	primary := fs.Bool("primary", false, "Mark as the primary item of its kind")
	profile := fs.Bool("profile", false, "Write to the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return fmt.Errorf("usage: roster contacts add-data <raw-contact-id> <kind> <value>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	rawID, err := parseID("raw contact id", fs.Arg(0))
	if err != nil {
		return err
	}
	mime, col, ok := models.MimeForKind(fs.Arg(1))
	if !ok || mime == models.MimePhoto || mime == models.MimeGroupMembership {
		return models.ValidationErrorf("unsupported kind %q", fs.Arg(1))
	}

	row := newRow(mime, col, fs.Arg(2))
	row.RawContactID = rawID
	row.IsPrimary = *primary
	id, err := env.Provider.InsertData(ctx, provider.CallOptions{Profile: *profile}, row)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", fs.Arg(1), err)
	}
	env.printf("%s Added %s (data %d) to raw contact %d\n", okStyle.Render("✓"), fs.Arg(1), id, rawID)
	return nil
}

// DeleteRawContactCommand deletes one raw contact. The contact goes away with
// its last member.
func DeleteRawContactCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("delete")
	profile := fs.Bool("profile", false, "Delete from the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster contacts delete <raw-contact-id>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	id, err := parseID("raw contact id", fs.Arg(0))
	if err != nil {
		return err
	}
	n, err := env.Provider.DeleteRawContact(ctx, provider.CallOptions{Profile: *profile}, id)
	if err != nil {
		return fmt.Errorf("failed to delete raw contact: %w", err)
	}
	if n == 0 {
		return models.NotFoundError("raw contact", id)
	}
	env.printf("%s Deleted raw contact %d\n", okStyle.Render("✓"), id)
	return nil
}

// UpdateRawContactCommand changes the aggregation mode or starred flag of a
// raw contact.
func UpdateRawContactCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("update")
	mode := fs.String("mode", "", "Aggregation mode: default, immediate, suspended, disabled, strict")
	starred := fs.String("starred", "", "Set starred: true or false")
	profile := fs.Bool("profile", false, "Write to the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster contacts update <raw-contact-id> [--mode m] [--starred bool]")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	id, err := parseID("raw contact id", fs.Arg(0))
	if err != nil {
		return err
	}

	var patch provider.RawContactPatch
	if *mode != "" {
		m, ok := models.ParseAggregationMode(*mode)
		if !ok {
			return models.ValidationErrorf("unknown aggregation mode %q", *mode)
		}
		patch.AggregationMode = &m
	}
	switch *starred {
	case "":
	case "true", "yes":
		v := true
		patch.Starred = &v
	case "false", "no":
		v := false
		patch.Starred = &v
	default:
		return models.ValidationErrorf("--starred must be true or false, got %q", *starred)
	}
	if patch.AggregationMode == nil && patch.Starred == nil {
		return fmt.Errorf("nothing to update: pass --mode or --starred")
	}

	opts := provider.CallOptions{Profile: *profile}
	if _, err := env.Provider.RawContact(ctx, opts, id); err != nil {
		return err
	}
	n, err := env.Provider.UpdateRawContact(ctx, opts, id, patch)
	if err != nil {
		return fmt.Errorf("failed to update raw contact: %w", err)
	}
	if n == 0 {
		env.printf("Raw contact %d unchanged\n", id)
		return nil
	}
	env.printf("%s Updated raw contact %d\n", okStyle.Render("✓"), id)
	return nil
}

// ContactsCommand routes the contacts subcommands.
func ContactsCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("contacts requires a subcommand: add, list, show, add-data, update, delete")
	}
	switch args[0] {
	case "add":
		return AddContactCommand(ctx, env, args[1:])
	case "list", "ls":
		return ListContactsCommand(ctx, env, args[1:])
	case "show", "get":
		return ShowContactCommand(ctx, env, args[1:])
	case "add-data":
		return AddDataCommand(ctx, env, args[1:])
	case "update":
		return UpdateRawContactCommand(ctx, env, args[1:])
	case "delete", "rm":
		return DeleteRawContactCommand(ctx, env, args[1:])
	}
	return fmt.Errorf("unknown contacts subcommand: %s", args[0])
}
