// ABOUTME: Aggregation CLI commands
// ABOUTME: Joins and splits contacts, manages exceptions and shows merge suggestions
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// JoinCommand keeps every member of two contacts together.
func JoinCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("join")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: roster join <contact-id> <contact-id>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	c1, err := parseID("contact id", fs.Arg(0))
	if err != nil {
		return err
	}
	c2, err := parseID("contact id", fs.Arg(1))
	if err != nil {
		return err
	}

	id, err := env.Provider.JoinContacts(ctx, provider.CallOptions{Profile: *profile}, c1, c2)
	if err != nil {
		return fmt.Errorf("failed to join contacts: %w", err)
	}
	env.printf("%s Contacts %d and %d joined as contact %d\n", okStyle.Render("✓"), c1, c2, id)
	return nil
}

// SplitCommand keeps every member of a contact apart.
func SplitCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("split")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster split <contact-id>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	id, err := parseID("contact id", fs.Arg(0))
	if err != nil {
		return err
	}

	ids, err := env.Provider.SplitContact(ctx, provider.CallOptions{Profile: *profile}, id)
	if err != nil {
		return fmt.Errorf("failed to split contact: %w", err)
	}
	parts := make([]string, len(ids))
	for i, c := range ids {
		parts[i] = fmt.Sprint(c)
	}
	env.printf("%s Contact %d split into %s\n", okStyle.Render("✓"), id, strings.Join(parts, ", "))
	return nil
}

// ExceptCommand sets an aggregation exception between two raw contacts.
func ExceptCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("except")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return fmt.Errorf("usage: roster except <keep_together|keep_separate|automatic> <raw-contact-id> <raw-contact-id>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	typ, ok := models.ParseExceptionType(fs.Arg(0))
	if !ok {
		return models.ValidationErrorf("unknown exception type %q", fs.Arg(0))
	}
	r1, err := parseID("raw contact id", fs.Arg(1))
	if err != nil {
		return err
	}
	r2, err := parseID("raw contact id", fs.Arg(2))
	if err != nil {
		return err
	}

	opts := provider.CallOptions{Profile: *profile}
	if err := env.Provider.SetAggregationException(ctx, opts, typ, r1, r2); err != nil {
		return fmt.Errorf("failed to set exception: %w", err)
	}
	a, errA := env.Provider.RawContact(ctx, opts, r1)
	b, errB := env.Provider.RawContact(ctx, opts, r2)
	if errA != nil || errB != nil {
		env.printf("%s %s set for %d and %d\n", okStyle.Render("✓"), typ, r1, r2)
		return nil
	}
	state := "apart"
	if a.ContactID == b.ContactID {
		state = "together"
	}
	env.printf("%s %s set; raw contacts %d and %d are now %s (contacts %d, %d)\n",
		okStyle.Render("✓"), typ, r1, r2, state, a.ContactID, b.ContactID)
	return nil
}

// ExceptionsCommand lists stored aggregation exceptions.
func ExceptionsCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("exceptions")
	typeFilter := fs.String("type", "", "Only show keep_together or keep_separate")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	var want models.ExceptionType
	if *typeFilter != "" {
		t, ok := models.ParseExceptionType(*typeFilter)
		if !ok {
			return models.ValidationErrorf("unknown exception type %q", *typeFilter)
		}
		want = t
	}

	list, err := env.Provider.ListAggregationExceptions(ctx, provider.CallOptions{Profile: *profile})
	if err != nil {
		return fmt.Errorf("failed to list exceptions: %w", err)
	}
	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tRAW 1\tRAW 2")
	shown := 0
	for _, e := range list {
		if *typeFilter != "" && e.Type != want {
			continue
		}
		shown++
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", e.ID, e.Type, e.RawContactID1, e.RawContactID2)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	env.printf("\n%d exception(s)\n", shown)
	return nil
}

// SuggestCommand lists contacts that may be the same person as the given one.
func SuggestCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("suggest")
	limit := fs.Int("limit", 0, "Maximum suggestions (default from config)")
	names := fs.StringSlice("name", nil, "Match these names instead of the contact's own")
	emails := fs.StringSlice("email", nil, "Match these emails instead of the contact's own")
	phones := fs.StringSlice("phone", nil, "Match these phones instead of the contact's own")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster suggest <contact-id>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	id, err := parseID("contact id", fs.Arg(0))
	if err != nil {
		return err
	}

	list, err := env.Provider.Suggestions(ctx, provider.CallOptions{Profile: *profile}, id, *limit, aggregation.SuggestionFilter{
		Names:  *names,
		Emails: *emails,
		Phones: *phones,
	})
	if err != nil {
		return fmt.Errorf("failed to compute suggestions: %w", err)
	}
	if len(list) == 0 {
		env.printf("No suggestions for contact %d\n", id)
		return nil
	}
	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "CONTACT\tNAME\tSCORE\tSIGNALS")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", s.ContactID, s.DisplayName, s.Score, strings.Join(s.Signals, ","))
	}
	return w.Flush()
}
