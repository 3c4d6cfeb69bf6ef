// ABOUTME: Maintenance CLI commands
// ABOUTME: Reports status, re-aggregates, changes the locale and rescans directories
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/viz"
)

// StatusCommand prints provider status and database counts.
func StatusCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	env.printf("%s\n", headerStyle.Render("roster "+env.Version))
	env.printf("  Status:   %s\n", env.Provider.Status())
	env.printf("  Contacts: %s\n", env.Config.ContactsPath())
	env.printf("  Profile:  %s\n", env.Config.ProfilePath())
	env.printf("  Photos:   %s\n", env.Config.PhotoPath())
	env.printf("  Locale:   %s\n", env.Config.Locale)

	for _, profile := range []bool{false, true} {
		stats, err := viz.GenerateDashboardStats(ctx, env.Provider, provider.CallOptions{Profile: profile})
		if err != nil {
			return fmt.Errorf("failed to count contacts: %w", err)
		}
		label := "contacts"
		if profile {
			label = "profile"
		}
		env.printf("  %-9s %d contact(s), %d raw contact(s)\n", label+":", stats.TotalContacts, stats.TotalRawContacts)
	}
	return nil
}

// ReaggregateCommand schedules a full re-aggregation and waits for it.
func ReaggregateCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("reaggregate")
	profile := fs.Bool("profile", false, "Re-aggregate the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	if err := env.Provider.ReaggregateAll(ctx, provider.CallOptions{Profile: *profile}); err != nil {
		return fmt.Errorf("failed to schedule re-aggregation: %w", err)
	}
	env.printf("Re-aggregating...\n")
	if err := env.Provider.WaitIdle(ctx); err != nil {
		return err
	}
	env.printf("%s Re-aggregation finished\n", okStyle.Render("✓"))
	return nil
}

// LocaleCommand switches the collation locale and waits for the rebuild.
func LocaleCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("locale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster locale <bcp47-tag>")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	if err := env.Provider.ChangeLocale(ctx, fs.Arg(0)); err != nil {
		return fmt.Errorf("failed to change locale: %w", err)
	}
	env.printf("Rebuilding sort keys and lookups for %s...\n", fs.Arg(0))
	if err := env.Provider.WaitIdle(ctx); err != nil {
		return err
	}
	env.printf("%s Locale is now %s\n", okStyle.Render("✓"), fs.Arg(0))
	return nil
}

// DirectoriesCommand lists directories, rescanning first when asked.
func DirectoriesCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("directories")
	rescan := fs.Bool("rescan", false, "Rescan packages before listing")
	pkg := fs.String("package", "", "Only rescan this package")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	if *rescan || *pkg != "" {
		res, err := env.Provider.RescanDirectories(ctx, *pkg)
		if err != nil {
			return fmt.Errorf("failed to rescan directories: %w", err)
		}
		env.printf("Rescanned: %d upserted, %d deleted\n\n", res.Upserted, res.Deleted)
	}

	dirs, err := env.Provider.ListDirectories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list directories: %w", err)
	}
	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPACKAGE\tAUTHORITY\tACCOUNT")
	for _, d := range dirs {
		acct := "-"
		if d.AccountType != "" {
			acct = d.AccountType + ":" + d.AccountName
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, d.PackageName, d.Authority, acct)
	}
	return w.Flush()
}
