// ABOUTME: Account CLI commands
// ABOUTME: Lists accounts and their groups and removes an account with all its data
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/roster/provider"
)

// AccountsCommand lists known accounts with their raw contact counts.
func AccountsCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("accounts")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	opts := provider.CallOptions{Profile: *profile}
	accounts, err := env.Provider.ListAccounts(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "ID\tACCOUNT\tRAW CONTACTS")
	for _, a := range accounts {
		raws, err := env.Provider.RawContactsByAccount(ctx, opts, a.Account)
		if err != nil {
			return fmt.Errorf("failed to count raw contacts: %w", err)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\n", a.ID, accountLabel(a.Account), len(raws))
	}
	return w.Flush()
}

// RemoveAccountCommand deletes an account and everything it owns.
func RemoveAccountCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("remove-account")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: roster remove-account <type:name> --yes")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	acct, err := parseAccount(fs.Arg(0))
	if err != nil {
		return err
	}
	if acct.IsLocal() {
		return fmt.Errorf("the local account cannot be removed")
	}
	if !*yes {
		return fmt.Errorf("removing %s deletes all of its raw contacts; pass --yes to confirm", accountLabel(acct))
	}

	n, err := env.Provider.RemoveAccount(ctx, acct)
	if err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	env.printf("%s Removed %s (%d raw contact(s))\n", okStyle.Render("✓"), accountLabel(acct), n)
	return nil
}

// GroupsCommand lists the groups of one account.
func GroupsCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("groups")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: roster groups [type:name]")
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	acct, err := parseAccount(fs.Arg(0))
	if err != nil {
		return err
	}

	groups, err := env.Provider.ListGroups(ctx, provider.CallOptions{Profile: *profile}, acct)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	if len(groups) == 0 {
		env.printf("No groups for %s\n", accountLabel(acct))
		return nil
	}
	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tSOURCE ID")
	for _, g := range groups {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", g.ID, g.Title, g.SourceID)
	}
	return w.Flush()
}
