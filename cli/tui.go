// ABOUTME: Interactive terminal UI command
// ABOUTME: Opens the full-screen contact browser on the running provider
package cli

import (
	"context"

	"github.com/harperreed/roster/tui"
)

// TUICommand runs the full-screen interface until the user quits.
func TUICommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("tui")
	account := fs.String("account", env.Config.GoogleAccountName, "Google account shown in the sync view")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	return tui.Run(ctx, env.Provider, tui.Options{AccountName: *account})
}
