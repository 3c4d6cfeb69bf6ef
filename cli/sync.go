// ABOUTME: Google sync CLI commands
// ABOUTME: Handles OAuth setup and one-way contact download into a Google account
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/sync"
)

// SyncInitCommand runs the OAuth flow and stores the token.
func SyncInitCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("sync init")
	addr := fs.String("listen", "localhost:8080", "Address of the OAuth callback server")
	noBrowser := fs.Bool("no-browser", false, "Print the URL instead of opening a browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	config, err := sync.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get OAuth config: %w", err)
	}
	config.RedirectURL = "http://" + *addr + "/oauth/callback"
	state := uuid.NewString()

	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errChan <- fmt.Errorf("OAuth state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errChan <- fmt.Errorf("no authorization code received")
			return
		}
		token, err := config.Exchange(ctx, code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}
		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.WithoutCancel(ctx)) }()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	env.printf("Opening browser for Google OAuth...\n")
	env.printf("\nIf the browser doesn't open, visit this URL:\n%s\n\n", authURL)
	if !*noBrowser {
		_ = openBrowser(authURL)
	}

	select {
	case token := <-callbackChan:
		if err := sync.SaveToken(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		env.printf("%s Authenticated successfully\n", okStyle.Render("✓"))
		env.printf("%s Token saved to %s\n\n", okStyle.Render("✓"), sync.TokenPath())
		env.printf("Ready to sync! Run 'roster sync google --account you@gmail.com'.\n")
		return nil
	case err := <-errChan:
		return fmt.Errorf("OAuth flow failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncGoogleCommand downloads Google contacts into the account's raw contacts.
func SyncGoogleCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("sync google")
	account := fs.String("account", env.Config.GoogleAccountName, "Google account name the contacts belong to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("--account is required (or set google_account_name in the config)")
	}

	token, err := sync.LoadToken()
	if err != nil {
		return fmt.Errorf("no authentication token found. Run 'roster sync init' first: %w", err)
	}
	source, err := sync.NewPeopleClient(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to create People client: %w", err)
	}

	adapter := sync.NewAdapter(env.Provider, source, *account)
	env.printf("Syncing Google contacts for %s...\n", *account)
	res, err := adapter.Sync(ctx)
	if err != nil {
		return fmt.Errorf("google sync failed: %w", err)
	}

	kind := "incremental"
	if res.Full {
		kind = "full"
	}
	env.printf("%s %s sync: %d fetched, %d inserted, %d updated, %d deleted, %d unchanged\n",
		okStyle.Render("✓"), kind, res.Fetched, res.Inserted, res.Updated, res.Deleted, res.Unchanged)
	return nil
}

// SyncStatusCommand prints the recent sync history of a Google account.
func SyncStatusCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("sync status")
	account := fs.String("account", env.Config.GoogleAccountName, "Google account name")
	limit := fs.Int("limit", 10, "Number of runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("--account is required (or set google_account_name in the config)")
	}

	acct := models.Account{Name: *account, Type: sync.AccountType}
	runs, err := env.Provider.SyncRuns(ctx, provider.CallOptions{}, acct, *limit)
	if err != nil {
		return fmt.Errorf("failed to load sync history: %w", err)
	}
	if len(runs) == 0 {
		env.printf("%s has never been synced\n", accountLabel(acct))
		return nil
	}
	w := newTable(env.out())
	_, _ = fmt.Fprintln(w, "STARTED\tKIND\tSTATUS\tFETCHED\tINSERTED\tUPDATED\tDELETED\tERROR")
	for _, r := range runs {
		kind := "incremental"
		if r.Full {
			kind = "full"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), kind, r.Status, r.Fetched, r.Inserted, r.Updated, r.Deleted, r.Error)
	}
	return w.Flush()
}

// SyncCommand routes the sync subcommands.
func SyncCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("sync requires a subcommand: init, google, status")
	}
	switch args[0] {
	case "init":
		return SyncInitCommand(ctx, env, args[1:])
	case "google":
		return SyncGoogleCommand(ctx, env, args[1:])
	case "status":
		return SyncStatusCommand(ctx, env, args[1:])
	}
	return fmt.Errorf("unknown sync subcommand: %s", args[0])
}

// openBrowser attempts to open url in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}
	return exec.Command(cmd, args...).Start()
}
