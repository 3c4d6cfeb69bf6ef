// ABOUTME: Shared plumbing for the roster CLI commands
// ABOUTME: Holds the command environment, flag sets, table writers and output styles
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	flag "github.com/spf13/pflag"

	"github.com/harperreed/roster/config"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// Env is what every command runs against. Provider is nil for commands that
// do not touch the databases.
type Env struct {
	Provider   *provider.Provider
	Config     config.Config
	Sources    config.Sources
	ConfigPath string
	Out        io.Writer
	Version    string
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

func (e *Env) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(e.out(), format, args...)
}

func (e *Env) requireProvider() error {
	if e.Provider == nil {
		return fmt.Errorf("contacts database is not open")
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// parseID parses a positive row id.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ValidationErrorf("invalid %s %q", what, s)
	}
	return id, nil
}

// parseAccount reads "type:name" with an optional "/dataset" suffix on the
// type. An empty string is the local account.
func parseAccount(s string) (models.Account, error) {
	if s == "" {
		return models.Account{}, nil
	}
	typ, name, ok := strings.Cut(s, ":")
	if !ok || typ == "" || name == "" {
		return models.Account{}, models.ValidationErrorf("account must look like type:name, got %q", s)
	}
	acct := models.Account{Name: name, Type: typ}
	if t, ds, ok := strings.Cut(typ, "/"); ok {
		acct.Type, acct.DataSet = t, ds
	}
	return acct, nil
}

func accountLabel(a models.Account) string {
	if a.IsLocal() {
		return "(local)"
	}
	return a.TypeWithDataSet() + ":" + a.Name
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
