// ABOUTME: Top-level command table for the roster CLI
// ABOUTME: Maps command names to handlers and records which ones need the databases
package cli

import (
	"context"
	"fmt"
	"sort"
)

type command struct {
	run     func(ctx context.Context, env *Env, args []string) error
	summary string
	noDB    bool
}

var commands = map[string]command{
	"contacts":       {run: ContactsCommand, summary: "add, list, show, add-data, update, delete"},
	"join":           {run: JoinCommand, summary: "keep two contacts together"},
	"split":          {run: SplitCommand, summary: "keep every member of a contact apart"},
	"except":         {run: ExceptCommand, summary: "set an exception between two raw contacts"},
	"exceptions":     {run: ExceptionsCommand, summary: "list aggregation exceptions"},
	"suggest":        {run: SuggestCommand, summary: "contacts that may be the same person"},
	"accounts":       {run: AccountsCommand, summary: "list accounts"},
	"remove-account": {run: RemoveAccountCommand, summary: "delete an account and its raw contacts"},
	"groups":         {run: GroupsCommand, summary: "list the groups of an account"},
	"photos":         {run: PhotosCommand, summary: "set, get, cleanup"},
	"status":         {run: StatusCommand, summary: "provider status and counts"},
	"reaggregate":    {run: ReaggregateCommand, summary: "recompute every contact"},
	"locale":         {run: LocaleCommand, summary: "change the collation locale"},
	"directories":    {run: DirectoriesCommand, summary: "list or rescan directories"},
	"export":         {run: ExportCommand, summary: "write contacts as JSON"},
	"import":         {run: ImportCommand, summary: "load contacts from an export"},
	"sync":           {run: SyncCommand, summary: "init, google, status"},
	"viz":            {run: VizCommand, summary: "graph, dashboard"},
	"mcp":            {run: MCPCommand, summary: "run the MCP server on stdio"},
	"tui":            {run: TUICommand, summary: "browse and merge contacts interactively"},
	"config":         {run: ConfigCommand, summary: "show, init", noDB: true},
}

// NeedsDatabase reports whether name opens the provider before running.
// Unknown commands report false.
func NeedsDatabase(name string) bool {
	c, ok := commands[name]
	return ok && !c.noDB
}

// Known reports whether name is a command.
func Known(name string) bool {
	_, ok := commands[name]
	return ok
}

// Run dispatches to the named command.
func Run(ctx context.Context, env *Env, name string, args []string) error {
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	return c.run(ctx, env, args)
}

// Usage lists the commands, one per line.
func Usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for _, name := range names {
		out += fmt.Sprintf("  %-15s %s\n", name, commands[name].summary)
	}
	return out
}
