// ABOUTME: Configuration CLI commands
// ABOUTME: Shows the effective configuration and writes a starter config file
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/harperreed/roster/config"
)

// ConfigShowCommand prints the effective configuration and where it came from.
func ConfigShowCommand(_ context.Context, env *Env, args []string) error {
	fs := newFlagSet("config show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := json.MarshalIndent(env.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	env.printf("%s\n", data)

	env.printf("\n%s\n", headerStyle.Render("Sources"))
	for _, src := range []struct{ label, path string }{
		{"global", env.Sources.Global},
		{"explicit", env.Sources.Explicit},
		{".env", env.Sources.DotEnv},
	} {
		path := src.path
		if path == "" {
			path = dimStyle.Render("(none)")
		}
		env.printf("  %-9s %s\n", src.label+":", path)
	}
	return nil
}

// ConfigInitCommand writes the effective configuration to a file.
func ConfigInitCommand(_ context.Context, env *Env, args []string) error {
	fs := newFlagSet("config init")
	path := fs.String("path", "", "Where to write the config (default: the global config path)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := *path
	if target == "" {
		target = config.GlobalPath()
	}
	if _, err := os.Stat(target); err == nil && !*force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", target)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Save(target, env.Config); err != nil {
		return err
	}
	env.printf("%s Wrote %s\n", okStyle.Render("✓"), target)
	return nil
}

// ConfigCommand routes the config subcommands.
func ConfigCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return ConfigShowCommand(ctx, env, args)
	}
	switch args[0] {
	case "show":
		return ConfigShowCommand(ctx, env, args[1:])
	case "init":
		return ConfigInitCommand(ctx, env, args[1:])
	}
	return fmt.Errorf("unknown config subcommand: %s", args[0])
}
