// ABOUTME: Entry point for the roster contacts engine CLI and MCP server
// ABOUTME: Loads configuration, opens the provider and routes to a command
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/harperreed/roster/cli"
	"github.com/harperreed/roster/config"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/provider"
)

const version = "0.2.0"

func main() {
	flag.CommandLine.SetInterspersed(false)
	flag.Usage = printUsage
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: $XDG_CONFIG_HOME/roster/config.json)")
	envFile := flag.String("env-file", ".env", "Dotenv file with ROSTER_* overrides")
	dataDir := flag.String("data-dir", "", "Directory holding the databases and photos")
	locale := flag.String("locale", "", "Collation locale, e.g. en-US")
	debug := flag.Bool("debug", false, "Enable debug logging")
	humanLogs := flag.Bool("human-logs", false, "Force human-readable logs")
	flag.Parse()

	if *showVersion {
		fmt.Printf("roster version %s\n", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 || args[0] == "help" {
		printUsage()
		return
	}
	name := args[0]
	if !cli.Known(name) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(2)
	}

	cfg, sources, err := config.Load(*configPath, *envFile)
	if err != nil {
		fatal(err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *locale != "" {
		cfg.Locale = *locale
	}
	cfg.Debug = cfg.Debug || *debug
	cfg.HumanLogs = cfg.HumanLogs || *humanLogs
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger := logctx.NewConfiguredLogger(cfg.Debug, cfg.HumanLogs)
	logctx.SetDefaultLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logctx.WithLogger(ctx, logger)

	env := &cli.Env{
		Config:     cfg,
		Sources:    sources,
		ConfigPath: *configPath,
		Out:        os.Stdout,
		Version:    version,
	}

	if cli.NeedsDatabase(name) {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			fatal(fmt.Errorf("failed to create data directory: %w", err))
		}
		p, err := provider.Open(ctx, cfg.ProviderOptions())
		if err != nil {
			fatal(fmt.Errorf("failed to open contacts database: %w", err))
		}
		env.Provider = p
		logger.Debug().Str("contacts", cfg.ContactsPath()).Str("profile", cfg.ProfilePath()).Msg("provider opened")
	}

	runErr := cli.Run(ctx, env, name, args[1:])
	if env.Provider != nil {
		if err := env.Provider.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close provider")
		}
	}
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			return
		}
		fatal(runErr)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Printf(`roster - on-device contacts aggregation engine

Usage:
  roster [global flags] <command> [args]

Commands:
%s
Global flags:
%s
Examples:
  roster contacts add --name "Ada Lovelace" --email ada@example.com
  roster contacts add --name "Ada Lovelace" --account com.google:me@gmail.com --phone "+44 20 7946 0000"
  roster contacts list -q ada
  roster suggest 1
  roster join 1 2
  roster except keep_separate 3 4
  roster viz graph -o roster.dot
  roster sync init && roster sync google --account me@gmail.com
  roster mcp

Configuration is read from $XDG_CONFIG_HOME/roster/config.json (JSON with
comments), then --config, then .env and ROSTER_* environment variables.
`, cli.Usage(), flag.CommandLine.FlagUsages())
}
