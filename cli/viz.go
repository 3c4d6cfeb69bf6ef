// ABOUTME: Visualization CLI commands
// ABOUTME: Renders the membership graph as DOT and prints the terminal dashboard
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/viz"
)

// VizGraphCommand renders raw contact membership, for one contact or all.
func VizGraphCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("viz graph")
	output := fs.StringP("output", "o", "", "Output file (default: stdout)")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	var contactID *int64
	if fs.NArg() > 0 {
		id, err := parseID("contact id", fs.Arg(0))
		if err != nil {
			return err
		}
		contactID = &id
	}

	generator := viz.NewGraphGenerator(env.Provider, provider.CallOptions{Profile: *profile})
	graph, err := generator.GenerateMembershipGraph(ctx, contactID)
	if err != nil {
		return err
	}

	if *output != "" {
		if err := atomic.WriteFile(*output, strings.NewReader(graph.DOT)); err != nil {
			return fmt.Errorf("failed to write graph: %w", err)
		}
		env.printf("%s Wrote graph with %d nodes and %d edges to %s\n", okStyle.Render("✓"), graph.Nodes, graph.Edges, *output)
		return nil
	}
	env.printf("%s\n", graph.DOT)
	return nil
}

// VizDashboardCommand prints aggregation statistics.
func VizDashboardCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("viz dashboard")
	profile := fs.Bool("profile", false, "Use the profile database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}
	stats, err := viz.GenerateDashboardStats(ctx, env.Provider, provider.CallOptions{Profile: *profile})
	if err != nil {
		return err
	}
	env.printf("%s", viz.RenderDashboard(stats))
	return nil
}

// VizCommand routes the viz subcommands.
func VizCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return VizDashboardCommand(ctx, env, args)
	}
	switch args[0] {
	case "graph":
		return VizGraphCommand(ctx, env, args[1:])
	case "dashboard":
		return VizDashboardCommand(ctx, env, args[1:])
	}
	return fmt.Errorf("unknown viz subcommand: %s", args[0])
}
