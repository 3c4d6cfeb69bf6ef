// ABOUTME: MCP server command
// ABOUTME: Serves the roster tools, resources and prompts over stdio
package cli

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/roster/handlers"
	"github.com/harperreed/roster/logctx"
)

// MCPCommand runs the MCP server until stdin closes or ctx is cancelled.
func MCPCommand(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireProvider(); err != nil {
		return err
	}

	server := handlers.NewServer(env.Provider, env.Version)
	logger := logctx.FromContext(ctx)
	logger.Info().Str("version", env.Version).Msg("starting MCP server on stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
