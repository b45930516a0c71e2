package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smartsched/internal/app"
	"smartsched/internal/mcpserver"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// mcpCmd implements 'smartsched mcp'.
func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the scheduler as MCP tools over stdio",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.SetContext(ctx)
			withApp(func(ctx context.Context, a *app.App, _ []string) error {
				srv := mcpserver.New(a.Engine(), a.Store(), a.Log(), version)
				if err := mcpserver.Serve(ctx, srv); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})(cmd, nil)
		},
	}
}
