package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"smartsched/internal/app"
	logx "smartsched/pkg/logx"
)

const shutdownTimeout = 30 * time.Second

// sweepCmd implements 'smartsched sweep'.
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the overdue sweep once, as the server would",
		Args:  cobra.NoArgs,
		Run: withApp(func(ctx context.Context, a *app.App, _ []string) error {
			rep := a.Sweep().RunNow(ctx)
			printOutput(formatter.FormatBatch(rep.Result))
			return reported(rep.Result.Err)
		}),
	}
}

// serveCmd implements 'smartsched serve'.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the overdue sweep on its schedule and hot-reload config",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Open(ctx, configPath)
			if err != nil {
				fail(err)
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Close()
				fail(err)
			}

			reason := "signal"
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = "supervisor exit"
			}
			a.Log().Info("shutting down", logx.String("reason", reason))

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Stop(stopCtx); err != nil {
				fail(err)
			}
			if err := a.Err(); err != nil {
				fail(err)
			}
		},
	}
}
