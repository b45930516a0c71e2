package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"smartsched/internal/app"
	"smartsched/internal/config"
	"smartsched/internal/output"
)

var (
	configPath string
	jsonOutput bool
	formatter  output.Formatter
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "smartsched",
		Short:   "Priority-aware task scheduler",
		Long:    "smartsched - places tasks into free working time around calendar events.",
		Version: version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			formatter = output.New(jsonOutput)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		scheduleCmd(),
		batchCmd(),
		overdueCmd(),
		suggestCmd(),
		conflictsCmd(),
		importCmd(),
		listCmd(),
		sweepCmd(),
		serveCmd(),
		mcpCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printOutput(s string) {
	os.Stdout.WriteString(s) //nolint:gosec // stdout write errors are unrecoverable
}

// withApp opens the app for one command and always closes it before a
// failing command exits.
func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := app.Open(ctx, configPath)
		if err != nil {
			fail(err)
		}
		err = fn(ctx, a, args)
		_ = a.Close()
		if err != nil {
			fail(err)
		}
	}
}

// reportedError marks a failure whose details were already printed as
// part of the command result.
type reportedError struct{ error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

func fail(err error) {
	var r reportedError
	if !errors.As(err, &r) {
		printOutput(formatter.FormatError(err))
	}
	os.Exit(1)
}
