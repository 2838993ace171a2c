// Package cmd defines and implements the CLI commands for the dirgather executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/dirgather/internal/app"
	"github.com/JakeFAU/dirgather/internal/config"
)

// runGather is the application entry point used by the gather command. It is
// a variable so tests can replace it.
var runGather = func(ctx context.Context, cfg config.Config) (bool, error) {
	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return false, fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close(context.WithoutCancel(ctx))
	return a.Run(ctx)
}

// newRootCmd creates and configures the root command around v.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "dirgather",
		Short: "Gathers directory, share and DNS data into a storage backend.",
		Long: `dirgather drives a gathering run: directory enumeration, data host and
share enumeration, optional share content enumeration and edge computation,
with combined progress reporting for all phases.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.AddCommand(newGatherCmd(v, &cfgFile))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(config.New()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
