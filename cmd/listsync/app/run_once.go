package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/listsync/listsync/internal/app"
)

func newRunOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Perform a single reconciliation run and exit",
		Long: `Perform exactly one reconciliation run and exit. The exit status is non-zero
when the run fails, so the command can be driven by cron or a Kubernetes CronJob.
The run status is persisted exactly as in serve mode.`,
		RunE: runOnce,
	}
	addConfigFlag(cmd)
	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	listsync, err := app.NewApp(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer func() {
		_ = listsync.Close(context.WithoutCancel(ctx))
	}()

	if err := listsync.RunOnce(ctx); err != nil {
		return fmt.Errorf("reconciliation run failed: %w", err)
	}
	return nil
}
