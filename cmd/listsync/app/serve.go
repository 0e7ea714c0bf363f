package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/listsync/listsync/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run reconciliation on a schedule and serve the status API",
		Long: `Start the reconciliation loop together with the status HTTP server.

The server requires a configuration file (--config) that specifies:
- the Airtable base, table and view holding the contacts
- the Mailchimp audience to keep in sync
- the run interval and all other operational settings

API keys are read from the files named in the configuration or from the
LISTSYNC_AIRTABLE_API_KEY and LISTSYNC_MAILCHIMP_API_KEY environment variables.
See the examples/ directory for a sample configuration.`,
		RunE: runServe,
	}

	addConfigFlag(cmd)
	cmd.Flags().String("address", "", "Address to listen on (overrides server.address)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		return fmt.Errorf("failed to bind address flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []app.AppOptions{app.WithConfig(cfg)}
	if address := viper.GetString("address"); address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	listsync, err := app.NewApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- listsync.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			slog.Error("Server failed", "error", err)
			if stopErr := listsync.Stop(defaultGracefulTimeout); stopErr != nil {
				slog.Error("Shutdown failed", "error", stopErr)
			}
			return err
		}
	}

	return listsync.Stop(defaultGracefulTimeout)
}
