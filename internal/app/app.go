// Package app provides application lifecycle management for listsync.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/listsync/listsync/internal/config"
	"github.com/listsync/listsync/internal/telemetry"
)

// App encapsulates all components needed to run listsync.
// It provides lifecycle management and graceful shutdown capabilities.
type App struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server
	telemetry  *telemetry.Telemetry

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the background coordinator and the HTTP server.
// This method blocks until the HTTP server stops or encounters an error.
func (app *App) Start() error {
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// RunOnce performs a single reconciliation run without starting the HTTP server
func (app *App) RunOnce(ctx context.Context) error {
	return app.components.SyncCoordinator.RunOnce(ctx)
}

// Stop gracefully stops the application with the given timeout.
// It stops the coordinator, waiting for an in-flight run, then shuts down the
// HTTP server and flushes telemetry.
func (app *App) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// Close releases the telemetry providers. It is safe to call on an app that was never started.
func (app *App) Close(ctx context.Context) error {
	if app.telemetry == nil {
		return nil
	}
	if err := app.telemetry.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry shutdown failed: %w", err)
	}
	return nil
}

// GetConfig returns the application configuration
func (app *App) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *App) GetHTTPServer() *http.Server {
	return app.httpServer
}
