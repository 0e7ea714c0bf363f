package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/listsync/listsync/internal/api"
	"github.com/listsync/listsync/internal/auth"
	"github.com/listsync/listsync/internal/config"
	"github.com/listsync/listsync/internal/httpclient"
	"github.com/listsync/listsync/internal/mailchimp"
	"github.com/listsync/listsync/internal/records"
	"github.com/listsync/listsync/internal/service"
	"github.com/listsync/listsync/internal/status"
	pkgsync "github.com/listsync/listsync/internal/sync"
	"github.com/listsync/listsync/internal/sync/coordinator"
	"github.com/listsync/listsync/internal/sync/state"
	"github.com/listsync/listsync/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// rate limiter burst for both remote APIs
	defaultBurst = 1
)

// AppOptions is a function that configures the app builder
//
//nolint:revive // This name is fine
type AppOptions func(*appConfig) error

// appConfig collects everything needed to build an App.
// It supports dependency injection for testing while providing sensible defaults for production
type appConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	store       records.Store
	provider    mailchimp.Provider
	syncManager pkgsync.Manager
	telemetry   *telemetry.Telemetry
	stateSvc    state.SyncStateService

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	dataDir string

	// authMiddleware guards everything outside auth.DefaultPublicPaths
	authMiddleware func(http.Handler) http.Handler
}

func baseConfig(opts ...AppOptions) (*appConfig, error) {
	cfg := &appConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetServerAddress()
	}
	if cfg.dataDir == "" {
		cfg.dataDir = cfg.config.GetDataDir()
	}

	return cfg, nil
}

// NewApp wires the record store, list provider, pipeline, coordinator and
// status server described by the configuration
func NewApp(ctx context.Context, opts ...AppOptions) (*App, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx,
			telemetry.WithTelemetryConfig(cfg.config.Telemetry),
			telemetry.WithSyncName(cfg.config.Name),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// Telemetry is flushed by App.Stop once construction succeeds
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = cfg.telemetry.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	syncCoordinator, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if cfg.authMiddleware == nil {
		cfg.authMiddleware, err = auth.NewAuthMiddleware(cfg.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", err)
		}
	}

	syncService := service.New(cfg.config.GetName(), cfg.statusService(), syncCoordinator)

	httpServer, err := buildHTTPServer(ctx, cfg, syncService)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &App{
		config: cfg.config,
		components: &AppComponents{
			SyncCoordinator: syncCoordinator,
			SyncManager:     cfg.syncManager,
			SyncService:     syncService,
		},
		httpServer: httpServer,
		telemetry:  cfg.telemetry,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) AppOptions {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) AppOptions {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host := parts[0]
		port := parts[1]

		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) AppOptions {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithDataDirectory sets the directory run status is persisted under
func WithDataDirectory(dir string) AppOptions {
	return func(cfg *appConfig) error {
		cfg.dataDir = dir
		return nil
	}
}

// WithAuthMiddleware overrides the middleware built from the auth configuration
func WithAuthMiddleware(mw func(http.Handler) http.Handler) AppOptions {
	return func(cfg *appConfig) error {
		cfg.authMiddleware = mw
		return nil
	}
}

// WithStore allows injecting a record store (for testing)
func WithStore(s records.Store) AppOptions {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithProvider allows injecting a list provider (for testing)
func WithProvider(p mailchimp.Provider) AppOptions {
	return func(cfg *appConfig) error {
		cfg.provider = p
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) AppOptions {
	return func(cfg *appConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithTelemetry sets already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) AppOptions {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// statusService returns the state service shared by the coordinator and the API
func (b *appConfig) statusService() state.SyncStateService {
	if b.stateSvc == nil {
		b.stateSvc = state.NewFileStateService(status.NewFileStatusPersistence(b.dataDir))
	}
	return b.stateSvc
}

// buildSyncComponents builds the record store, list provider, sync manager and coordinator
func buildSyncComponents(_ context.Context, b *appConfig) (coordinator.Coordinator, error) {
	slog.Info("Initializing sync components")

	if b.syncManager == nil {
		if b.store == nil {
			store, err := buildRecordStore(b.config)
			if err != nil {
				return nil, err
			}
			b.store = store
		}

		if b.provider == nil {
			provider, err := buildListProvider(b.config)
			if err != nil {
				return nil, err
			}
			b.provider = provider
		}

		b.syncManager = pkgsync.NewManager(b.store, b.provider, pkgsync.Config{
			Name:                 b.config.GetName(),
			ListID:               b.config.ListProvider.ListID,
			View:                 b.config.RecordStore.GetView(),
			Fields:               fieldMap(b.config.RecordStore.GetFields()),
			EmptyAddressPolicy:   pkgsync.EmptyAddressPolicy(b.config.GetEmptyAddressPolicy()),
			WriteBackConcurrency: b.config.GetWriteBackConcurrency(),
		}, pkgsync.WithTracerProvider(b.telemetry.TracerProvider()))
	}

	var coordOpts []coordinator.Option

	syncMetrics, err := telemetry.NewSyncMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	if syncMetrics != nil {
		coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
	}

	syncCoordinator := coordinator.New(b.syncManager, b.statusService(), coordinator.Config{
		Name:       b.config.GetName(),
		Interval:   b.config.GetInterval(),
		Jitter:     b.config.GetJitter(),
		RunOnStart: b.config.RunOnStart(),
	}, coordOpts...)

	slog.Info("Sync components initialized successfully",
		"sync", b.config.GetName(),
		"data_dir", b.dataDir,
	)
	return syncCoordinator, nil
}

func buildRecordStore(cfg *config.Config) (records.Store, error) {
	rs := &cfg.RecordStore
	apiKey, err := rs.GetAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load record store API key: %w", err)
	}

	client := httpclient.New(
		httpclient.WithBearerToken(apiKey),
		httpclient.WithRateLimit(rs.GetRequestsPerSecond(), defaultBurst),
	)

	return records.NewAirtableStore(records.AirtableConfig{
		Endpoint: rs.GetEndpoint(),
		BaseID:   rs.BaseID,
		Table:    rs.GetTable(),
		PageSize: rs.GetPageSize(),
		Fields:   fieldMap(rs.GetFields()),
	}, client), nil
}

func buildListProvider(cfg *config.Config) (mailchimp.Provider, error) {
	lp := &cfg.ListProvider
	apiKey, err := lp.GetAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load list provider API key: %w", err)
	}

	endpoint, err := lp.GetEndpoint(apiKey)
	if err != nil {
		return nil, err
	}

	// Any username is accepted; the key is the password
	client := httpclient.New(
		httpclient.WithBasicAuth("listsync", apiKey),
		httpclient.WithRateLimit(lp.GetRequestsPerSecond(), defaultBurst),
	)

	return mailchimp.NewClient(mailchimp.ClientConfig{
		Endpoint:     endpoint,
		PollInterval: lp.GetPollInterval(),
		BatchTimeout: lp.GetBatchTimeout(),
	}, client), nil
}

func fieldMap(f config.FieldsConfig) records.FieldMap {
	return records.FieldMap{
		Email:                 f.Email,
		FirstName:             f.FirstName,
		LastName:              f.LastName,
		InMailingList:         f.InMailingList,
		PreviousEmail:         f.PreviousEmail,
		PreviousInMailingList: f.PreviousInMailingList,
		PreviousFirstName:     f.PreviousFirstName,
		PreviousLastName:      f.PreviousLastName,
	}
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *appConfig,
	svc service.SyncService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	var serverOpts []api.ServerOption
	if b.telemetry != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		}
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.telemetry.MetricsHandler()))
	}
	middlewares := slices.Clone(b.middlewares)
	if b.authMiddleware != nil {
		middlewares = append(middlewares, auth.WrapWithPublicPaths(b.authMiddleware, auth.DefaultPublicPaths))
	}
	serverOpts = append(serverOpts, api.WithMiddlewares(middlewares...))

	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
