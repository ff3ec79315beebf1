// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/audit"
	"github.com/tildaslashalef/driftq/internal/backend"
	"github.com/tildaslashalef/driftq/internal/cache"
	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/database"
	"github.com/tildaslashalef/driftq/internal/events"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/netmon"
	"github.com/tildaslashalef/driftq/internal/queue"
	"github.com/tildaslashalef/driftq/internal/syncer"
)

// App represents the application instance with its dependencies
type App struct {
	Config   *config.Config
	Settings *config.SettingsService
	Bus      *events.Bus
	Cache    *cache.Store
	Queue    *queue.Service
	Backend  *backend.Client
	Syncer   *syncer.Service
	Monitor  *netmon.Monitor
	Audit    *audit.Service
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
	)

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app, err := initServices(cfg, db)
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "", false)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices wires the engine together: store and cache first, then the
// queue, then the replay path, connectivity last so its trigger finds a
// ready syncer.
func initServices(cfg *config.Config, db *sql.DB) (*App, error) {
	logger := loggy.GetGlobalLogger()
	ctx := context.Background()

	settingsService := config.NewSettingsService(db, cfg, logger)
	if err := settingsService.LoadRemoteSettings(ctx); err != nil {
		loggy.Warn("Failed to load remote settings from database", "error", err)
		// Continue anyway, using defaults
	}

	clientName, err := settingsService.ClientName(ctx)
	if err != nil {
		loggy.Warn("Failed to resolve client name", "error", err)
	}

	bus := events.NewBus(logger)
	cacheStore := cache.NewStore(logger)

	auditService := audit.NewService(audit.NewSQLRepository(db, logger), clientName, logger)

	queueStore := queue.NewSQLStore(db, cfg.Queue.Namespace, logger)
	queueService := queue.NewService(ctx, queueStore, cacheStore, bus, auditService, cfg.Queue, logger)

	backendClient := backend.NewClient(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout, logger)
	backendClient.SetSettingsRepository(settingsService.GetRepository())
	if clientName != "" {
		backendClient.SetClientID(clientName)
	}

	monitor := netmon.NewMonitor(backendClient, cfg.Connectivity, logger)

	syncService := syncer.NewService(
		queueService,
		cacheStore,
		backendClient,
		monitor,
		bus,
		auditService,
		cfg.Sync,
		logger,
	)

	// Reconnecting triggers exactly one run; going offline triggers nothing
	monitor.OnChange(func(online bool) {
		bus.Publish(events.TopicConnectivityChanged, online)
		if online {
			syncService.TriggerSync(context.Background())
		}
	})

	return &App{
		Config:   cfg,
		Settings: settingsService,
		Bus:      bus,
		Cache:    cacheStore,
		Queue:    queueService,
		Backend:  backendClient,
		Syncer:   syncService,
		Monitor:  monitor,
		Audit:    auditService,
	}, nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
