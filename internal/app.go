// Package internal wires configuration, storage, routes and background jobs
// into a cartridge application.
package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/jobs"
)

// Application wraps cartridge.Application with folio's database manager and
// retention scheduler.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Jobs      *jobs.Jobs
	Logger    *slog.Logger
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, MountAppRoutes)
}

// NewAppWithRoutes creates a new application with custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	jobsManager, err := jobs.NewJobs(dbManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		ServerConfig:      ServerConfig(),
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{jobsManager},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Jobs:        jobsManager,
		Logger:      logger,
	}, nil
}

// ServerConfig returns cartridge's server defaults without static asset
// serving, since every route answers JSON.
func ServerConfig() *cartridge.ServerConfig {
	cfg := cartridge.DefaultServerConfig()
	cfg.EnableStaticAssets = false
	cfg.EnableTemplates = false
	return cfg
}
