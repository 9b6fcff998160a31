package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"eraeval/adapters/api"
	"eraeval/adapters/postgres"
	"eraeval/domain/evaluation"
	"eraeval/internal"
	"eraeval/internal/config"
	"eraeval/internal/errors"
	"eraeval/internal/evaluator"
	"eraeval/internal/migration"
	"eraeval/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure; nil when no database is configured
	DB *sqlx.DB

	// Reports is nil until InitWithDatabase succeeds
	Reports ports.ReportRepository
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("config cannot be nil")
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	return &Container{Config: cfg, Logger: logger}, nil
}

// Connect opens the configured database and initializes storage. It is a
// no-op when DATABASE_URL is empty.
func (c *Container) Connect(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		c.Logger.Named("Container").Info("no database configured, reports will not be stored")
		return nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	if err != nil {
		return errors.DatabaseError("failed to connect to database", err)
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return err
	}
	return nil
}

// InitWithDatabase runs the migrations and wires the report repository
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.DatabaseError("database connection test failed", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return err
	}

	c.DB = db
	c.Reports = postgres.NewReportRepository(db)
	c.Logger.Named("Container").Info("report storage initialized")
	return nil
}

// Evaluator builds an evaluator from the configured settings with optional
// overrides applied by the caller
func (c *Container) Evaluator(override func(*evaluation.Settings)) (*evaluator.Evaluator, error) {
	settings := c.Config.Evaluation.Settings()
	if override != nil {
		override(&settings)
	}
	return evaluator.New(evaluator.Options{
		Settings: settings,
		Workers:  c.Config.Evaluation.Workers,
		Logger:   c.Logger,
	})
}

// Server builds the HTTP server over the container's dependencies
func (c *Container) Server() *api.Server {
	return api.NewServer(c.Config, c.Reports, c.Logger)
}

// Shutdown releases the database connection
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
