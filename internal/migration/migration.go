package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"eraeval/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every step is
// idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createReportsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create evaluation_reports table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	return nil
}

func (r *MigrationRunner) createReportsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evaluation_reports (
			id UUID PRIMARY KEY,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			input_hash VARCHAR(64) NOT NULL,
			fast_mode BOOLEAN NOT NULL DEFAULT false,
			column_count INTEGER NOT NULL DEFAULT 0,
			settings JSONB NOT NULL,
			metrics JSONB NOT NULL,
			diagnostics JSONB NOT NULL DEFAULT '[]'::jsonb
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_evaluation_reports_created_at ON evaluation_reports(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_evaluation_reports_input_hash ON evaluation_reports(input_hash);
	`)
	return err
}
