package migration

import (
	"context"

	"immunetrial/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations. The DDL sticks to
// portable types so the same statements run on SQLite and Postgres.
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

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSubjectsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create subjects table")
	}

	if err := r.createSamplesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create samples table")
	}

	if err := r.createCellCountsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create cell_counts table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createSubjectsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subjects (
			subject_id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			condition TEXT NOT NULL,
			age INTEGER,
			sex TEXT,
			treatment TEXT NOT NULL,
			response TEXT
		)
	`)
	return err
}

func (r *MigrationRunner) createSamplesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS samples (
			sample_id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL REFERENCES subjects(subject_id) ON DELETE CASCADE,
			sample_type TEXT NOT NULL,
			time_from_treatment_start INTEGER NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createCellCountsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cell_counts (
			sample_id TEXT NOT NULL REFERENCES samples(sample_id) ON DELETE CASCADE,
			population TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (sample_id, population)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_subjects_project ON subjects(project)`,
		`CREATE INDEX IF NOT EXISTS idx_subjects_treatment ON subjects(treatment)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_subject ON samples(subject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_type_time ON samples(sample_type, time_from_treatment_start)`,
		`CREATE INDEX IF NOT EXISTS idx_cell_counts_population ON cell_counts(population)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
