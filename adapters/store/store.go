package store

import (
	"context"
	"fmt"

	"immunetrial/domain/trial"
	"immunetrial/internal/errors"
	"immunetrial/internal/migration"
	"immunetrial/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// TrialStore is a relational store for trial data backed by sqlx. It runs on
// SQLite for local single-file analysis and on Postgres when DATABASE_URL is
// set; queries are written with ? placeholders and rebound per driver.
type TrialStore struct {
	db *sqlx.DB
}

var _ ports.TrialStore = (*TrialStore)(nil)

// Open connects to the configured database and applies migrations
func Open(ctx context.Context, driver, dsn string) (*TrialStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s store", driver)
	}
	if driver == "sqlite" {
		// single writer keeps modernc happy under concurrent use
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to enable foreign keys")
		}
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &TrialStore{db: db}, nil
}

// NewTrialStore wraps an existing connection without running migrations
func NewTrialStore(db *sqlx.DB) *TrialStore {
	return &TrialStore{db: db}
}

// Close releases the underlying connection pool
func (s *TrialStore) Close() error {
	return s.db.Close()
}

// ReplaceDataset atomically replaces the stored trial with the snapshot
func (s *TrialStore) ReplaceDataset(ctx context.Context, ds *trial.Dataset) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, table := range []string{"cell_counts", "samples", "subjects"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "failed to clear %s", table)
		}
	}

	insertSubject := tx.Rebind(`INSERT INTO subjects
		(subject_id, project, condition, age, sex, treatment, response)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, sbj := range ds.Subjects() {
		var response *string
		if sbj.Response != nil {
			r := string(*sbj.Response)
			response = &r
		}
		if _, err := tx.ExecContext(ctx, insertSubject,
			sbj.ID, sbj.Project, sbj.Condition, sbj.Age, sbj.Sex, sbj.Treatment, response); err != nil {
			return errors.Wrapf(err, "failed to insert subject %s", sbj.ID)
		}
	}

	insertSample := tx.Rebind(`INSERT INTO samples
		(sample_id, subject_id, sample_type, time_from_treatment_start)
		VALUES (?, ?, ?, ?)`)
	for _, smp := range ds.Samples() {
		if _, err := tx.ExecContext(ctx, insertSample,
			smp.ID, smp.SubjectID, smp.SampleType, smp.TimeFromTreatmentStart); err != nil {
			return errors.Wrapf(err, "failed to insert sample %s", smp.ID)
		}
	}

	insertCount := tx.Rebind(`INSERT INTO cell_counts
		(sample_id, population, count)
		VALUES (?, ?, ?)`)
	for _, m := range ds.Measurements() {
		if _, err := tx.ExecContext(ctx, insertCount, m.SampleID, m.Population, m.Count); err != nil {
			return errors.Wrapf(err, "failed to insert counts for sample %s", m.SampleID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit dataset")
	}
	return nil
}

type subjectRow struct {
	SubjectID trial.SubjectID `db:"subject_id"`
	Project   string          `db:"project"`
	Condition string          `db:"condition"`
	Age       *int            `db:"age"`
	Sex       *string         `db:"sex"`
	Treatment string          `db:"treatment"`
	Response  *string         `db:"response"`
}

type sampleRow struct {
	SampleID               trial.SampleID  `db:"sample_id"`
	SubjectID              trial.SubjectID `db:"subject_id"`
	SampleType             string          `db:"sample_type"`
	TimeFromTreatmentStart int             `db:"time_from_treatment_start"`
}

type countRow struct {
	SampleID   trial.SampleID   `db:"sample_id"`
	Population trial.Population `db:"population"`
	Count      int              `db:"count"`
}

// LoadDataset reads the full stored trial back into an immutable snapshot
func (s *TrialStore) LoadDataset(ctx context.Context) (*trial.Dataset, error) {
	var subjectRows []subjectRow
	if err := s.db.SelectContext(ctx, &subjectRows,
		`SELECT subject_id, project, condition, age, sex, treatment, response
		 FROM subjects ORDER BY subject_id`); err != nil {
		return nil, errors.Wrap(err, "failed to load subjects")
	}

	var sampleRows []sampleRow
	if err := s.db.SelectContext(ctx, &sampleRows,
		`SELECT sample_id, subject_id, sample_type, time_from_treatment_start
		 FROM samples ORDER BY sample_id`); err != nil {
		return nil, errors.Wrap(err, "failed to load samples")
	}

	var countRows []countRow
	if err := s.db.SelectContext(ctx, &countRows,
		`SELECT sample_id, population, count
		 FROM cell_counts ORDER BY sample_id, population`); err != nil {
		return nil, errors.Wrap(err, "failed to load cell counts")
	}

	subjects := make([]trial.Subject, 0, len(subjectRows))
	for _, row := range subjectRows {
		sbj := trial.Subject{
			ID:        row.SubjectID,
			Project:   row.Project,
			Condition: row.Condition,
			Age:       row.Age,
			Sex:       row.Sex,
			Treatment: row.Treatment,
		}
		if row.Response != nil {
			r := trial.Response(*row.Response)
			sbj.Response = &r
		}
		subjects = append(subjects, sbj)
	}

	samples := make([]trial.Sample, 0, len(sampleRows))
	for _, row := range sampleRows {
		samples = append(samples, trial.Sample{
			ID:                     row.SampleID,
			SubjectID:              row.SubjectID,
			SampleType:             row.SampleType,
			TimeFromTreatmentStart: row.TimeFromTreatmentStart,
		})
	}

	measurements := make([]trial.Measurement, 0, len(countRows))
	for _, row := range countRows {
		measurements = append(measurements, trial.Measurement{
			SampleID:   row.SampleID,
			Population: row.Population,
			Count:      row.Count,
		})
	}

	return trial.NewDataset(subjects, samples, measurements)
}

// CheckIntegrity verifies stored row counts against the relational invariants
func (s *TrialStore) CheckIntegrity(ctx context.Context) (ports.IntegrityReport, error) {
	var report ports.IntegrityReport

	counts := map[string]*int{
		"subjects":    &report.SubjectCount,
		"samples":     &report.SampleCount,
		"cell_counts": &report.MeasurementCount,
	}
	for table, dst := range counts {
		if err := s.db.GetContext(ctx, dst, "SELECT COUNT(*) FROM "+table); err != nil {
			return report, errors.Wrapf(err, "failed to count %s", table)
		}
	}

	expected := report.SampleCount * len(trial.Populations())
	if report.MeasurementCount != expected {
		report.Violations = append(report.Violations, fmt.Sprintf(
			"expected %d cell_counts rows for %d samples, found %d",
			expected, report.SampleCount, report.MeasurementCount))
	}

	var orphanSamples int
	if err := s.db.GetContext(ctx, &orphanSamples,
		`SELECT COUNT(*) FROM samples s
		 LEFT JOIN subjects sb ON sb.subject_id = s.subject_id
		 WHERE sb.subject_id IS NULL`); err != nil {
		return report, errors.Wrap(err, "failed to check sample referential integrity")
	}
	if orphanSamples > 0 {
		report.Violations = append(report.Violations, fmt.Sprintf(
			"%d samples reference missing subjects", orphanSamples))
	}

	var orphanCounts int
	if err := s.db.GetContext(ctx, &orphanCounts,
		`SELECT COUNT(*) FROM cell_counts c
		 LEFT JOIN samples s ON s.sample_id = c.sample_id
		 WHERE s.sample_id IS NULL`); err != nil {
		return report, errors.Wrap(err, "failed to check count referential integrity")
	}
	if orphanCounts > 0 {
		report.Violations = append(report.Violations, fmt.Sprintf(
			"%d cell_counts rows reference missing samples", orphanCounts))
	}

	var unknownPops int
	if err := s.db.GetContext(ctx, &unknownPops,
		s.db.Rebind(`SELECT COUNT(*) FROM cell_counts WHERE population NOT IN (?, ?, ?, ?, ?)`),
		trial.PopBCell, trial.PopCD8TCell, trial.PopCD4TCell, trial.PopNKCell, trial.PopMonocyte); err != nil {
		return report, errors.Wrap(err, "failed to check population names")
	}
	if unknownPops > 0 {
		report.Violations = append(report.Violations, fmt.Sprintf(
			"%d cell_counts rows carry an unknown population", unknownPops))
	}

	return report, nil
}
