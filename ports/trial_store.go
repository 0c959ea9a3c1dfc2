package ports

import (
	"context"

	"immunetrial/domain/trial"
)

// TrialStore defines the interface for relational trial data storage
type TrialStore interface {
	// ReplaceDataset atomically replaces the stored trial with the snapshot
	ReplaceDataset(ctx context.Context, ds *trial.Dataset) error

	// LoadDataset reads the full stored trial back into an immutable snapshot
	LoadDataset(ctx context.Context) (*trial.Dataset, error)

	// CheckIntegrity verifies stored row counts against the relational
	// invariants (one subject per sample, five measurement rows per sample)
	CheckIntegrity(ctx context.Context) (IntegrityReport, error)

	// Close releases the underlying connection pool
	Close() error
}

// IntegrityReport summarizes the stored row counts and any violations found
type IntegrityReport struct {
	SubjectCount     int      `json:"subject_count"`
	SampleCount      int      `json:"sample_count"`
	MeasurementCount int      `json:"measurement_count"`
	Violations       []string `json:"violations,omitempty"`
}

// OK reports whether the store passed every integrity check
func (r IntegrityReport) OK() bool {
	return len(r.Violations) == 0
}
