package app

import (
	"context"

	"immunetrial/domain/trial"
	"immunetrial/internal"
	"immunetrial/internal/errors"
	"immunetrial/ports"
)

// LoadService ingests one tabular input into the relational store
type LoadService struct {
	store ports.TrialStore
	log   *internal.Logger
}

// NewLoadService creates a load service
func NewLoadService(store ports.TrialStore, logger *internal.Logger) *LoadService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &LoadService{store: store, log: logger}
}

// LoadResult summarizes one completed ingestion
type LoadResult struct {
	SubjectCount int                   `json:"subject_count"`
	SampleCount  int                   `json:"sample_count"`
	RowWarnings  []string              `json:"row_warnings,omitempty"`
	Integrity    ports.IntegrityReport `json:"integrity"`
}

// Load replaces the stored trial with the snapshot and verifies the result.
// Row warnings from the reader are logged and carried through; an integrity
// failure after the write is an error, not a warning.
func (s *LoadService) Load(ctx context.Context, ds *trial.Dataset, warnings []error) (*LoadResult, error) {
	for _, w := range warnings {
		s.log.Warn("input row excluded: %v", w)
	}

	if err := s.store.ReplaceDataset(ctx, ds); err != nil {
		return nil, err
	}

	integrity, err := s.store.CheckIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	if !integrity.OK() {
		for _, v := range integrity.Violations {
			s.log.Error("store integrity: %s", v)
		}
		return nil, errors.ValidationError("loaded trial failed integrity checks")
	}

	result := &LoadResult{
		SubjectCount: ds.SubjectCount(),
		SampleCount:  ds.SampleCount(),
		Integrity:    integrity,
	}
	for _, w := range warnings {
		result.RowWarnings = append(result.RowWarnings, w.Error())
	}

	s.log.Info("loaded trial: %d subjects, %d samples, %d rows excluded",
		result.SubjectCount, result.SampleCount, len(result.RowWarnings))
	return result, nil
}
