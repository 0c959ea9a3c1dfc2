package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"immunetrial/adapters/stats/engine"
	domstats "immunetrial/domain/stats"
	"immunetrial/domain/trial"
	"immunetrial/internal"
	"immunetrial/internal/errors"
	"immunetrial/ports"
)

// AnalysisService orchestrates one full analysis: load the stored trial, run
// the statistical engine, and write the result artifacts to the output
// directory.
type AnalysisService struct {
	store  ports.TrialStore
	engine *engine.Engine
	outDir string
	log    *internal.Logger
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(store ports.TrialStore, eng *engine.Engine, outDir string, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AnalysisService{store: store, engine: eng, outDir: outDir, log: logger}
}

// Run loads the trial snapshot, verifies store integrity, executes the
// engine, and writes every CSV artifact. The report is returned for further
// presentation (workbook, markdown, HTTP).
func (s *AnalysisService) Run(ctx context.Context) (*domstats.AnalysisReport, error) {
	integrity, err := s.store.CheckIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	if !integrity.OK() {
		for _, v := range integrity.Violations {
			s.log.Error("store integrity: %s", v)
		}
		return nil, errors.ValidationError("stored trial failed integrity checks")
	}
	s.log.Info("store integrity ok: %d subjects, %d samples, %d count rows",
		integrity.SubjectCount, integrity.SampleCount, integrity.MeasurementCount)

	ds, err := s.store.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.engine.Run(ctx, ds)
	if err != nil {
		return nil, err
	}

	if err := s.WriteArtifacts(report); err != nil {
		return nil, err
	}
	return report, nil
}

// WriteArtifacts writes the frequency table, the per-stratum test results,
// and the baseline summary as CSV files under the output directory.
func (s *AnalysisService) WriteArtifacts(report *domstats.AnalysisReport) error {
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", s.outDir)
	}

	if err := s.writeFrequencies(report.Frequencies); err != nil {
		return err
	}
	for _, set := range report.Strata {
		if err := s.writeStratumResults(set); err != nil {
			return err
		}
	}
	if err := s.writeBaseline(report.Baseline); err != nil {
		return err
	}
	s.log.Info("wrote analysis artifacts to %s", s.outDir)
	return nil
}

// writeFrequencies writes sample_population_frequencies.csv. Per-sample
// percentages are re-validated to sum to ~100 before anything hits disk.
func (s *AnalysisService) writeFrequencies(records []domstats.FrequencyRecord) error {
	sums := make(map[trial.SampleID]float64)
	for _, rec := range records {
		sums[rec.SampleID] += rec.Percentage
	}
	for sample, sum := range sums {
		if math.Abs(sum-100.0) > 0.01 {
			return errors.ValidationError(fmt.Sprintf(
				"sample %s percentages sum to %.4f, expected ~100", sample, sum))
		}
	}

	return s.writeCSV("sample_population_frequencies.csv",
		[]string{"sample", "total_count", "population", "count", "percentage"},
		func(w *csv.Writer) error {
			for _, rec := range records {
				row := []string{
					string(rec.SampleID),
					strconv.Itoa(rec.TotalCount),
					string(rec.Population),
					strconv.Itoa(rec.Count),
					formatFloat(rec.Percentage),
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *AnalysisService) writeStratumResults(set domstats.StratumResultSet) error {
	name := fmt.Sprintf("response_comparison_%s.csv", set.Stratum)
	return s.writeCSV(name,
		[]string{"population", "stratum", "n_responder", "n_non_responder", "status", "statistic", "p_value", "q_value", "significant"},
		func(w *csv.Writer) error {
			for _, r := range set.Results {
				row := []string{
					string(r.Population),
					string(r.Stratum),
					strconv.Itoa(r.NResponder),
					strconv.Itoa(r.NNonResponder),
					string(r.Status),
					formatOptional(r.Statistic),
					formatOptional(r.PValue),
					formatOptional(r.QValue),
					strconv.FormatBool(r.Significant),
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *AnalysisService) writeBaseline(baseline domstats.BaselineSummary) error {
	return s.writeCSV("baseline_summary.csv",
		[]string{"project", "response", "sex", "subject_count"},
		func(w *csv.Writer) error {
			for _, g := range baseline.Groups {
				row := []string{g.Project, g.Response, g.Sex, strconv.Itoa(g.SubjectCount)}
				if err := w.Write(row); err != nil {
					return err
				}
			}
			return nil
		})
}

func (s *AnalysisService) writeCSV(name string, header []string, body func(*csv.Writer) error) error {
	path := filepath.Join(s.outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := body(w); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "failed to flush %s", name)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatOptional renders a nullable statistic; a not-performed test leaves
// the cell empty rather than writing a sentinel value
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
