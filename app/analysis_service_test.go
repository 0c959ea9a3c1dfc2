package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"immunetrial/adapters/stats/engine"
	domstats "immunetrial/domain/stats"
	"immunetrial/domain/trial"
	"immunetrial/internal/errors"
	"immunetrial/ports"
)

// memStore keeps one snapshot in memory behind the TrialStore port
type memStore struct {
	ds *trial.Dataset
}

func (m *memStore) ReplaceDataset(ctx context.Context, ds *trial.Dataset) error {
	m.ds = ds
	return nil
}

func (m *memStore) LoadDataset(ctx context.Context) (*trial.Dataset, error) {
	if m.ds == nil {
		return nil, errors.NotFound("trial dataset")
	}
	return m.ds, nil
}

func (m *memStore) CheckIntegrity(ctx context.Context) (ports.IntegrityReport, error) {
	report := ports.IntegrityReport{}
	if m.ds != nil {
		report.SubjectCount = m.ds.SubjectCount()
		report.SampleCount = m.ds.SampleCount()
		report.MeasurementCount = len(m.ds.Measurements())
	}
	return report, nil
}

func (m *memStore) Close() error { return nil }

func serviceDataset(t *testing.T) *trial.Dataset {
	t.Helper()
	yes, no := trial.ResponseYes, trial.ResponseNo

	subjects := []trial.Subject{
		{ID: "sbj-r1", Project: "prj1", Condition: "melanoma", Treatment: "tr1", Response: &yes},
		{ID: "sbj-r2", Project: "prj1", Condition: "melanoma", Treatment: "tr1", Response: &yes},
		{ID: "sbj-n1", Project: "prj1", Condition: "melanoma", Treatment: "tr1", Response: &no},
		{ID: "sbj-n2", Project: "prj1", Condition: "melanoma", Treatment: "tr1", Response: &no},
	}
	samples := []trial.Sample{
		{ID: "smp-r1", SubjectID: "sbj-r1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-r2", SubjectID: "sbj-r2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-n1", SubjectID: "sbj-n1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-n2", SubjectID: "sbj-n2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
	}
	var measurements []trial.Measurement
	add := func(id trial.SampleID, b, cd8 int) {
		measurements = append(measurements,
			trial.Measurement{SampleID: id, Population: trial.PopBCell, Count: b},
			trial.Measurement{SampleID: id, Population: trial.PopCD8TCell, Count: cd8},
			trial.Measurement{SampleID: id, Population: trial.PopCD4TCell, Count: 300},
			trial.Measurement{SampleID: id, Population: trial.PopNKCell, Count: 150},
			trial.Measurement{SampleID: id, Population: trial.PopMonocyte, Count: 150},
		)
	}
	add("smp-r1", 300, 100)
	add("smp-r2", 290, 110)
	add("smp-n1", 100, 300)
	add("smp-n2", 110, 290)

	ds, err := trial.NewDataset(subjects, samples, measurements)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

func TestAnalysisService_Run_WritesArtifacts(t *testing.T) {
	outDir := t.TempDir()
	store := &memStore{ds: serviceDataset(t)}
	svc := NewAnalysisService(store, engine.New(trial.DefaultCohort(), nil), outDir, nil)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Manifest.TestsPerformed == 0 {
		t.Error("expected at least one performed test")
	}

	expected := []string{
		"sample_population_frequencies.csv",
		"response_comparison_day_0.csv",
		"response_comparison_day_7.csv",
		"response_comparison_day_14.csv",
		"response_comparison_pooled.csv",
		"baseline_summary.csv",
	}
	for _, name := range expected {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
}

func TestAnalysisService_FrequencyCSVShape(t *testing.T) {
	outDir := t.TempDir()
	store := &memStore{ds: serviceDataset(t)}
	svc := NewAnalysisService(store, engine.New(trial.DefaultCohort(), nil), outDir, nil)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	f, err := os.Open(filepath.Join(outDir, "sample_population_frequencies.csv"))
	if err != nil {
		t.Fatalf("failed to open frequency CSV: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse frequency CSV: %v", err)
	}
	wantHeader := "sample,total_count,population,count,percentage"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Errorf("unexpected header: %s", got)
	}
	// 4 samples x 5 populations plus the header
	if len(rows) != 21 {
		t.Errorf("expected 21 rows, got %d", len(rows))
	}
}

func TestAnalysisService_SkippedTestLeavesCellsEmpty(t *testing.T) {
	// A single-responder dataset forces every test into a skip status
	yes, no := trial.ResponseYes, trial.ResponseNo
	subjects := []trial.Subject{
		{ID: "sbj-1", Project: "prj1", Condition: "melanoma", Treatment: "tr1", Response: &yes},
		{ID: "sbj-2", Project: "prj1", Condition: "melanoma", Treatment: "tr1", Response: &no},
	}
	samples := []trial.Sample{
		{ID: "smp-1", SubjectID: "sbj-1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-2", SubjectID: "sbj-2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
	}
	var measurements []trial.Measurement
	for _, id := range []trial.SampleID{"smp-1", "smp-2"} {
		for _, pop := range trial.Populations() {
			measurements = append(measurements, trial.Measurement{SampleID: id, Population: pop, Count: 200})
		}
	}
	ds, err := trial.NewDataset(subjects, samples, measurements)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}

	outDir := t.TempDir()
	svc := NewAnalysisService(&memStore{ds: ds}, engine.New(trial.DefaultCohort(), nil), outDir, nil)
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	f, err := os.Open(filepath.Join(outDir, "response_comparison_day_0.csv"))
	if err != nil {
		t.Fatalf("failed to open stats CSV: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse stats CSV: %v", err)
	}
	for _, row := range rows[1:] {
		if row[4] != string(domstats.TestSkippedInsufficient) {
			t.Errorf("expected insufficient-data status, got %s", row[4])
		}
		if row[5] != "" || row[6] != "" || row[7] != "" {
			t.Errorf("skipped test must leave statistic cells empty, got %v", row[5:8])
		}
	}
}

func TestWriteFrequencies_RejectsBrokenSums(t *testing.T) {
	svc := NewAnalysisService(&memStore{}, engine.New(trial.DefaultCohort(), nil), t.TempDir(), nil)
	records := []domstats.FrequencyRecord{
		{SampleID: "smp-1", TotalCount: 1000, Population: trial.PopBCell, Count: 300, Percentage: 30},
		{SampleID: "smp-1", TotalCount: 1000, Population: trial.PopCD8TCell, Count: 300, Percentage: 40},
	}
	err := svc.writeFrequencies(records)
	if err == nil {
		t.Fatal("expected a validation error for percentages not summing to 100")
	}
	if !errors.HasCode(err, errors.CodeValidationError) {
		t.Errorf("expected VALIDATION_ERROR, got %s", errors.GetCode(err))
	}
}
