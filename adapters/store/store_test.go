package store

import (
	"context"
	"testing"

	"immunetrial/domain/trial"
)

func openTestStore(t *testing.T) *TrialStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDataset(t *testing.T) *trial.Dataset {
	t.Helper()
	age := 62
	sex := "M"
	yes := trial.ResponseYes

	subjects := []trial.Subject{
		{ID: "sbj-1", Project: "prj1", Condition: "melanoma", Age: &age, Sex: &sex, Treatment: "tr1", Response: &yes},
		{ID: "sbj-2", Project: "prj1", Condition: "melanoma", Treatment: "tr1"},
	}
	samples := []trial.Sample{
		{ID: "smp-1", SubjectID: "sbj-1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-2", SubjectID: "sbj-2", SampleType: "PBMC", TimeFromTreatmentStart: 7},
	}
	var measurements []trial.Measurement
	for _, id := range []trial.SampleID{"smp-1", "smp-2"} {
		for i, pop := range trial.Populations() {
			measurements = append(measurements, trial.Measurement{
				SampleID: id, Population: pop, Count: 100 + i,
			})
		}
	}

	ds, err := trial.NewDataset(subjects, samples, measurements)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

func TestTrialStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ds := testDataset(t)

	if err := s.ReplaceDataset(ctx, ds); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	loaded, err := s.LoadDataset(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.SubjectCount() != ds.SubjectCount() {
		t.Errorf("subject count: expected %d, got %d", ds.SubjectCount(), loaded.SubjectCount())
	}
	if loaded.SampleCount() != ds.SampleCount() {
		t.Errorf("sample count: expected %d, got %d", ds.SampleCount(), loaded.SampleCount())
	}
	if len(loaded.Measurements()) != len(ds.Measurements()) {
		t.Errorf("measurement count: expected %d, got %d", len(ds.Measurements()), len(loaded.Measurements()))
	}

	sbj, ok := loaded.Subject("sbj-1")
	if !ok {
		t.Fatal("missing sbj-1 after round trip")
	}
	if sbj.Age == nil || *sbj.Age != 62 {
		t.Error("age lost in round trip")
	}
	if sbj.Response == nil || *sbj.Response != trial.ResponseYes {
		t.Error("response lost in round trip")
	}

	bare, ok := loaded.Subject("sbj-2")
	if !ok {
		t.Fatal("missing sbj-2 after round trip")
	}
	if bare.Age != nil || bare.Sex != nil || bare.Response != nil {
		t.Error("null optional fields must stay null after round trip")
	}
}

func TestTrialStore_ReplaceIsAtomicSwap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.ReplaceDataset(ctx, testDataset(t)); err != nil {
		t.Fatalf("first replace failed: %v", err)
	}

	// A second replace fully supersedes the first load, not appends to it
	yes := trial.ResponseYes
	small, err := trial.NewDataset(
		[]trial.Subject{{ID: "sbj-9", Project: "prj2", Condition: "melanoma", Treatment: "tr1", Response: &yes}},
		[]trial.Sample{{ID: "smp-9", SubjectID: "sbj-9", SampleType: "PBMC", TimeFromTreatmentStart: 0}},
		[]trial.Measurement{
			{SampleID: "smp-9", Population: trial.PopBCell, Count: 10},
			{SampleID: "smp-9", Population: trial.PopCD8TCell, Count: 20},
			{SampleID: "smp-9", Population: trial.PopCD4TCell, Count: 30},
			{SampleID: "smp-9", Population: trial.PopNKCell, Count: 20},
			{SampleID: "smp-9", Population: trial.PopMonocyte, Count: 20},
		},
	)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	if err := s.ReplaceDataset(ctx, small); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	loaded, err := s.LoadDataset(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.SubjectCount() != 1 || loaded.SampleCount() != 1 {
		t.Errorf("expected 1 subject and 1 sample after replace, got %d and %d",
			loaded.SubjectCount(), loaded.SampleCount())
	}
	if _, ok := loaded.Subject("sbj-1"); ok {
		t.Error("old subjects must not survive a replace")
	}
}

func TestTrialStore_CheckIntegrity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.ReplaceDataset(ctx, testDataset(t)); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	report, err := s.CheckIntegrity(ctx)
	if err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("expected a clean integrity report, got violations: %v", report.Violations)
	}
	if report.SubjectCount != 2 || report.SampleCount != 2 || report.MeasurementCount != 10 {
		t.Errorf("unexpected row counts: %+v", report)
	}
}

func TestTrialStore_CheckIntegrity_MissingCounts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.ReplaceDataset(ctx, testDataset(t)); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM cell_counts WHERE sample_id = ? AND population = ?`),
		"smp-1", trial.PopBCell); err != nil {
		t.Fatalf("failed to drop a count row: %v", err)
	}

	report, err := s.CheckIntegrity(ctx)
	if err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
	if report.OK() {
		t.Fatal("expected an integrity violation after deleting a count row")
	}
}
