package engine

import (
	"math"
	"testing"

	"immunetrial/domain/trial"
	"immunetrial/internal/errors"
)

func TestComputeFrequencies_SumTo100(t *testing.T) {
	ds := comparisonFixture(t)
	records, table, sampleErrs := ComputeFrequencies(ds)

	if len(sampleErrs) != 0 {
		t.Fatalf("unexpected sample errors: %v", sampleErrs)
	}

	// For every sample, the relative frequencies of its populations sum to 100
	sums := make(map[trial.SampleID]float64)
	for _, rec := range records {
		sums[rec.SampleID] += rec.Percentage
	}
	if len(sums) != ds.SampleCount() {
		t.Fatalf("expected frequencies for %d samples, got %d", ds.SampleCount(), len(sums))
	}
	for sample, sum := range sums {
		if math.Abs(sum-100.0) > 0.01 {
			t.Errorf("sample %s percentages sum to %f, expected ~100", sample, sum)
		}
	}

	// Table agrees with the records
	v, ok := table.Lookup("smp-r1-d0", trial.PopBCell)
	if !ok {
		t.Fatal("expected b_cell frequency for smp-r1-d0")
	}
	if math.Abs(v-30.0) > 1e-9 {
		t.Errorf("expected 30%% b_cell for smp-r1-d0, got %f", v)
	}
}

func TestComputeFrequencies_Ordering(t *testing.T) {
	ds := comparisonFixture(t)
	records, _, _ := ComputeFrequencies(ds)

	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		if cur.SampleID < prev.SampleID {
			t.Fatalf("records not ordered by sample: %s after %s", cur.SampleID, prev.SampleID)
		}
		if cur.SampleID == prev.SampleID && cur.Population < prev.Population {
			t.Fatalf("records not ordered by population within sample %s", cur.SampleID)
		}
	}
}

func TestComputeFrequencies_ZeroTotal(t *testing.T) {
	subjects := []trial.Subject{
		{ID: "sbj-1", Project: "prj1", Condition: "melanoma", Treatment: "tr1"},
	}
	samples := []trial.Sample{
		{ID: "smp-bad", SubjectID: "sbj-1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-good", SubjectID: "sbj-1", SampleType: "PBMC", TimeFromTreatmentStart: 7},
	}
	var measurements []trial.Measurement
	measurements = append(measurements, counts("smp-bad", 0, 0, 0, 0, 0)...)
	measurements = append(measurements, counts("smp-good", 100, 200, 300, 200, 200)...)
	ds := mustDataset(t, subjects, samples, measurements)

	records, table, sampleErrs := ComputeFrequencies(ds)

	// The degenerate sample fails alone; the good one still computes
	if len(sampleErrs) != 1 {
		t.Fatalf("expected 1 sample error, got %d", len(sampleErrs))
	}
	if !errors.HasCode(sampleErrs[0], errors.CodeDataError) {
		t.Errorf("expected DATA_ERROR, got %s", errors.GetCode(sampleErrs[0]))
	}
	if _, ok := table["smp-bad"]; ok {
		t.Error("degenerate sample must be excluded from the frequency table")
	}
	if _, ok := table["smp-good"]; !ok {
		t.Error("good sample missing from the frequency table")
	}
	for _, rec := range records {
		if rec.SampleID == "smp-bad" {
			t.Error("degenerate sample must not produce frequency records")
		}
	}
}

func TestFrequencyTable_Populations(t *testing.T) {
	ds := comparisonFixture(t)
	_, table, _ := ComputeFrequencies(ds)

	pops := table.Populations()
	if len(pops) != 5 {
		t.Fatalf("expected 5 populations, got %d", len(pops))
	}
	for i := 1; i < len(pops); i++ {
		if pops[i] <= pops[i-1] {
			t.Errorf("populations not sorted: %s before %s", pops[i-1], pops[i])
		}
	}
}
