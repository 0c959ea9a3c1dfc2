package engine

import (
	"testing"

	"immunetrial/domain/trial"
)

func strPtr(s string) *string { return &s }

func respPtr(r trial.Response) *trial.Response { return &r }

// counts builds the five canonical measurement rows for one sample
func counts(id trial.SampleID, b, cd8, cd4, nk, mono int) []trial.Measurement {
	return []trial.Measurement{
		{SampleID: id, Population: trial.PopBCell, Count: b},
		{SampleID: id, Population: trial.PopCD8TCell, Count: cd8},
		{SampleID: id, Population: trial.PopCD4TCell, Count: cd4},
		{SampleID: id, Population: trial.PopNKCell, Count: nk},
		{SampleID: id, Population: trial.PopMonocyte, Count: mono},
	}
}

func mustDataset(t *testing.T, subjects []trial.Subject, samples []trial.Sample, measurements []trial.Measurement) *trial.Dataset {
	t.Helper()
	ds, err := trial.NewDataset(subjects, samples, measurements)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

// comparisonFixture builds a melanoma/PBMC/tr1 cohort with three responders
// and two non-responders. Day 0 has all five subjects, day 7 has four, day 14
// has one responder and two non-responders (so its tests cannot run). One
// untreated subject and one tumor sample sit outside the cohort.
func comparisonFixture(t *testing.T) *trial.Dataset {
	t.Helper()

	subjects := []trial.Subject{
		{ID: "sbj-r1", Project: "prj1", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-r2", Project: "prj1", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-r3", Project: "prj2", Condition: "melanoma", Sex: strPtr("F"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-n1", Project: "prj1", Condition: "melanoma", Sex: strPtr("F"), Treatment: "tr1", Response: respPtr(trial.ResponseNo)},
		{ID: "sbj-n2", Project: "prj2", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseNo)},
		{ID: "sbj-x1", Project: "prj1", Condition: "melanoma", Sex: strPtr("M"), Treatment: "none"},
	}

	samples := []trial.Sample{
		{ID: "smp-r1-d0", SubjectID: "sbj-r1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-r1-d7", SubjectID: "sbj-r1", SampleType: "PBMC", TimeFromTreatmentStart: 7},
		{ID: "smp-r1-d14", SubjectID: "sbj-r1", SampleType: "PBMC", TimeFromTreatmentStart: 14},
		{ID: "smp-r2-d0", SubjectID: "sbj-r2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-r2-d7", SubjectID: "sbj-r2", SampleType: "PBMC", TimeFromTreatmentStart: 7},
		{ID: "smp-r3-d0", SubjectID: "sbj-r3", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-n1-d0", SubjectID: "sbj-n1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-n1-d7", SubjectID: "sbj-n1", SampleType: "PBMC", TimeFromTreatmentStart: 7},
		{ID: "smp-n1-d14", SubjectID: "sbj-n1", SampleType: "PBMC", TimeFromTreatmentStart: 14},
		{ID: "smp-n2-d0", SubjectID: "sbj-n2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-n2-d7", SubjectID: "sbj-n2", SampleType: "PBMC", TimeFromTreatmentStart: 7},
		{ID: "smp-n2-d14", SubjectID: "sbj-n2", SampleType: "PBMC", TimeFromTreatmentStart: 14},
		{ID: "smp-r1-tum", SubjectID: "sbj-r1", SampleType: "tumor", TimeFromTreatmentStart: 0},
		{ID: "smp-x1-d0", SubjectID: "sbj-x1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
	}

	var measurements []trial.Measurement
	// Responders carry a clearly higher b_cell fraction than non-responders
	measurements = append(measurements, counts("smp-r1-d0", 300, 200, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-r1-d7", 310, 190, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-r1-d14", 320, 180, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-r2-d0", 290, 210, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-r2-d7", 305, 195, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-r3-d0", 280, 220, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-n1-d0", 100, 400, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-n1-d7", 110, 390, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-n1-d14", 120, 380, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-n2-d0", 90, 410, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-n2-d7", 95, 405, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-n2-d14", 105, 395, 200, 150, 150)...)
	measurements = append(measurements, counts("smp-r1-tum", 500, 100, 200, 100, 100)...)
	measurements = append(measurements, counts("smp-x1-d0", 200, 300, 200, 150, 150)...)

	return mustDataset(t, subjects, samples, measurements)
}

// baselineFixture builds three male melanoma responders with day-0 B-cell
// frequencies of exactly 5%, 7% and 9%, plus a female responder and a male
// non-responder for the group counts.
func baselineFixture(t *testing.T) *trial.Dataset {
	t.Helper()

	subjects := []trial.Subject{
		{ID: "sbj-m1", Project: "prj1", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-m2", Project: "prj1", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-m3", Project: "prj2", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-f1", Project: "prj1", Condition: "melanoma", Sex: strPtr("F"), Treatment: "tr1", Response: respPtr(trial.ResponseYes)},
		{ID: "sbj-m4", Project: "prj1", Condition: "melanoma", Sex: strPtr("M"), Treatment: "tr1", Response: respPtr(trial.ResponseNo)},
	}

	samples := []trial.Sample{
		{ID: "smp-m1-d0", SubjectID: "sbj-m1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-m2-d0", SubjectID: "sbj-m2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-m3-d0", SubjectID: "sbj-m3", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-f1-d0", SubjectID: "sbj-f1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		{ID: "smp-m4-d0", SubjectID: "sbj-m4", SampleType: "PBMC", TimeFromTreatmentStart: 0},
	}

	var measurements []trial.Measurement
	measurements = append(measurements, counts("smp-m1-d0", 50, 300, 300, 200, 150)...)
	measurements = append(measurements, counts("smp-m2-d0", 70, 290, 300, 200, 140)...)
	measurements = append(measurements, counts("smp-m3-d0", 90, 280, 300, 200, 130)...)
	measurements = append(measurements, counts("smp-f1-d0", 60, 295, 300, 200, 145)...)
	measurements = append(measurements, counts("smp-m4-d0", 80, 285, 300, 200, 135)...)

	return mustDataset(t, subjects, samples, measurements)
}
