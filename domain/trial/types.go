package trial

import (
	"fmt"
	"sort"
)

// SubjectID identifies a trial participant
type SubjectID string

// SampleID identifies one drawn sample
type SampleID string

// Population names an immune cell population measured per sample
type Population string

// Canonical populations for this dataset (allowlist)
const (
	PopBCell    Population = "b_cell"
	PopCD8TCell Population = "cd8_t_cell"
	PopCD4TCell Population = "cd4_t_cell"
	PopNKCell   Population = "nk_cell"
	PopMonocyte Population = "monocyte"
)

// Populations returns the canonical population allowlist in column order
func Populations() []Population {
	return []Population{PopBCell, PopCD8TCell, PopCD4TCell, PopNKCell, PopMonocyte}
}

// IsKnownPopulation reports whether p is in the allowlist
func IsKnownPopulation(p Population) bool {
	for _, known := range Populations() {
		if p == known {
			return true
		}
	}
	return false
}

// Response is the subject-level binary treatment outcome
type Response string

const (
	ResponseYes Response = "yes"
	ResponseNo  Response = "no"
)

// Timepoints observed in this trial, in days from treatment start.
// Samples at any other timepoint are excluded from stratified and pooled analysis.
var ValidTimepoints = []int{0, 7, 14}

// IsValidTimepoint reports whether day is one of the three observed timepoints
func IsValidTimepoint(day int) bool {
	for _, d := range ValidTimepoints {
		if d == day {
			return true
		}
	}
	return false
}

// Subject holds subject-level context. Response and treatment are constant per
// subject; that invariant is enforced at the ingestion boundary, not re-checked
// by the analysis engine.
type Subject struct {
	ID        SubjectID `json:"subject_id" db:"subject_id"`
	Project   string    `json:"project" db:"project"`
	Condition string    `json:"condition" db:"condition"`
	Age       *int      `json:"age,omitempty" db:"age"`
	Sex       *string   `json:"sex,omitempty" db:"sex"`
	Treatment string    `json:"treatment" db:"treatment"`
	Response  *Response `json:"response,omitempty" db:"response"`
}

// HasResponse reports whether the subject has a recorded (non-null) response
func (s Subject) HasResponse() bool {
	return s.Response != nil
}

// IsResponder reports whether the subject responded to treatment.
// False for subjects with no recorded response.
func (s Subject) IsResponder() bool {
	return s.Response != nil && *s.Response == ResponseYes
}

// Sample holds sample-level context
type Sample struct {
	ID        SampleID  `json:"sample_id" db:"sample_id"`
	SubjectID SubjectID `json:"subject_id" db:"subject_id"`
	SampleType string   `json:"sample_type" db:"sample_type"`
	// TimeFromTreatmentStart is the sampling timepoint in days
	TimeFromTreatmentStart int `json:"time_from_treatment_start" db:"time_from_treatment_start"`
}

// Measurement is one raw cell count for one population in one sample
type Measurement struct {
	SampleID   SampleID   `json:"sample_id" db:"sample_id"`
	Population Population `json:"population" db:"population"`
	Count      int        `json:"count" db:"count"`
}

// Dataset is an immutable snapshot of already-validated trial records.
// The analysis engine consumes it read-only; nothing here mutates after Build.
type Dataset struct {
	subjects     map[SubjectID]Subject
	samples      map[SampleID]Sample
	measurements []Measurement
}

// NewDataset assembles a snapshot. Measurements referencing unknown samples or
// samples referencing unknown subjects are structural errors: the caller is the
// validated ingestion boundary, so a dangling reference means the run must fail.
func NewDataset(subjects []Subject, samples []Sample, measurements []Measurement) (*Dataset, error) {
	ds := &Dataset{
		subjects: make(map[SubjectID]Subject, len(subjects)),
		samples:  make(map[SampleID]Sample, len(samples)),
	}
	for _, sub := range subjects {
		if _, dup := ds.subjects[sub.ID]; dup {
			return nil, fmt.Errorf("duplicate subject %s in snapshot", sub.ID)
		}
		ds.subjects[sub.ID] = sub
	}
	for _, smp := range samples {
		if _, dup := ds.samples[smp.ID]; dup {
			return nil, fmt.Errorf("duplicate sample %s in snapshot", smp.ID)
		}
		if _, ok := ds.subjects[smp.SubjectID]; !ok {
			return nil, fmt.Errorf("sample %s references unknown subject %s", smp.ID, smp.SubjectID)
		}
		ds.samples[smp.ID] = smp
	}
	for _, m := range measurements {
		if _, ok := ds.samples[m.SampleID]; !ok {
			return nil, fmt.Errorf("measurement references unknown sample %s", m.SampleID)
		}
	}
	ds.measurements = make([]Measurement, len(measurements))
	copy(ds.measurements, measurements)
	return ds, nil
}

// Subject returns the subject with the given ID
func (d *Dataset) Subject(id SubjectID) (Subject, bool) {
	s, ok := d.subjects[id]
	return s, ok
}

// Sample returns the sample with the given ID
func (d *Dataset) Sample(id SampleID) (Sample, bool) {
	s, ok := d.samples[id]
	return s, ok
}

// Subjects returns all subjects sorted by ID for deterministic iteration
func (d *Dataset) Subjects() []Subject {
	out := make([]Subject, 0, len(d.subjects))
	for _, s := range d.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Samples returns all samples sorted by ID for deterministic iteration
func (d *Dataset) Samples() []Sample {
	out := make([]Sample, 0, len(d.samples))
	for _, s := range d.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Measurements returns the measurement rows in snapshot order
func (d *Dataset) Measurements() []Measurement {
	out := make([]Measurement, len(d.measurements))
	copy(out, d.measurements)
	return out
}

// SubjectCount returns the number of subjects in the snapshot
func (d *Dataset) SubjectCount() int { return len(d.subjects) }

// SampleCount returns the number of samples in the snapshot
func (d *Dataset) SampleCount() int { return len(d.samples) }
