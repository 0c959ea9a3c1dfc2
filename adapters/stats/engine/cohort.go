package engine

import (
	"sort"

	"immunetrial/domain/trial"
)

// Observation is one value entering a hypothesis test. For single-timepoint
// strata one sample is one observation; after pooled reduction one subject is
// one observation and SampleID is empty.
type Observation struct {
	SubjectID trial.SubjectID
	SampleID  trial.SampleID
	Responder bool
	Value     float64
}

// SelectObservations filters the snapshot down to per-sample observations for
// one population under the cohort predicate. Identical inputs always yield the
// same observations in the same order (sorted by sample ID), so downstream
// output diffs cleanly across runs. Samples without a usable frequency (failed
// frequency computation, population absent) are skipped.
func SelectObservations(ds *trial.Dataset, freqs FrequencyTable, filter trial.CohortFilter, pop trial.Population) []Observation {
	var out []Observation
	for _, sample := range ds.Samples() {
		if !filter.MatchesSample(sample) {
			continue
		}
		subject, ok := ds.Subject(sample.SubjectID)
		if !ok || !filter.MatchesSubject(subject) {
			continue
		}
		value, ok := freqs.Lookup(sample.ID, pop)
		if !ok {
			continue
		}
		out = append(out, Observation{
			SubjectID: subject.ID,
			SampleID:  sample.ID,
			Responder: subject.IsResponder(),
			Value:     value,
		})
	}
	// ds.Samples() is already sorted, kept explicit for the ordering contract
	sort.Slice(out, func(i, j int) bool { return out[i].SampleID < out[j].SampleID })
	return out
}

// PartitionByResponse splits observations into responder and non-responder
// groups by subject-level response, preserving order within each group.
func PartitionByResponse(obs []Observation) (responders, nonResponders []Observation) {
	for _, o := range obs {
		if o.Responder {
			responders = append(responders, o)
		} else {
			nonResponders = append(nonResponders, o)
		}
	}
	return responders, nonResponders
}

// Values extracts the frequency values from a group of observations
func Values(obs []Observation) []float64 {
	vals := make([]float64, len(obs))
	for i, o := range obs {
		vals[i] = o.Value
	}
	return vals
}
