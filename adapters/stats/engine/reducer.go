package engine

import (
	"sort"

	"immunetrial/domain/trial"

	"github.com/montanaflynn/stats"
)

// ReduceBySubject collapses repeated measures for the pooled stratum: all of a
// subject's per-timepoint observations are replaced by one observation holding
// their arithmetic mean. A subject with three correlated samples would
// otherwise count as three independent observations, inflating the apparent
// power of the downstream rank test. Subjects with only one or two of the
// three timepoints are averaged over whatever is present; a subject with zero
// qualifying samples contributes nothing. Output is sorted by subject ID.
func ReduceBySubject(obs []Observation) []Observation {
	grouped := make(map[trial.SubjectID][]float64)
	responder := make(map[trial.SubjectID]bool)
	for _, o := range obs {
		grouped[o.SubjectID] = append(grouped[o.SubjectID], o.Value)
		responder[o.SubjectID] = o.Responder
	}

	out := make([]Observation, 0, len(grouped))
	for subjectID, values := range grouped {
		mean, err := stats.Mean(values)
		if err != nil {
			// Empty groups cannot occur: every entry came from an observation
			continue
		}
		out = append(out, Observation{
			SubjectID: subjectID,
			Responder: responder[subjectID],
			Value:     mean,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}
