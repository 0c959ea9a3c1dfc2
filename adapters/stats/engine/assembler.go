package engine

import (
	"sort"

	domstats "immunetrial/domain/stats"
	"immunetrial/domain/trial"

	mstats "github.com/montanaflynn/stats"
)

// NewStratumResultSet finalizes one stratum's test family: records sorted by
// population name for deterministic output, performed/skipped tallies attached.
func NewStratumResultSet(stratum domstats.Stratum, results []domstats.TestResult) domstats.StratumResultSet {
	sorted := make([]domstats.TestResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Population < sorted[j].Population })

	set := domstats.StratumResultSet{Stratum: stratum, Results: sorted}
	for _, r := range sorted {
		if r.Status.Performed() {
			set.TestsPerformed++
		} else {
			set.TestsSkipped++
		}
	}
	return set
}

// BuildBaseline summarizes the day-0 analysis cohort: subject counts by
// (project, response, sex), plus the mean baseline B-cell relative frequency
// among male responders. Subjects with several day-0 samples contribute their
// per-subject mean to the scalar, keeping one value per subject.
func BuildBaseline(ds *trial.Dataset, freqs FrequencyTable, filter trial.CohortFilter) domstats.BaselineSummary {
	day0 := filter.WithTimepoint(0)

	type groupKey struct {
		project, response, sex string
	}
	counts := make(map[groupKey]int)
	var maleResponderMeans []float64

	for _, subject := range ds.Subjects() {
		if !day0.MatchesSubject(subject) {
			continue
		}

		var bCellValues []float64
		inCohort := false
		for _, sample := range ds.Samples() {
			if sample.SubjectID != subject.ID || !day0.MatchesSample(sample) {
				continue
			}
			inCohort = true
			if v, ok := freqs.Lookup(sample.ID, trial.PopBCell); ok {
				bCellValues = append(bCellValues, v)
			}
		}
		if !inCohort {
			continue
		}

		key := groupKey{project: subject.Project}
		if subject.Response != nil {
			key.response = string(*subject.Response)
		}
		if subject.Sex != nil {
			key.sex = *subject.Sex
		}
		counts[key]++

		if key.sex == "M" && subject.IsResponder() && len(bCellValues) > 0 {
			if mean, err := mstats.Mean(bCellValues); err == nil {
				maleResponderMeans = append(maleResponderMeans, mean)
			}
		}
	}

	groups := make([]domstats.BaselineGroup, 0, len(counts))
	for key, n := range counts {
		groups = append(groups, domstats.BaselineGroup{
			Project:      key.project,
			Response:     key.response,
			Sex:          key.sex,
			SubjectCount: n,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Response != b.Response {
			return a.Response < b.Response
		}
		return a.Sex < b.Sex
	})

	summary := domstats.BaselineSummary{Groups: groups}
	if len(maleResponderMeans) > 0 {
		if mean, err := mstats.Mean(maleResponderMeans); err == nil {
			summary.MaleResponderBCellMean = &mean
		}
	}
	return summary
}
