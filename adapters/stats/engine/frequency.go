package engine

import (
	"fmt"
	"sort"

	"immunetrial/domain/stats"
	"immunetrial/domain/trial"
	"immunetrial/internal/errors"
)

// FrequencyTable is a lookup of relative frequencies (percent) by sample and
// population. Samples whose frequency computation failed are absent.
type FrequencyTable map[trial.SampleID]map[trial.Population]float64

// Lookup returns the relative frequency for one (sample, population) pair
func (t FrequencyTable) Lookup(sample trial.SampleID, pop trial.Population) (float64, bool) {
	pops, ok := t[sample]
	if !ok {
		return 0, false
	}
	v, ok := pops[pop]
	return v, ok
}

// Populations returns every population present in the table, sorted by name
func (t FrequencyTable) Populations() []trial.Population {
	seen := make(map[trial.Population]bool)
	for _, pops := range t {
		for p := range pops {
			seen[p] = true
		}
	}
	out := make([]trial.Population, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ComputeFrequencies converts raw per-sample counts into relative frequencies:
// each population's count against that sample's own total, times 100. A sample
// with zero total count or zero recorded populations yields a per-sample
// DataError and is excluded; it never aborts the other samples. Records come
// back ordered by sample then population, and the table is keyed for the
// cohort selector.
func ComputeFrequencies(ds *trial.Dataset) ([]stats.FrequencyRecord, FrequencyTable, []error) {
	bySample := make(map[trial.SampleID][]trial.Measurement)
	for _, m := range ds.Measurements() {
		bySample[m.SampleID] = append(bySample[m.SampleID], m)
	}

	sampleIDs := make([]trial.SampleID, 0, len(bySample))
	for id := range bySample {
		sampleIDs = append(sampleIDs, id)
	}
	sort.Slice(sampleIDs, func(i, j int) bool { return sampleIDs[i] < sampleIDs[j] })

	var records []stats.FrequencyRecord
	table := make(FrequencyTable, len(bySample))
	var sampleErrs []error

	for _, id := range sampleIDs {
		measurements := bySample[id]
		if len(measurements) == 0 {
			sampleErrs = append(sampleErrs, errors.DataError(fmt.Sprintf("sample %s has no recorded populations", id)))
			continue
		}

		total := 0
		for _, m := range measurements {
			total += m.Count
		}
		if total == 0 {
			sampleErrs = append(sampleErrs, errors.DataError(fmt.Sprintf("zero total count for sample %s", id)))
			continue
		}

		sort.Slice(measurements, func(i, j int) bool {
			return measurements[i].Population < measurements[j].Population
		})

		pops := make(map[trial.Population]float64, len(measurements))
		for _, m := range measurements {
			pct := float64(m.Count) / float64(total) * 100.0
			pops[m.Population] = pct
			records = append(records, stats.FrequencyRecord{
				SampleID:   id,
				TotalCount: total,
				Population: m.Population,
				Count:      m.Count,
				Percentage: pct,
			})
		}
		table[id] = pops
	}

	return records, table, sampleErrs
}
