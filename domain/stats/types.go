package stats

import (
	"fmt"

	"immunetrial/domain/core"
	"immunetrial/domain/trial"
)

// SignificanceThreshold is the q-value cutoff for declaring a population
// significant after FDR correction.
const SignificanceThreshold = 0.05

// MinGroupSize is the smallest group that still supports a rank-sum comparison.
// Either side below this marks the test not-performed.
const MinGroupSize = 2

// Stratum is one analysis scope: a single timepoint or the pooled view.
// Each stratum owns its own test family and its own FDR correction scope.
type Stratum string

const (
	StratumDay0   Stratum = "day_0"
	StratumDay7   Stratum = "day_7"
	StratumDay14  Stratum = "day_14"
	StratumPooled Stratum = "pooled"
)

// AllStrata returns the four analysis strata in reporting order
func AllStrata() []Stratum {
	return []Stratum{StratumDay0, StratumDay7, StratumDay14, StratumPooled}
}

// Timepoint returns the sampling day a stratum restricts to, and false for pooled
func (s Stratum) Timepoint() (int, bool) {
	switch s {
	case StratumDay0:
		return 0, true
	case StratumDay7:
		return 7, true
	case StratumDay14:
		return 14, true
	default:
		return 0, false
	}
}

// ParseStratum parses the wire form of a stratum name
func ParseStratum(s string) (Stratum, error) {
	switch Stratum(s) {
	case StratumDay0, StratumDay7, StratumDay14, StratumPooled:
		return Stratum(s), nil
	}
	return "", fmt.Errorf("unknown stratum %q", s)
}

// TestStatus records whether a (population, stratum) comparison ran
type TestStatus string

const (
	// TestPerformed means both groups had enough observations and the test ran
	TestPerformed TestStatus = "performed"
	// TestSkippedEmptyCohort means one side of the comparison had no subjects at all
	TestSkippedEmptyCohort TestStatus = "skipped_empty_cohort"
	// TestSkippedInsufficient means a group existed but had fewer than MinGroupSize observations
	TestSkippedInsufficient TestStatus = "skipped_insufficient_data"
)

// Performed reports whether the test actually ran
func (s TestStatus) Performed() bool { return s == TestPerformed }

// FrequencyRecord is one sample's relative frequency for one population.
// Percentage is computed against that sample's own total, never a running
// aggregate, so records are consumable independently.
type FrequencyRecord struct {
	SampleID   trial.SampleID   `json:"sample"`
	TotalCount int              `json:"total_count"`
	Population trial.Population `json:"population"`
	Count      int              `json:"count"`
	Percentage float64          `json:"percentage"`
}

// TestResult is the immutable outcome of one (population, stratum) comparison.
// Statistic, PValue and QValue are nil when the test was not performed.
type TestResult struct {
	Population    trial.Population `json:"population"`
	Stratum       Stratum          `json:"stratum"`
	NResponder    int              `json:"n_responder"`
	NNonResponder int              `json:"n_non_responder"`
	Status        TestStatus       `json:"status"`
	Statistic     *float64         `json:"statistic"`
	PValue        *float64         `json:"p_value"`
	QValue        *float64         `json:"q_value"`
	Significant   bool             `json:"significant"`
}

// StratumResultSet is one stratum's complete, independently corrected test family,
// sorted by population name for deterministic output.
type StratumResultSet struct {
	Stratum        Stratum      `json:"stratum"`
	Results        []TestResult `json:"results"`
	TestsPerformed int          `json:"tests_performed"`
	TestsSkipped   int          `json:"tests_skipped"`
}

// BaselineGroup is one (project, response, sex) cell of the day-0 cohort summary
type BaselineGroup struct {
	Project      string `json:"project"`
	Response     string `json:"response"`
	Sex          string `json:"sex"`
	SubjectCount int    `json:"subject_count"`
}

// BaselineSummary describes the day-0 analysis cohort plus the single derived
// scalar the trial report calls out: mean baseline B-cell relative frequency
// among male responders in the melanoma cohort. Nil when no such subjects exist.
type BaselineSummary struct {
	Groups                 []BaselineGroup `json:"groups"`
	MaleResponderBCellMean *float64        `json:"male_responder_b_cell_mean"`
}

// RunManifest captures audit metadata for one pipeline execution
type RunManifest struct {
	RunID          core.RunID     `json:"run_id"`
	CreatedAt      core.Timestamp `json:"created_at"`
	RuntimeMs      int64          `json:"runtime_ms"`
	SubjectCount   int            `json:"subject_count"`
	SampleCount    int            `json:"sample_count"`
	TestsPerformed int            `json:"tests_performed"`
	TestsSkipped   int            `json:"tests_skipped"`
	SampleErrors   []string       `json:"sample_errors,omitempty"`
}

// AnalysisReport is the complete structured output of one run: derived
// frequencies, the four stratum result sets, the baseline summary and the run
// manifest. Writing it anywhere is the presentation layer's concern.
type AnalysisReport struct {
	Manifest    RunManifest        `json:"manifest"`
	Frequencies []FrequencyRecord  `json:"frequencies"`
	Strata      []StratumResultSet `json:"strata"`
	Baseline    BaselineSummary    `json:"baseline"`
}

// StratumResults returns the result set for one stratum
func (r *AnalysisReport) StratumResults(s Stratum) (StratumResultSet, bool) {
	for _, set := range r.Strata {
		if set.Stratum == s {
			return set, true
		}
	}
	return StratumResultSet{}, false
}
