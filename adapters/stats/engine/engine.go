package engine

import (
	"context"
	"time"

	"immunetrial/domain/core"
	domstats "immunetrial/domain/stats"
	"immunetrial/domain/trial"
	"immunetrial/internal"

	"golang.org/x/sync/errgroup"
)

// Engine is the responder stratification statistical engine. It is a pure
// transform: validated immutable snapshot in, result records out. It trusts
// the ingestion boundary's subject-level invariants and does not re-check them.
type Engine struct {
	cohort trial.CohortFilter
	log    *internal.Logger
}

// New creates an engine for the given cohort predicate
func New(cohort trial.CohortFilter, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{cohort: cohort, log: logger}
}

// Run executes one full analysis: frequencies, the four stratum test families
// with per-stratum FDR correction, and the baseline summary. Strata are
// analyzed concurrently; each owns an independent result collection, so no
// stratum's correction can see another's p-values. Results are re-sorted
// deterministically before assembly.
func (e *Engine) Run(ctx context.Context, ds *trial.Dataset) (*domstats.AnalysisReport, error) {
	start := time.Now()

	records, table, sampleErrs := ComputeFrequencies(ds)
	for _, err := range sampleErrs {
		e.log.Warn("frequency computation: %v", err)
	}

	populations := table.Populations()
	strata := domstats.AllStrata()
	sets := make([]domstats.StratumResultSet, len(strata))

	g, ctx := errgroup.WithContext(ctx)
	for i, stratum := range strata {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sets[i] = e.AnalyzeStratum(ds, table, stratum, populations)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := domstats.RunManifest{
		RunID:        core.NewRunID(),
		CreatedAt:    core.Now(),
		SubjectCount: ds.SubjectCount(),
		SampleCount:  ds.SampleCount(),
	}
	for _, set := range sets {
		manifest.TestsPerformed += set.TestsPerformed
		manifest.TestsSkipped += set.TestsSkipped
	}
	for _, err := range sampleErrs {
		manifest.SampleErrors = append(manifest.SampleErrors, err.Error())
	}
	manifest.RuntimeMs = time.Since(start).Milliseconds()

	report := &domstats.AnalysisReport{
		Manifest:    manifest,
		Frequencies: records,
		Strata:      sets,
		Baseline:    BuildBaseline(ds, table, e.cohort),
	}

	e.log.Info("analysis run %s complete: %d subjects, %d samples, %d tests performed, %d skipped (%dms)",
		manifest.RunID, manifest.SubjectCount, manifest.SampleCount,
		manifest.TestsPerformed, manifest.TestsSkipped, manifest.RuntimeMs)
	return report, nil
}

// AnalyzeStratum runs one stratum's complete test family. The stratum's
// p-value collection and its correction live entirely inside this call, which
// is what makes re-running a single stratum reproduce identical q-values to a
// full run.
func (e *Engine) AnalyzeStratum(ds *trial.Dataset, table FrequencyTable, stratum domstats.Stratum, populations []trial.Population) domstats.StratumResultSet {
	filter := e.cohort
	if day, ok := stratum.Timepoint(); ok {
		filter = filter.WithTimepoint(day)
	}

	results := make([]domstats.TestResult, 0, len(populations))
	var performed []int
	var rawPs []float64

	for _, pop := range populations {
		obs := SelectObservations(ds, table, filter, pop)
		if stratum == domstats.StratumPooled {
			obs = ReduceBySubject(obs)
		}
		responders, nonResponders := PartitionByResponse(obs)

		result := domstats.TestResult{
			Population:    pop,
			Stratum:       stratum,
			NResponder:    len(responders),
			NNonResponder: len(nonResponders),
		}

		switch {
		case len(responders) == 0 || len(nonResponders) == 0:
			result.Status = domstats.TestSkippedEmptyCohort
			e.log.Debug("stratum %s population %s: empty cohort on one side, test skipped", stratum, pop)
		case len(responders) < domstats.MinGroupSize || len(nonResponders) < domstats.MinGroupSize:
			result.Status = domstats.TestSkippedInsufficient
			e.log.Debug("stratum %s population %s: insufficient data (%d vs %d), test not performed",
				stratum, pop, len(responders), len(nonResponders))
		default:
			u, p, err := MannWhitneyU(Values(responders), Values(nonResponders))
			if err != nil {
				result.Status = domstats.TestSkippedInsufficient
			} else {
				result.Status = domstats.TestPerformed
				stat, pval := u, p
				result.Statistic = &stat
				result.PValue = &pval
				performed = append(performed, len(results))
				rawPs = append(rawPs, p)
			}
		}
		results = append(results, result)
	}

	// Skipped tests are excluded from m: only performed p-values enter the family
	qvalues := BenjaminiHochberg(rawPs)
	for k, idx := range performed {
		q := qvalues[k]
		results[idx].QValue = &q
		results[idx].Significant = q < domstats.SignificanceThreshold
	}

	return NewStratumResultSet(stratum, results)
}
