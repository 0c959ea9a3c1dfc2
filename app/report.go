package app

import (
	"fmt"
	"strings"

	domstats "immunetrial/domain/stats"
)

// BuildMarkdownReport renders the full analysis as a markdown document. The
// dashboard serves it as HTML; the analyze command writes it to disk as-is.
func BuildMarkdownReport(report *domstats.AnalysisReport) string {
	var b strings.Builder

	m := report.Manifest
	fmt.Fprintf(&b, "# Responder Stratification Report\n\n")
	fmt.Fprintf(&b, "Run `%s` at %s.\n\n", m.RunID, m.CreatedAt.Time().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Subjects: %d\n", m.SubjectCount)
	fmt.Fprintf(&b, "- Samples: %d\n", m.SampleCount)
	fmt.Fprintf(&b, "- Tests performed: %d\n", m.TestsPerformed)
	fmt.Fprintf(&b, "- Tests skipped: %d\n", m.TestsSkipped)
	fmt.Fprintf(&b, "- Runtime: %dms\n\n", m.RuntimeMs)

	if len(m.SampleErrors) > 0 {
		fmt.Fprintf(&b, "## Excluded Samples\n\n")
		for _, e := range m.SampleErrors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	for _, set := range report.Strata {
		fmt.Fprintf(&b, "## Stratum %s\n\n", set.Stratum)
		fmt.Fprintf(&b, "%d tests performed, %d skipped.\n\n", set.TestsPerformed, set.TestsSkipped)
		b.WriteString("| Population | Responders | Non-responders | Status | U | p | q | Significant |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, r := range set.Results {
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %s | %s | %s | %s |\n",
				r.Population, r.NResponder, r.NNonResponder, r.Status,
				mdOptional(r.Statistic), mdOptional(r.PValue), mdOptional(r.QValue),
				mdBool(r.Significant, r.Status.Performed()))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Baseline Cohort\n\n")
	if len(report.Baseline.Groups) == 0 {
		b.WriteString("No baseline samples matched the cohort filter.\n")
	} else {
		b.WriteString("| Project | Response | Sex | Subjects |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, g := range report.Baseline.Groups {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", g.Project, g.Response, g.Sex, g.SubjectCount)
		}
		b.WriteString("\n")
		if report.Baseline.MaleResponderBCellMean != nil {
			fmt.Fprintf(&b, "Mean baseline B-cell frequency among male responders: %.4f%%\n",
				*report.Baseline.MaleResponderBCellMean)
		}
	}

	return b.String()
}

func mdOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", *v)
}

func mdBool(significant, performed bool) string {
	if !performed {
		return "n/a"
	}
	if significant {
		return "yes"
	}
	return "no"
}
