package excel

import (
	"fmt"

	domstats "immunetrial/domain/stats"
	"immunetrial/internal/errors"

	"github.com/xuri/excelize/v2"
)

// WorkbookWriter renders an analysis report as an Excel workbook with one
// sheet per stratum plus a baseline sheet
type WorkbookWriter struct {
	filePath string
}

// NewWorkbookWriter creates a workbook writer targeting the given path
func NewWorkbookWriter(filePath string) *WorkbookWriter {
	return &WorkbookWriter{filePath: filePath}
}

// Write saves the full report as an .xlsx workbook
func (w *WorkbookWriter) Write(report *domstats.AnalysisReport) error {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, set := range report.Strata {
		name := string(set.Stratum)
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return errors.Wrapf(err, "failed to rename sheet %s", name)
			}
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return errors.Wrapf(err, "failed to create sheet %s", name)
			}
		}
		if err := writeStratumSheet(f, name, set); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Baseline"); err != nil {
		return errors.Wrap(err, "failed to create baseline sheet")
	}
	if err := writeBaselineSheet(f, report.Baseline); err != nil {
		return err
	}

	if err := f.SaveAs(w.filePath); err != nil {
		return errors.Wrapf(err, "failed to save workbook %s", w.filePath)
	}
	return nil
}

func writeStratumSheet(f *excelize.File, sheet string, set domstats.StratumResultSet) error {
	header := []interface{}{
		"population", "n_responder", "n_non_responder", "status",
		"statistic", "p_value", "q_value", "significant",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrapf(err, "failed to write header for %s", sheet)
	}

	for i, r := range set.Results {
		row := []interface{}{
			string(r.Population), r.NResponder, r.NNonResponder, string(r.Status),
			cellValue(r.Statistic), cellValue(r.PValue), cellValue(r.QValue), r.Significant,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write row %d of %s", i+2, sheet)
		}
	}
	return nil
}

func writeBaselineSheet(f *excelize.File, baseline domstats.BaselineSummary) error {
	header := []interface{}{"project", "response", "sex", "subject_count"}
	if err := f.SetSheetRow("Baseline", "A1", &header); err != nil {
		return errors.Wrap(err, "failed to write baseline header")
	}
	for i, g := range baseline.Groups {
		row := []interface{}{g.Project, g.Response, g.Sex, g.SubjectCount}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow("Baseline", cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write baseline row %d", i+2)
		}
	}
	if baseline.MaleResponderBCellMean != nil {
		label := []interface{}{"male_responder_b_cell_mean", *baseline.MaleResponderBCellMean}
		cell := fmt.Sprintf("A%d", len(baseline.Groups)+3)
		if err := f.SetSheetRow("Baseline", cell, &label); err != nil {
			return errors.Wrap(err, "failed to write baseline mean")
		}
	}
	return nil
}

// cellValue maps a nullable statistic to a cell; a missing value leaves the
// cell blank
func cellValue(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
