package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"immunetrial/domain/trial"
	"immunetrial/internal/errors"
	"immunetrial/ports"

	"github.com/xuri/excelize/v2"
)

// Required input columns. Population columns follow the fixed panel order.
var requiredColumns = []string{
	"project", "subject", "condition", "age", "sex", "treatment", "response",
	"sample", "sample_type", "time_from_treatment_start",
	"b_cell", "cd8_t_cell", "cd4_t_cell", "nk_cell", "monocyte",
}

// DataReader parses trial input from CSV or Excel files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

var _ ports.DatasetReader = (*DataReader)(nil)

// NewDataReader creates a reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "csv"
	if ext == ".xlsx" || ext == ".xlsm" {
		fileType = "xlsx"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// Load reads the configured file into a validated trial snapshot. Row-scoped
// problems come back as warnings; structural problems fail the load.
func (r *DataReader) Load() (*trial.Dataset, []error, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open input file %s", r.filePath)
	}
	defer f.Close()

	if r.fileType == "xlsx" {
		return r.readExcel(f)
	}
	return r.Read(f)
}

// Read parses CSV content from the stream. Implements ports.DatasetReader.
func (r *DataReader) Read(src io.Reader) (*trial.Dataset, []error, error) {
	cr := csv.NewReader(src)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse CSV input")
	}
	return parseRecords(records)
}

func (r *DataReader) readExcel(src io.Reader) (*trial.Dataset, []error, error) {
	wb, err := excelize.OpenReader(src)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open Excel workbook")
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.InvalidInput("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	return parseRecords(rows)
}

// parseRecords turns raw tabular rows into a validated snapshot. Each input
// row carries one sample with its five population counts; subject fields
// repeat on every row and must be mutually consistent.
func parseRecords(records [][]string) (*trial.Dataset, []error, error) {
	if len(records) == 0 {
		return nil, nil, errors.InvalidInput("input is empty")
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, nil, err
	}

	var warnings []error
	subjects := make(map[trial.SubjectID]*trial.Subject)
	subjectOrder := []trial.SubjectID{}
	seenSamples := make(map[trial.SampleID]int)
	var samples []trial.Sample
	var measurements []trial.Measurement

	for i, record := range records[1:] {
		line := i + 2 // 1-based, after the header

		row, err := parseRow(record, cols, line)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}

		if prev, dup := seenSamples[row.sampleID]; dup {
			warnings = append(warnings, errors.DataError(fmt.Sprintf(
				"row %d: duplicate sample %s (first seen at row %d)", line, row.sampleID, prev)))
			continue
		}

		existing, ok := subjects[row.subject.ID]
		if !ok {
			sbj := row.subject
			subjects[sbj.ID] = &sbj
			subjectOrder = append(subjectOrder, sbj.ID)
		} else if err := mergeSubject(existing, row.subject, line); err != nil {
			warnings = append(warnings, err)
			continue
		}

		seenSamples[row.sampleID] = line
		samples = append(samples, trial.Sample{
			ID:                     row.sampleID,
			SubjectID:              row.subject.ID,
			SampleType:             row.sampleType,
			TimeFromTreatmentStart: row.timepoint,
		})
		for _, pop := range trial.Populations() {
			measurements = append(measurements, trial.Measurement{
				SampleID:   row.sampleID,
				Population: pop,
				Count:      row.counts[pop],
			})
		}
	}

	if len(samples) == 0 {
		return nil, warnings, errors.InvalidInput("no valid rows in input")
	}

	subjectList := make([]trial.Subject, 0, len(subjectOrder))
	for _, id := range subjectOrder {
		subjectList = append(subjectList, *subjects[id])
	}

	ds, err := trial.NewDataset(subjectList, samples, measurements)
	if err != nil {
		return nil, warnings, err
	}
	return ds, warnings, nil
}

func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.InvalidInput(fmt.Sprintf("input missing columns: %s", strings.Join(missing, ", ")))
	}
	return cols, nil
}

type parsedRow struct {
	subject    trial.Subject
	sampleID   trial.SampleID
	sampleType string
	timepoint  int
	counts     map[trial.Population]int
}

func parseRow(record []string, cols map[string]int, line int) (*parsedRow, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	for _, name := range []string{"project", "subject", "condition", "treatment", "sample", "sample_type"} {
		if field(name) == "" {
			return nil, errors.DataError(fmt.Sprintf("row %d: missing required field %s", line, name))
		}
	}

	timepoint, err := strconv.Atoi(field("time_from_treatment_start"))
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("row %d: invalid time_from_treatment_start %q", line, field("time_from_treatment_start")))
	}

	row := &parsedRow{
		subject: trial.Subject{
			ID:        trial.SubjectID(field("subject")),
			Project:   field("project"),
			Condition: strings.ToLower(field("condition")),
			Treatment: strings.ToLower(field("treatment")),
		},
		sampleID:   trial.SampleID(field("sample")),
		sampleType: field("sample_type"),
		timepoint:  timepoint,
		counts:     make(map[trial.Population]int, len(trial.Populations())),
	}

	if ageStr := field("age"); ageStr != "" {
		age, err := strconv.Atoi(ageStr)
		if err != nil || age < 0 {
			return nil, errors.DataError(fmt.Sprintf("row %d: invalid age %q", line, ageStr))
		}
		row.subject.Age = &age
	}
	if sexStr := field("sex"); sexStr != "" {
		sex := strings.ToUpper(sexStr)
		if sex != "M" && sex != "F" {
			return nil, errors.DataError(fmt.Sprintf("row %d: invalid sex %q", line, sexStr))
		}
		row.subject.Sex = &sex
	}
	if respStr := field("response"); respStr != "" {
		resp, err := normalizeResponse(respStr)
		if err != nil {
			return nil, errors.DataError(fmt.Sprintf("row %d: invalid response %q", line, respStr))
		}
		row.subject.Response = &resp
	}

	for _, pop := range trial.Populations() {
		raw := field(string(pop))
		count, err := strconv.Atoi(raw)
		if err != nil || count < 0 {
			return nil, errors.DataError(fmt.Sprintf("row %d: invalid %s count %q", line, pop, raw))
		}
		row.counts[pop] = count
	}

	return row, nil
}

func normalizeResponse(raw string) (trial.Response, error) {
	switch strings.ToLower(raw) {
	case "yes", "y":
		return trial.ResponseYes, nil
	case "no", "n":
		return trial.ResponseNo, nil
	}
	return "", fmt.Errorf("unrecognized response %q", raw)
}

// mergeSubject reconciles a repeated subject row against the first-seen
// record. Identity fields must match exactly; optional fields must agree
// whenever both rows carry a value, and a value fills a prior null.
func mergeSubject(existing *trial.Subject, seen trial.Subject, line int) error {
	if existing.Project != seen.Project || existing.Condition != seen.Condition || existing.Treatment != seen.Treatment {
		return errors.DataError(fmt.Sprintf(
			"row %d: subject %s conflicts with earlier rows on project/condition/treatment", line, seen.ID))
	}
	if err := reconcileOptional(&existing.Age, seen.Age); err != nil {
		return errors.DataError(fmt.Sprintf("row %d: subject %s age conflicts with earlier rows", line, seen.ID))
	}
	if err := reconcileOptional(&existing.Sex, seen.Sex); err != nil {
		return errors.DataError(fmt.Sprintf("row %d: subject %s sex conflicts with earlier rows", line, seen.ID))
	}
	if err := reconcileOptional(&existing.Response, seen.Response); err != nil {
		return errors.DataError(fmt.Sprintf("row %d: subject %s response conflicts with earlier rows", line, seen.ID))
	}
	return nil
}

func reconcileOptional[T comparable](existing **T, seen *T) error {
	if seen == nil {
		return nil
	}
	if *existing == nil {
		v := *seen
		*existing = &v
		return nil
	}
	if **existing != *seen {
		return fmt.Errorf("conflicting values")
	}
	return nil
}
