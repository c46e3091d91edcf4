package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/pkg/errors"
)

// LoadOptions controls CSV loading.
type LoadOptions struct {
	// SMILESColumn names the structure column; defaults to "smiles"
	// (case-insensitive match).
	SMILESColumn string

	// TaskColumns names the label columns.  Empty selects every column
	// except the SMILES column and any ignored columns.
	TaskColumns []string

	// IgnoreColumns are skipped when TaskColumns is empty.  Identifier
	// columns like "mol_id" belong here.
	IgnoreColumns []string
}

// LoadCSV reads a molecular property dataset from a CSV file.  Empty label
// cells become weight-0 entries; any non-zero numeric label is treated as
// the positive class.
func LoadCSV(path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetLoadFailed, "failed to open dataset file")
	}
	defer f.Close()

	d, err := ReadCSV(f, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to read "+path)
	}
	return d, nil
}

// ReadCSV parses CSV dataset content from r.
func ReadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetSchema, "failed to read CSV header")
	}

	smilesCol, err := findColumn(header, opts.SMILESColumn, "smiles")
	if err != nil {
		return nil, err
	}

	taskCols, tasks, err := resolveTaskColumns(header, smilesCol, opts)
	if err != nil {
		return nil, err
	}

	var (
		smiles     []string
		labelRows  [][]float64
		weightRows [][]float64
	)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeDatasetSchema,
				"failed to read CSV line %d", line)
		}

		s := strings.TrimSpace(record[smilesCol])
		if s == "" {
			continue
		}

		labels := make([]float64, len(taskCols))
		weights := make([]float64, len(taskCols))
		for ti, col := range taskCols {
			cell := strings.TrimSpace(record[col])
			if cell == "" {
				continue // missing label, weight stays 0
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrCodeLabelParseFailed,
					"line %d column %q: invalid label %q", line, tasks[ti], cell)
			}
			if v != 0 {
				labels[ti] = 1
			}
			weights[ti] = 1
		}

		smiles = append(smiles, s)
		labelRows = append(labelRows, labels)
		weightRows = append(weightRows, weights)
	}

	if len(smiles) == 0 {
		return nil, errors.New(errors.ErrCodeDatasetEmpty, "dataset contains no rows")
	}

	d := &Dataset{
		Tasks:   tasks,
		SMILES:  smiles,
		Labels:  mat.NewDense(len(smiles), len(tasks), nil),
		Weights: mat.NewDense(len(smiles), len(tasks), nil),
	}
	for i := range smiles {
		d.Labels.SetRow(i, labelRows[i])
		d.Weights.SetRow(i, weightRows[i])
	}
	return d, nil
}

// findColumn locates a header column by name, case-insensitively.
func findColumn(header []string, name, fallback string) (int, error) {
	want := name
	if want == "" {
		want = fallback
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), want) {
			return i, nil
		}
	}
	return 0, errors.Newf(errors.ErrCodeDatasetSchema,
		"dataset has no %q column (header: %s)", want, strings.Join(header, ","))
}

// resolveTaskColumns maps the configured task names (or, by default, every
// remaining column) to header indices.
func resolveTaskColumns(header []string, smilesCol int, opts LoadOptions) ([]int, []string, error) {
	ignored := make(map[string]bool, len(opts.IgnoreColumns))
	for _, c := range opts.IgnoreColumns {
		ignored[strings.ToLower(c)] = true
	}

	if len(opts.TaskColumns) > 0 {
		cols := make([]int, 0, len(opts.TaskColumns))
		for _, name := range opts.TaskColumns {
			idx, err := findColumn(header, name, "")
			if err != nil {
				return nil, nil, err
			}
			cols = append(cols, idx)
		}
		return cols, opts.TaskColumns, nil
	}

	var cols []int
	var tasks []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == smilesCol || ignored[strings.ToLower(h)] {
			continue
		}
		cols = append(cols, i)
		tasks = append(tasks, h)
	}
	if len(cols) == 0 {
		return nil, nil, errors.New(errors.ErrCodeDatasetSchema, "dataset has no task columns")
	}
	return cols, tasks, nil
}
