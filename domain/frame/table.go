package frame

import (
	"fmt"
	"math"
	"strings"

	"eraeval/domain/core"
)

// Column name conventions used by the tournament data files
const (
	DefaultEraCol    = "era"
	FeaturePrefix    = "feature"
	PredictionPrefix = "prediction"
	TargetPrefix     = "target"
)

// ColumnGroups names the feature, prediction and target columns of a table
type ColumnGroups struct {
	Features    []string `json:"features"`
	Predictions []string `json:"predictions"`
	Targets     []string `json:"targets"`
}

func (g ColumnGroups) clone() ColumnGroups {
	return ColumnGroups{
		Features:    append([]string(nil), g.Features...),
		Predictions: append([]string(nil), g.Predictions...),
		Targets:     append([]string(nil), g.Targets...),
	}
}

// Table is a rectangular column store with an era label per row.
//
// Column slices handed out by Column are shared with the table and must be
// treated as read-only. Transforms produce new tables via WithColumn.
type Table struct {
	eraCol  string
	eras    []string
	names   []string
	columns map[string][]float64
	groups  ColumnGroups
}

// NewTable creates a table with one era label per row
func NewTable(eraCol string, eras []string) (*Table, error) {
	if eraCol == "" {
		eraCol = DefaultEraCol
	}
	if len(eras) == 0 {
		return nil, fmt.Errorf("%w: table needs at least one row", core.ErrInsufficientData)
	}
	for i, e := range eras {
		if strings.TrimSpace(e) == "" {
			return nil, fmt.Errorf("%w: row %d has no era label", core.ErrMissingValues, i)
		}
	}
	return &Table{
		eraCol:  eraCol,
		eras:    append([]string(nil), eras...),
		columns: make(map[string][]float64),
	}, nil
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.eras) }

// EraCol returns the name of the era column
func (t *Table) EraCol() string { return t.eraCol }

// Eras returns the era label of every row. The slice is shared.
func (t *Table) Eras() []string { return t.eras }

// Columns returns the numeric column names in insertion order
func (t *Table) Columns() []string { return append([]string(nil), t.names...) }

// HasColumn reports whether a numeric column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns the values of a numeric column. The slice is shared.
func (t *Table) Column(name string) ([]float64, error) {
	values, ok := t.columns[name]
	if !ok {
		return nil, core.NewColumnNotFoundError(name)
	}
	return values, nil
}

// AddColumn stores a column while the table is being assembled.
// An existing column with the same name is replaced.
func (t *Table) AddColumn(name string, values []float64) error {
	if name == "" {
		return fmt.Errorf("%w: empty column name", core.ErrInvalidConfiguration)
	}
	if name == t.eraCol {
		return fmt.Errorf("%w: %q is the era column", core.ErrInvalidConfiguration, name)
	}
	if len(values) != len(t.eras) {
		return core.NewLengthMismatchError("column "+name, len(t.eras), len(values))
	}
	if _, exists := t.columns[name]; !exists {
		t.names = append(t.names, name)
	}
	t.columns[name] = values
	return nil
}

// Clone returns a shallow copy: column slices are shared, the column index is not
func (t *Table) Clone() *Table {
	cols := make(map[string][]float64, len(t.columns))
	for k, v := range t.columns {
		cols[k] = v
	}
	return &Table{
		eraCol:  t.eraCol,
		eras:    t.eras,
		names:   append([]string(nil), t.names...),
		columns: cols,
		groups:  t.groups.clone(),
	}
}

// WithColumn returns a new table with the column added or replaced
func (t *Table) WithColumn(name string, values []float64) (*Table, error) {
	out := t.Clone()
	if err := out.AddColumn(name, values); err != nil {
		return nil, err
	}
	return out, nil
}

// WithColumns returns a new table with every named column added or replaced
func (t *Table) WithColumns(names []string, values [][]float64) (*Table, error) {
	if len(names) != len(values) {
		return nil, core.NewLengthMismatchError("column values", len(names), len(values))
	}
	out := t.Clone()
	for i, name := range names {
		if err := out.AddColumn(name, values[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WithPredictionColumn returns a new table with the column added and
// registered as a prediction column
func (t *Table) WithPredictionColumn(name string, values []float64) (*Table, error) {
	out, err := t.WithColumn(name, values)
	if err != nil {
		return nil, err
	}
	if !contains(out.groups.Predictions, name) {
		out.groups.Predictions = append(out.groups.Predictions, name)
	}
	return out, nil
}

// Groups returns a copy of the column groups
func (t *Table) Groups() ColumnGroups { return t.groups.clone() }

// FeatureCols returns the feature column names
func (t *Table) FeatureCols() []string { return append([]string(nil), t.groups.Features...) }

// PredictionCols returns the prediction column names
func (t *Table) PredictionCols() []string { return append([]string(nil), t.groups.Predictions...) }

// TargetCols returns the target column names
func (t *Table) TargetCols() []string { return append([]string(nil), t.groups.Targets...) }

// SetGroups assigns column groups after checking every name exists
func (t *Table) SetGroups(groups ColumnGroups) error {
	for _, list := range [][]string{groups.Features, groups.Predictions, groups.Targets} {
		for _, name := range list {
			if !t.HasColumn(name) {
				return core.NewColumnNotFoundError(name)
			}
		}
	}
	t.groups = groups.clone()
	return nil
}

// InferGroups classifies columns by the feature/prediction/target prefixes
func (t *Table) InferGroups() {
	var groups ColumnGroups
	for _, name := range t.names {
		lower := strings.ToLower(name)
		switch {
		case strings.HasPrefix(lower, FeaturePrefix):
			groups.Features = append(groups.Features, name)
		case strings.HasPrefix(lower, PredictionPrefix):
			groups.Predictions = append(groups.Predictions, name)
		case strings.HasPrefix(lower, TargetPrefix):
			groups.Targets = append(groups.Targets, name)
		}
	}
	t.groups = groups
}

// Gather copies the values of a column at the given row indices
func (t *Table) Gather(name string, rows []int) ([]float64, error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out, nil
}

// Matrix gathers several columns at the given rows into a row-major
// len(rows)×len(names) slice
func (t *Table) Matrix(names []string, rows []int) ([]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		values, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = values
	}
	k := len(names)
	out := make([]float64, len(rows)*k)
	for i, r := range rows {
		for j := range cols {
			out[i*k+j] = cols[j][r]
		}
	}
	return out, nil
}

// Impute returns a new table where NaN values of the named columns are
// replaced by fill
func (t *Table) Impute(names []string, fill float64) (*Table, error) {
	out := t.Clone()
	for _, name := range names {
		values, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if !hasNaN(values) {
			continue
		}
		filled := make([]float64, len(values))
		for i, v := range values {
			if math.IsNaN(v) {
				v = fill
			}
			filled[i] = v
		}
		out.columns[name] = filled
	}
	return out, nil
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
