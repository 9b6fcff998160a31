package api

import (
	"fmt"
	"math"
	"time"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
)

// ColumnDTO is one numeric column; null entries are missing values
type ColumnDTO struct {
	Name   string     `json:"name" validate:"required"`
	Values []*float64 `json:"values" validate:"required"`
}

// TableDTO is the wire form of a tournament table. Column groups are
// inferred from the feature/prediction/target name prefixes.
type TableDTO struct {
	EraCol  string      `json:"era_col,omitempty"`
	Eras    []string    `json:"eras" validate:"required,min=1,dive,required"`
	Columns []ColumnDTO `json:"columns" validate:"required,min=1,dive"`
}

// EvaluateRequest asks for a full evaluation. Omitted fields use the server
// configuration.
type EvaluateRequest struct {
	Table       TableDTO `json:"table"`
	Predictions []string `json:"predictions,omitempty"`
	TargetCol   string   `json:"target_col,omitempty"`
	ExampleCol  string   `json:"example_col,omitempty"`
	Features    []string `json:"features,omitempty"`
	FastMode    *bool    `json:"fast_mode,omitempty"`
	TBSize      *int     `json:"tb,omitempty" validate:"omitempty,min=1"`
	// Save stores the report when a repository is configured
	Save bool `json:"save,omitempty"`
}

// NeutralizeRequest runs the feature neutralizer on one prediction column
type NeutralizeRequest struct {
	Table      TableDTO `json:"table"`
	Prediction string   `json:"prediction,omitempty"`
	Features   []string `json:"features,omitempty"`
	Proportion *float64 `json:"proportion,omitempty" validate:"omitempty,gte=0,lte=1"`
	Suffix     string   `json:"suffix,omitempty"`
}

// PenalizeRequest runs the feature penalizer on one prediction column
type PenalizeRequest struct {
	Table         TableDTO `json:"table"`
	Prediction    string   `json:"prediction,omitempty"`
	Features      []string `json:"features,omitempty"`
	MaxExposure   *float64 `json:"max_exposure,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxIterations int      `json:"max_iterations,omitempty" validate:"omitempty,min=1"`
	RankNormalize *bool    `json:"rank_normalize,omitempty"`
	Suffix        string   `json:"suffix,omitempty"`
}

// TransformResponse carries the column a post-processor produced
type TransformResponse struct {
	Column      string                  `json:"column"`
	Eras        []string                `json:"eras"`
	Values      []*float64              `json:"values"`
	Diagnostics []evaluation.Diagnostic `json:"diagnostics"`
}

// RowDTO is a metrics row with named metric values; non-finite values are null
type RowDTO struct {
	Column  string              `json:"column"`
	Target  string              `json:"target"`
	Metrics map[string]*float64 `json:"metrics"`
}

// ReportDTO is the wire form of an evaluation report
type ReportDTO struct {
	ID          core.ID                 `json:"id"`
	CreatedAt   time.Time               `json:"created_at"`
	InputHash   core.Hash               `json:"input_hash"`
	Settings    evaluation.Settings     `json:"settings"`
	Rows        []RowDTO                `json:"rows"`
	Diagnostics []evaluation.Diagnostic `json:"diagnostics"`
	Saved       bool                    `json:"saved"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finiteSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = finite(v)
	}
	return out
}

// ToTable builds a frame.Table from the wire form
func (t TableDTO) ToTable() (*frame.Table, error) {
	table, err := frame.NewTable(t.EraCol, t.Eras)
	if err != nil {
		return nil, err
	}
	for _, col := range t.Columns {
		if len(col.Values) != len(t.Eras) {
			return nil, core.NewLengthMismatchError(fmt.Sprintf("column %q", col.Name), len(t.Eras), len(col.Values))
		}
		values := make([]float64, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				values[i] = math.NaN()
				continue
			}
			values[i] = *v
		}
		if err := table.AddColumn(col.Name, values); err != nil {
			return nil, err
		}
	}
	table.InferGroups()
	return table, nil
}

// NewTableDTO converts a table to its wire form
func NewTableDTO(table *frame.Table) (TableDTO, error) {
	dto := TableDTO{EraCol: table.EraCol(), Eras: table.Eras()}
	for _, name := range table.Columns() {
		values, err := table.Column(name)
		if err != nil {
			return TableDTO{}, err
		}
		dto.Columns = append(dto.Columns, ColumnDTO{Name: name, Values: finiteSlice(values)})
	}
	return dto, nil
}

// NewReportDTO converts a report for the wire
func NewReportDTO(report *evaluation.Report) ReportDTO {
	header := report.Header()[1:]
	rows := make([]RowDTO, len(report.Rows))
	for i, r := range report.Rows {
		metrics := make(map[string]*float64, len(header))
		for j, v := range r.Values() {
			if j < len(header) {
				metrics[header[j]] = finite(v)
			}
		}
		rows[i] = RowDTO{Column: r.Column, Target: r.Target, Metrics: metrics}
	}
	diags := report.Diagnostics
	if diags == nil {
		diags = []evaluation.Diagnostic{}
	}
	return ReportDTO{
		ID:          report.ID,
		CreatedAt:   report.CreatedAt,
		InputHash:   report.InputHash,
		Settings:    report.Settings,
		Rows:        rows,
		Diagnostics: diags,
	}
}
