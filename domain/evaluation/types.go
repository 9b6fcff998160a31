package evaluation

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"eraeval/domain/core"
	"eraeval/domain/frame"
)

// Settings are the recognized evaluation options recorded on every report
type Settings struct {
	EraCol     string `json:"era_col" yaml:"era_col"`
	TargetCol  string `json:"target_col" yaml:"target_col"`
	ExampleCol string `json:"example_col" yaml:"example_col"`
	FastMode   bool   `json:"fast_mode" yaml:"fast_mode"`
	TBSize     int    `json:"tb" yaml:"tb"`
}

// ExtendedMetrics are the expensive metrics skipped in fast mode
type ExtendedMetrics struct {
	MaxFeatureExposure float64 `json:"max_feature_exposure"`
	FeatureNeutralMean float64 `json:"feature_neutral_mean"`
	TBMean             float64 `json:"tb_mean"`
	TBStd              float64 `json:"tb_std"`
	TBSharpe           float64 `json:"tb_sharpe"`
}

// MetricsRow is the fixed-shape result for one prediction column.
// Assembled once per evaluation call and never mutated afterwards.
type MetricsRow struct {
	Column          string           `json:"column"`
	Target          string           `json:"target"`
	Mean            float64          `json:"mean"`
	Std             float64          `json:"std"`
	Sharpe          float64          `json:"sharpe"`
	MaxDrawdown     float64          `json:"max_drawdown"`
	APY             float64          `json:"apy"`
	MMCMean         float64          `json:"mmc_mean"`
	MMCStd          float64          `json:"mmc_std"`
	MMCSharpe       float64          `json:"mmc_sharpe"`
	CorrWithExample float64          `json:"corr_with_example"`
	Extended        *ExtendedMetrics `json:"extended,omitempty"`
}

// DiagnosticKind classifies a recoverable numerical condition
type DiagnosticKind string

const (
	DiagnosticDegenerateEra  DiagnosticKind = "degenerate_era"
	DiagnosticNonConvergence DiagnosticKind = "non_convergence"
	DiagnosticUndefinedRatio DiagnosticKind = "undefined_ratio"
)

// Diagnostic records a per-era condition that was handled locally
type Diagnostic struct {
	Column  string         `json:"column"`
	Stage   string         `json:"stage"`
	Era     string         `json:"era,omitempty"`
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Era == "" {
		return fmt.Sprintf("%s/%s: %s (%s)", d.Column, d.Stage, d.Message, d.Kind)
	}
	return fmt.Sprintf("%s/%s era %s: %s (%s)", d.Column, d.Stage, d.Era, d.Message, d.Kind)
}

// Report is the artifact returned by a full evaluation
type Report struct {
	ID          core.ID      `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	InputHash   core.Hash    `json:"input_hash"`
	Settings    Settings     `json:"settings"`
	Rows        []MetricsRow `json:"rows"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// NewReport creates an empty report stamped with a fresh ID
func NewReport(settings Settings) *Report {
	return &Report{
		ID:        core.NewID(),
		CreatedAt: time.Now().UTC(),
		Settings:  settings,
	}
}

// Row returns the metrics row for a prediction column
func (r *Report) Row(column string) (MetricsRow, bool) {
	for _, row := range r.Rows {
		if row.Column == column {
			return row, true
		}
	}
	return MetricsRow{}, false
}

// Header returns the tabular metric-column names in output order
func (r *Report) Header() []string {
	header := []string{
		"target", "mean", "std", "sharpe", "max_drawdown", "apy",
		"mmc_mean", "mmc_std", "mmc_sharpe", "corr_with_example",
	}
	if r.Settings.FastMode {
		return header
	}
	tb := fmt.Sprintf("tb%d", r.Settings.TBSize)
	return append(header,
		"max_feature_exposure", "feature_neutral_mean",
		tb+"_mean", tb+"_std", tb+"_sharpe",
	)
}

// Values returns the numeric metrics in Header order (without target)
func (row MetricsRow) Values() []float64 {
	values := []float64{
		row.Mean, row.Std, row.Sharpe, row.MaxDrawdown, row.APY,
		row.MMCMean, row.MMCStd, row.MMCSharpe, row.CorrWithExample,
	}
	if row.Extended == nil {
		return values
	}
	e := row.Extended
	return append(values, e.MaxFeatureExposure, e.FeatureNeutralMean, e.TBMean, e.TBStd, e.TBSharpe)
}

// Number of metrics in Values for fast and full rows
const (
	baseMetricCount     = 9
	extendedMetricCount = 14
)

// RowFromValues rebuilds a row from numbers in Values order. Nine values
// make a fast-mode row, fourteen a full one.
func RowFromValues(column, target string, values []float64) (MetricsRow, error) {
	if len(values) != baseMetricCount && len(values) != extendedMetricCount {
		return MetricsRow{}, core.NewLengthMismatchError("metrics row", extendedMetricCount, len(values))
	}
	v := values
	row := MetricsRow{
		Column: column, Target: target,
		Mean: v[0], Std: v[1], Sharpe: v[2], MaxDrawdown: v[3], APY: v[4],
		MMCMean: v[5], MMCStd: v[6], MMCSharpe: v[7], CorrWithExample: v[8],
	}
	if len(v) == extendedMetricCount {
		row.Extended = &ExtendedMetrics{
			MaxFeatureExposure: v[9], FeatureNeutralMean: v[10],
			TBMean: v[11], TBStd: v[12], TBSharpe: v[13],
		}
	}
	return row, nil
}

// FormatValue renders a metric for tabular output; non-finite values keep
// their IEEE names so sentinels survive export
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return fmt.Sprintf("%.6f", v)
}

// ParseValue reads a value written by FormatValue or any float literal
func ParseValue(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "+Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

// TransformResult is a post-processed table, the column it added and the
// eras that could not be processed
type TransformResult struct {
	Table       *frame.Table
	Column      string
	Diagnostics []Diagnostic
}
