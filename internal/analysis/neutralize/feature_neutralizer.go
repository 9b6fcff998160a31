package neutralize

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
	"eraeval/internal"
	"eraeval/internal/analysis/era"
	"eraeval/internal/analysis/rank"
	"eraeval/internal/telemetry"
)

// StageFeatureNeutralization labels diagnostics raised by this package
const StageFeatureNeutralization = "feature_neutralization"

// FeatureNeutralizer removes the linear feature exposure of a prediction
// column era by era and stores the result, min-max scaled, in a new column.
type FeatureNeutralizer struct {
	// Features to neutralize against; all feature columns when empty
	Features   []string
	Prediction string
	Proportion float64
	Suffix     string
	Workers    int
	Logger     *internal.Logger
}

// NewFeatureNeutralizer creates a neutralizer for the default prediction
// column. A proportion outside [0, 1] is rejected.
func NewFeatureNeutralizer(proportion float64) (*FeatureNeutralizer, error) {
	if err := ValidateProportion(proportion); err != nil {
		return nil, err
	}
	return &FeatureNeutralizer{Prediction: frame.PredictionPrefix, Proportion: proportion}, nil
}

// FormatParam renders a float the way column suffixes spell it: 0.5, 1.0, 0.25
func FormatParam(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// OutputColumn returns {prediction}_neutralized_{proportion}[_{suffix}]
func (f *FeatureNeutralizer) OutputColumn() string {
	name := fmt.Sprintf("%s_neutralized_%s", f.prediction(), FormatParam(f.Proportion))
	if f.Suffix != "" {
		name += "_" + f.Suffix
	}
	return name
}

func (f *FeatureNeutralizer) prediction() string {
	if f.Prediction == "" {
		return frame.PredictionPrefix
	}
	return f.Prediction
}

// Validate checks the proportion and the output column naming rule
func (f *FeatureNeutralizer) Validate() error {
	if err := ValidateProportion(f.Proportion); err != nil {
		return err
	}
	if !strings.HasPrefix(f.OutputColumn(), frame.PredictionPrefix) {
		return core.NewConfigurationError("output column", fmt.Sprintf("%q must start with %q", f.OutputColumn(), frame.PredictionPrefix))
	}
	return nil
}

// Transform returns a new table holding the neutralized column
func (f *FeatureNeutralizer) Transform(ctx context.Context, table *frame.Table) (*evaluation.TransformResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	logger := f.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	logger = logger.Named("FeatureNeutralizer")

	features := f.Features
	if len(features) == 0 {
		features = table.FeatureCols()
	}
	groups, err := era.FromTable(table)
	if err != nil {
		return nil, err
	}

	values, degenerate, err := Column(ctx, table, groups, f.prediction(), features, f.Proportion, f.Workers)
	if err != nil {
		return nil, err
	}

	column := f.OutputColumn()
	out, err := table.WithPredictionColumn(column, values)
	if err != nil {
		return nil, err
	}

	diags := make([]evaluation.Diagnostic, 0, len(degenerate))
	for _, d := range degenerate {
		logger.Warn("era %s of %s left unneutralized: %v", d.Era, f.prediction(), d.Reason)
		telemetry.DegenerateEra(StageFeatureNeutralization)
		diags = append(diags, evaluation.Diagnostic{
			Column:  column,
			Stage:   StageFeatureNeutralization,
			Era:     d.Era,
			Kind:    evaluation.DiagnosticDegenerateEra,
			Message: d.Reason.Error(),
		})
	}
	logger.Info("neutralized %s against %d features with proportion %s into %s",
		f.prediction(), len(features), FormatParam(f.Proportion), column)

	return &evaluation.TransformResult{Table: out, Column: column, Diagnostics: diags}, nil
}

// Column Gaussian-ranks a prediction within each era, neutralizes it against
// the feature columns and min-max scales the assembled column to [0, 1].
// Missing feature values are filled with rank.DefaultFill. Degenerate eras
// are NaN in the output and returned separately.
func Column(ctx context.Context, table *frame.Table, groups []era.Group, prediction string, features []string, proportion float64, workers int) ([]float64, []era.Degenerate, error) {
	if len(features) == 0 {
		return nil, nil, core.NewConfigurationError("features", "at least one feature column is required")
	}
	if err := ValidateProportion(proportion); err != nil {
		return nil, nil, err
	}
	filled, err := table.Impute(features, rank.DefaultFill)
	if err != nil {
		return nil, nil, err
	}

	type outcome struct {
		values []float64
		reason error
	}
	outcomes, err := era.Map(ctx, groups, workers, func(ctx context.Context, g era.Group) (outcome, error) {
		x, err := table.Gather(prediction, g.Rows)
		if err != nil {
			return outcome{}, err
		}
		data, err := filled.Matrix(features, g.Rows)
		if err != nil {
			return outcome{}, err
		}
		scores, err := rank.Gaussian(x)
		if err != nil {
			return outcome{}, err
		}
		neutral, err := Neutralize(scores, mat.NewDense(g.Len(), len(features), data), proportion)
		if err != nil {
			if core.IsDegenerateError(err) {
				return outcome{values: nanSlice(g.Len()), reason: err}, nil
			}
			return outcome{}, err
		}
		return outcome{values: neutral}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	parts := make([][]float64, len(groups))
	var degenerate []era.Degenerate
	for i, o := range outcomes {
		parts[i] = o.values
		if o.reason != nil {
			degenerate = append(degenerate, era.Degenerate{Era: groups[i].Era, Reason: o.reason})
		}
	}
	if len(degenerate) == len(groups) {
		return nil, degenerate, core.NewDegenerateEraError("", fmt.Sprintf("%s: all %d eras are degenerate", prediction, len(groups)))
	}

	values := era.Assemble(table.Len(), groups, parts)
	MinMaxScale(values)
	return values, degenerate, nil
}

// MinMaxScale maps the non-NaN values of x onto [0, 1] in place. A constant
// column maps to 0.
func MinMaxScale(x []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if math.IsInf(lo, 1) {
		return
	}
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if span == 0 {
			x[i] = 0
			continue
		}
		x[i] = (v - lo) / span
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
