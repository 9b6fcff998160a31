package penalize

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
	"eraeval/internal"
	"eraeval/internal/analysis/era"
	"eraeval/internal/analysis/neutralize"
	"eraeval/internal/analysis/rank"
	"eraeval/internal/telemetry"
)

// StageFeaturePenalization labels diagnostics raised by the penalizer
const StageFeaturePenalization = "feature_penalization"

// FeaturePenalizer caps the feature exposure of a prediction column era by
// era and stores the rescaled result in a new column.
type FeaturePenalizer struct {
	MaxExposure float64
	// Features to penalize against; all feature columns when empty
	Features      []string
	Prediction    string
	Suffix        string
	MaxIterations int
	// RankNormalize Gaussian-ranks each era's scores before fitting
	RankNormalize bool
	Workers       int
	Logger        *internal.Logger
}

// NewFeaturePenalizer creates a penalizer with rank normalization on. An
// exposure bound outside [0, 1] is rejected.
func NewFeaturePenalizer(maxExposure float64) (*FeaturePenalizer, error) {
	if err := ValidateMaxExposure(maxExposure); err != nil {
		return nil, err
	}
	return &FeaturePenalizer{
		MaxExposure:   maxExposure,
		Prediction:    frame.PredictionPrefix,
		MaxIterations: DefaultMaxIterations,
		RankNormalize: true,
	}, nil
}

func (f *FeaturePenalizer) prediction() string {
	if f.Prediction == "" {
		return frame.PredictionPrefix
	}
	return f.Prediction
}

// OutputColumn returns {prediction}_penalized_{max_exposure}[_{suffix}]
func (f *FeaturePenalizer) OutputColumn() string {
	name := fmt.Sprintf("%s_penalized_%s", f.prediction(), neutralize.FormatParam(f.MaxExposure))
	if f.Suffix != "" {
		name += "_" + f.Suffix
	}
	return name
}

// Validate checks the exposure bound and the output column naming rule
func (f *FeaturePenalizer) Validate() error {
	if err := ValidateMaxExposure(f.MaxExposure); err != nil {
		return err
	}
	if !strings.HasPrefix(f.OutputColumn(), frame.PredictionPrefix) {
		return core.NewConfigurationError("output column", fmt.Sprintf("%q must start with %q", f.OutputColumn(), frame.PredictionPrefix))
	}
	return nil
}

type eraFit struct {
	values []float64
	fit    *FitResult
	reason error
}

// Transform returns a new table holding the penalized column. Eras whose fit
// hit the iteration cap keep the best-effort result and are reported as
// non-converged; degenerate eras are NaN. Missing feature values are filled
// with rank.DefaultFill.
func (f *FeaturePenalizer) Transform(ctx context.Context, table *frame.Table) (*evaluation.TransformResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	logger := f.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	logger = logger.Named("FeaturePenalizer")

	features := f.Features
	if len(features) == 0 {
		features = table.FeatureCols()
	}
	if len(features) == 0 {
		return nil, core.NewConfigurationError("features", "at least one feature column is required")
	}
	optimizer, err := NewOptimizer(f.MaxExposure, f.MaxIterations)
	if err != nil {
		return nil, err
	}
	filled, err := table.Impute(features, rank.DefaultFill)
	if err != nil {
		return nil, err
	}
	groups, err := era.FromTable(table)
	if err != nil {
		return nil, err
	}

	fits, err := era.Map(ctx, groups, f.Workers, func(ctx context.Context, g era.Group) (eraFit, error) {
		return f.penalizeEra(filled, g, features, optimizer)
	})
	if err != nil {
		return nil, err
	}

	column := f.OutputColumn()
	parts := make([][]float64, len(groups))
	var diags []evaluation.Diagnostic
	degenerate := 0
	for i, ef := range fits {
		parts[i] = ef.values
		g := groups[i]
		switch {
		case ef.reason != nil:
			degenerate++
			logger.Warn("era %s of %s left unpenalized: %v", g.Era, f.prediction(), ef.reason)
			telemetry.DegenerateEra(StageFeaturePenalization)
			diags = append(diags, evaluation.Diagnostic{
				Column:  column,
				Stage:   StageFeaturePenalization,
				Era:     g.Era,
				Kind:    evaluation.DiagnosticDegenerateEra,
				Message: ef.reason.Error(),
			})
		case !ef.fit.Converged:
			logger.Warn("era %s of %s stopped after %d iterations with loss %.3g", g.Era, f.prediction(), ef.fit.Iterations, ef.fit.Loss)
			diags = append(diags, evaluation.Diagnostic{
				Column:  column,
				Stage:   StageFeaturePenalization,
				Era:     g.Era,
				Kind:    evaluation.DiagnosticNonConvergence,
				Message: fmt.Sprintf("%v after %d iterations, loss %.3g", core.ErrNonConvergence, ef.fit.Iterations, ef.fit.Loss),
			})
		default:
			logger.Debug("era %s converged in %d iterations", g.Era, ef.fit.Iterations)
		}
		if ef.fit != nil {
			telemetry.ObserveFit(ef.fit.Iterations, ef.fit.Converged)
		}
	}
	if degenerate == len(groups) {
		return nil, core.NewDegenerateEraError("", fmt.Sprintf("%s: all %d eras are degenerate", f.prediction(), len(groups)))
	}

	out, err := table.WithPredictionColumn(column, era.Assemble(table.Len(), groups, parts))
	if err != nil {
		return nil, err
	}
	logger.Info("penalized %s to max exposure %s over %d eras into %s",
		f.prediction(), neutralize.FormatParam(f.MaxExposure), len(groups), column)
	return &evaluation.TransformResult{Table: out, Column: column, Diagnostics: diags}, nil
}

func (f *FeaturePenalizer) penalizeEra(table *frame.Table, g era.Group, features []string, optimizer *Optimizer) (eraFit, error) {
	scores, err := table.Gather(f.prediction(), g.Rows)
	if err != nil {
		return eraFit{}, err
	}
	if f.RankNormalize {
		if scores, err = rank.Gaussian(scores); err != nil {
			return eraFit{}, err
		}
	}
	data, err := table.Matrix(features, g.Rows)
	if err != nil {
		return eraFit{}, err
	}

	fit, err := optimizer.Fit(scores, mat.NewDense(g.Len(), len(features), data))
	if err != nil {
		if core.IsDegenerateError(err) {
			return eraFit{values: nanSlice(g.Len()), reason: err}, nil
		}
		return eraFit{}, err
	}
	values, err := rescale(fit.Adjusted)
	if err != nil {
		return eraFit{values: nanSlice(g.Len()), fit: fit, reason: err}, nil
	}
	return eraFit{values: values, fit: fit}, nil
}

// rescale divides by the population std, then maps the era onto [0, 1]
func rescale(x []float64) ([]float64, error) {
	std, err := stats.StandardDeviationPopulation(x)
	if err != nil || std == 0 || math.IsNaN(std) {
		return nil, core.NewDegenerateEraError("", "penalized scores have zero variance")
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / std
	}
	lo, _ := stats.Min(out)
	for i := range out {
		out[i] -= lo
	}
	hi, _ := stats.Max(out)
	if hi == 0 {
		return nil, core.NewDegenerateEraError("", "penalized scores are constant")
	}
	for i := range out {
		out[i] /= hi
	}
	return out, nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
