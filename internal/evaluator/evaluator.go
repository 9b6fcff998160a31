// Package evaluator runs the metrics battery over every prediction column of
// a table and assembles the results into a report.
package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
	"eraeval/internal"
	"eraeval/internal/analysis/era"
	"eraeval/internal/analysis/metrics"
	"eraeval/internal/analysis/neutralize"
	"eraeval/internal/analysis/rank"
	"eraeval/internal/telemetry"
)

// DefaultTBSize is the top/bottom subset size when none is configured
const DefaultTBSize = 200

// Options configure an Evaluator
type Options struct {
	Settings evaluation.Settings
	// Workers bounds per-era parallelism; <= 0 uses every CPU
	Workers int
	Logger  *internal.Logger
}

// Evaluator computes metrics rows for prediction columns
type Evaluator struct {
	settings evaluation.Settings
	workers  int
	logger   *internal.Logger
}

// EvaluateRequest selects what to evaluate. Empty fields fall back to the
// evaluator settings and the table's column groups.
type EvaluateRequest struct {
	PredictionCols []string
	TargetCol      string
	ExampleCol     string
	Features       []string
}

// New validates the options and creates an evaluator
func New(opts Options) (*Evaluator, error) {
	s := opts.Settings
	if s.EraCol == "" {
		s.EraCol = frame.DefaultEraCol
	}
	if s.TBSize == 0 {
		s.TBSize = DefaultTBSize
	}
	if s.TBSize < 0 {
		return nil, core.NewConfigurationError("tb", fmt.Sprintf("must be at least 1, got %d", s.TBSize))
	}
	if s.TargetCol == "" {
		return nil, core.NewConfigurationError("target_col", "is required")
	}
	if s.ExampleCol == "" {
		return nil, core.NewConfigurationError("example_col", "is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Evaluator{settings: s, workers: opts.Workers, logger: logger.Named("Evaluator")}, nil
}

// Settings returns the validated settings
func (e *Evaluator) Settings() evaluation.Settings { return e.settings }

// plan is a request resolved against one table
type plan struct {
	settings    evaluation.Settings
	predictions []string
	features    []string
	table       *frame.Table
	scorer      *metrics.Scorer
}

func (e *Evaluator) resolve(table *frame.Table, req EvaluateRequest) (*plan, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: no table", core.ErrInsufficientData)
	}
	s := e.settings
	if req.TargetCol != "" {
		s.TargetCol = req.TargetCol
	}
	if req.ExampleCol != "" {
		s.ExampleCol = req.ExampleCol
	}
	if table.EraCol() != s.EraCol {
		return nil, core.NewConfigurationError("era_col", fmt.Sprintf("table is keyed by %q, evaluator expects %q", table.EraCol(), s.EraCol))
	}

	predictions := req.PredictionCols
	if len(predictions) == 0 {
		predictions = table.PredictionCols()
	}
	if len(predictions) == 0 {
		return nil, core.NewConfigurationError("prediction columns", "none given and the table has no prediction group")
	}
	for _, name := range append([]string{s.TargetCol, s.ExampleCol}, predictions...) {
		if !table.HasColumn(name) {
			return nil, core.NewColumnNotFoundError(name)
		}
	}

	features := req.Features
	if len(features) == 0 {
		features = table.FeatureCols()
	}
	if !s.FastMode && len(features) == 0 {
		return nil, core.NewConfigurationError("features", "full evaluation needs at least one feature column")
	}

	// missing predictions, example values and features all take the midpoint
	fill := append([]string{s.ExampleCol}, predictions...)
	imputed, err := table.Impute(append(fill, features...), rank.DefaultFill)
	if err != nil {
		return nil, err
	}
	scorer, err := metrics.NewScorer(imputed, e.workers)
	if err != nil {
		return nil, err
	}
	return &plan{settings: s, predictions: predictions, features: features, table: imputed, scorer: scorer}, nil
}

// FullEvaluation evaluates every requested prediction column in input order
func (e *Evaluator) FullEvaluation(ctx context.Context, table *frame.Table, req EvaluateRequest) (report *evaluation.Report, err error) {
	defer func() { telemetry.ObserveEvaluation(e.settings.FastMode, err) }()

	p, err := e.resolve(table, req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("evaluating %d prediction columns over %d eras against %s (fast=%t)",
		len(p.predictions), len(p.scorer.Groups()), p.settings.TargetCol, p.settings.FastMode)

	report = evaluation.NewReport(p.settings)
	report.InputHash = core.ComputeInputHash(table.Eras(), p.predictions, settingsMap(p.settings))
	for _, column := range p.predictions {
		row, diags, err := e.evaluate(ctx, p, column)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column, err)
		}
		report.Rows = append(report.Rows, row)
		report.Diagnostics = append(report.Diagnostics, diags...)
	}
	e.logger.Info("report %s ready with %d rows and %d diagnostics", report.ID, len(report.Rows), len(report.Diagnostics))
	return report, nil
}

// EvaluateColumn computes the metrics row for a single prediction column
func (e *Evaluator) EvaluateColumn(ctx context.Context, table *frame.Table, column string, req EvaluateRequest) (evaluation.MetricsRow, []evaluation.Diagnostic, error) {
	req.PredictionCols = []string{column}
	p, err := e.resolve(table, req)
	if err != nil {
		return evaluation.MetricsRow{}, nil, err
	}
	return e.evaluate(ctx, p, column)
}

// PerEraCorrelations returns the raw per-era correlation series of a column
func (e *Evaluator) PerEraCorrelations(ctx context.Context, table *frame.Table, column string) (frame.Series, error) {
	p, err := e.resolve(table, EvaluateRequest{PredictionCols: []string{column}})
	if err != nil {
		return nil, err
	}
	series, _, err := p.scorer.PerEraCorrelation(ctx, column, p.settings.TargetCol)
	return series, err
}

// PerEraTopBottom returns the per-era top/bottom correlation series of a
// column; tb <= 0 uses the configured size
func (e *Evaluator) PerEraTopBottom(ctx context.Context, table *frame.Table, column string, tb int) (frame.Series, error) {
	p, err := e.resolve(table, EvaluateRequest{PredictionCols: []string{column}})
	if err != nil {
		return nil, err
	}
	if tb <= 0 {
		tb = p.settings.TBSize
	}
	series, _, err := p.scorer.PerEraTopBottom(ctx, column, p.settings.TargetCol, tb)
	return series, err
}

// diagnostics collects per-era and ratio conditions for one column
type diagnostics struct {
	column string
	list   []evaluation.Diagnostic
}

func (d *diagnostics) eras(stage string, degenerate []era.Degenerate) {
	for _, dg := range degenerate {
		telemetry.DegenerateEra(stage)
		d.list = append(d.list, evaluation.Diagnostic{
			Column:  d.column,
			Stage:   stage,
			Era:     dg.Era,
			Kind:    evaluation.DiagnosticDegenerateEra,
			Message: dg.Reason.Error(),
		})
	}
}

func (d *diagnostics) ratio(stage string, value float64) {
	if !metrics.IsUndefined(value) {
		return
	}
	d.list = append(d.list, evaluation.Diagnostic{
		Column:  d.column,
		Stage:   stage,
		Kind:    evaluation.DiagnosticUndefinedRatio,
		Message: fmt.Sprintf("%v: sharpe is %v", core.ErrUndefinedRatio, value),
	})
}

func (e *Evaluator) evaluate(ctx context.Context, p *plan, column string) (evaluation.MetricsRow, []evaluation.Diagnostic, error) {
	start := time.Now()
	defer func() { telemetry.ObserveColumn(p.settings.FastMode, time.Since(start)) }()

	s := p.settings
	diags := &diagnostics{column: column}
	row := evaluation.MetricsRow{Column: column, Target: s.TargetCol}

	corrs, degenerate, err := p.scorer.PerEraCorrelation(ctx, column, s.TargetCol)
	diags.eras(metrics.StageCorrelation, degenerate)
	if err != nil {
		return row, diags.list, err
	}
	if row.Mean, row.Std, row.Sharpe, err = metrics.MeanStdSharpe(corrs); err != nil {
		return row, diags.list, err
	}
	diags.ratio(metrics.StageCorrelation, row.Sharpe)
	row.MaxDrawdown = metrics.MaxDrawdown(corrs)
	row.APY = metrics.APY(corrs)

	mmc, degenerate, err := p.scorer.MMC(ctx, column, s.TargetCol, s.ExampleCol)
	diags.eras(metrics.StageMMC, degenerate)
	if err != nil {
		return row, diags.list, err
	}
	row.MMCMean, row.MMCStd, row.MMCSharpe = mmc.Mean, mmc.Std, mmc.Sharpe
	diags.ratio(metrics.StageMMC, row.MMCSharpe)

	row.CorrWithExample, degenerate, err = p.scorer.ExampleCorrelation(ctx, column, s.ExampleCol)
	diags.eras(metrics.StageExampleCorrelation, degenerate)
	if err != nil {
		return row, diags.list, err
	}

	if !s.FastMode {
		ext := &evaluation.ExtendedMetrics{}
		ext.MaxFeatureExposure, degenerate, err = p.scorer.MaxFeatureExposure(ctx, column, p.features)
		diags.eras(metrics.StageFeatureExposure, degenerate)
		if err != nil {
			return row, diags.list, err
		}
		ext.FeatureNeutralMean, degenerate, err = p.scorer.FeatureNeutralMean(ctx, column, p.features)
		diags.eras(neutralize.StageFeatureNeutralization, degenerate)
		if err != nil {
			return row, diags.list, err
		}
		tb, degenerate, err := p.scorer.PerEraTopBottom(ctx, column, s.TargetCol, s.TBSize)
		diags.eras(metrics.StageTopBottom, degenerate)
		if err != nil {
			return row, diags.list, err
		}
		if ext.TBMean, ext.TBStd, ext.TBSharpe, err = metrics.MeanStdSharpe(tb); err != nil {
			return row, diags.list, err
		}
		diags.ratio(metrics.StageTopBottom, ext.TBSharpe)
		row.Extended = ext
	}

	for _, d := range diags.list {
		e.logger.Warn("%s", d)
	}
	e.logger.Debug("%s: mean %.4f sharpe %.4f in %s", column, row.Mean, row.Sharpe, time.Since(start))
	return row, diags.list, nil
}

func settingsMap(s evaluation.Settings) map[string]string {
	return map[string]string{
		"era_col":     s.EraCol,
		"target_col":  s.TargetCol,
		"example_col": s.ExampleCol,
		"fast_mode":   strconv.FormatBool(s.FastMode),
		"tb":          strconv.Itoa(s.TBSize),
	}
}
