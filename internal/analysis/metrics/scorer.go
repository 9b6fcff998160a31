package metrics

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"eraeval/domain/core"
	"eraeval/domain/frame"
	"eraeval/internal/analysis/era"
	"eraeval/internal/analysis/neutralize"
	"eraeval/internal/analysis/rank"
)

// BenchmarkVolatility normalizes MMC covariances (divided by its square)
const BenchmarkVolatility = 0.29

// Stage names for per-era degeneracies
const (
	StageCorrelation        = "correlation"
	StageExampleCorrelation = "example_correlation"
	StageTopBottom          = "top_bottom"
	StageMMC                = "mmc"
	StageFeatureExposure    = "feature_exposure"
)

// Scorer computes per-era metrics over one partitioned table. It only
// reads the table, so a Scorer can serve many columns concurrently.
type Scorer struct {
	table   *frame.Table
	groups  []era.Group
	workers int
}

// NewScorer partitions the table by era once for all metric passes
func NewScorer(table *frame.Table, workers int) (*Scorer, error) {
	groups, err := era.FromTable(table)
	if err != nil {
		return nil, err
	}
	return &Scorer{table: table, groups: groups, workers: workers}, nil
}

// Groups returns the era partitions in evaluation order
func (s *Scorer) Groups() []era.Group { return s.groups }

// gatherPair returns the uniform-ranked prediction and the raw other column
// for one era
func (s *Scorer) gatherPair(g era.Group, pred, other string) ([]float64, []float64, error) {
	p, err := s.table.Gather(pred, g.Rows)
	if err != nil {
		return nil, nil, err
	}
	u, err := rank.Uniform(p)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.table.Gather(other, g.Rows)
	if err != nil {
		return nil, nil, err
	}
	return u, o, nil
}

// PerEraCorrelation is Pearson(Uniform(pred), target) for every era
func (s *Scorer) PerEraCorrelation(ctx context.Context, pred, target string) (frame.Series, []era.Degenerate, error) {
	return era.Series(ctx, s.groups, s.workers, func(_ context.Context, g era.Group) (float64, error) {
		u, t, err := s.gatherPair(g, pred, target)
		if err != nil {
			return 0, err
		}
		return Pearson(u, t)
	})
}

// ExampleCorrelation averages the per-era correlation of the prediction
// with the example column
func (s *Scorer) ExampleCorrelation(ctx context.Context, pred, example string) (float64, []era.Degenerate, error) {
	series, degenerate, err := s.PerEraCorrelation(ctx, pred, example)
	if err != nil {
		return math.NaN(), degenerate, err
	}
	return Mean(series), degenerate, nil
}

// PerEraTopBottom is TopBottomCorrelation of the raw predictions for every era
func (s *Scorer) PerEraTopBottom(ctx context.Context, pred, target string, tb int) (frame.Series, []era.Degenerate, error) {
	if tb < 1 {
		return nil, nil, core.NewConfigurationError("tb", fmt.Sprintf("must be at least 1, got %d", tb))
	}
	return era.Series(ctx, s.groups, s.workers, func(_ context.Context, g era.Group) (float64, error) {
		p, err := s.table.Gather(pred, g.Rows)
		if err != nil {
			return 0, err
		}
		t, err := s.table.Gather(target, g.Rows)
		if err != nil {
			return 0, err
		}
		return TopBottomCorrelation(p, t, tb)
	})
}

// MMCResult summarizes meta-model contribution over the eras
type MMCResult struct {
	Mean   float64
	Std    float64
	Sharpe float64
	// Series is the per-era MMC; NaN where the era was degenerate
	Series frame.Series
}

// MMC neutralizes the uniform prediction against the example column in each
// era, takes its sample covariance with the target over 0.29², and reports
// the mean and population std of that series with the Sharpe of corr + MMC.
func (s *Scorer) MMC(ctx context.Context, pred, target, example string) (*MMCResult, []era.Degenerate, error) {
	type eraScore struct {
		mmc, corr float64
	}
	scores := make([]eraScore, len(s.groups))
	position := make(map[string]int, len(s.groups))
	for i, g := range s.groups {
		position[g.Era] = i
	}

	series, degenerate, err := era.Series(ctx, s.groups, s.workers, func(_ context.Context, g era.Group) (float64, error) {
		u, ex, err := s.gatherPair(g, pred, example)
		if err != nil {
			return 0, err
		}
		t, err := s.table.Gather(target, g.Rows)
		if err != nil {
			return 0, err
		}
		residual, err := neutralize.Residual(u, mat.NewDense(g.Len(), 1, ex), 1.0)
		if err != nil {
			return 0, err
		}
		cov, err := Covariance(residual, t)
		if err != nil {
			return 0, err
		}
		corr, err := Pearson(u, t)
		if err != nil {
			return 0, err
		}
		mmc := cov / (BenchmarkVolatility * BenchmarkVolatility)
		scores[position[g.Era]] = eraScore{mmc: mmc, corr: corr}
		return mmc, nil
	})
	if err != nil {
		return nil, degenerate, err
	}

	combined := make(frame.Series, len(series))
	for i, p := range series {
		v := math.NaN()
		if !math.IsNaN(p.Value) {
			v = scores[i].corr + scores[i].mmc
		}
		combined[i] = frame.Point{Era: p.Era, Value: v}
	}

	mean, std, _, err := MeanStdSharpe(series)
	if err != nil {
		return nil, degenerate, err
	}
	_, _, sharpe, err := MeanStdSharpe(combined)
	if err != nil {
		return nil, degenerate, err
	}
	return &MMCResult{Mean: mean, Std: std, Sharpe: sharpe, Series: series}, degenerate, nil
}

// MaxFeatureExposure takes, per era, the largest absolute correlation of the
// raw prediction with any feature and averages it over the eras. Constant
// features are skipped; an era where every feature is constant is degenerate.
func (s *Scorer) MaxFeatureExposure(ctx context.Context, pred string, features []string) (float64, []era.Degenerate, error) {
	if len(features) == 0 {
		return math.NaN(), nil, core.NewConfigurationError("features", "at least one feature column is required")
	}
	series, degenerate, err := era.Series(ctx, s.groups, s.workers, func(_ context.Context, g era.Group) (float64, error) {
		p, err := s.table.Gather(pred, g.Rows)
		if err != nil {
			return 0, err
		}
		worst := math.NaN()
		for _, name := range features {
			f, err := s.table.Gather(name, g.Rows)
			if err != nil {
				return 0, err
			}
			corr, err := Pearson(p, f)
			if err != nil {
				if core.IsDegenerateError(err) {
					continue
				}
				return 0, err
			}
			if math.IsNaN(worst) || math.Abs(corr) > worst {
				worst = math.Abs(corr)
			}
		}
		if math.IsNaN(worst) {
			return 0, core.NewDegenerateEraError(g.Era, "no feature has a defined correlation with the prediction")
		}
		return worst, nil
	})
	if err != nil {
		return math.NaN(), degenerate, err
	}
	return Mean(series), degenerate, nil
}

// FeatureNeutralMean is the mean of the fully feature-neutralized,
// min-max scaled prediction column
func (s *Scorer) FeatureNeutralMean(ctx context.Context, pred string, features []string) (float64, []era.Degenerate, error) {
	values, degenerate, err := neutralize.Column(ctx, s.table, s.groups, pred, features, 1.0, s.workers)
	if err != nil {
		return math.NaN(), degenerate, err
	}
	sum, n := 0.0, 0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	return sum / float64(n), degenerate, nil
}
