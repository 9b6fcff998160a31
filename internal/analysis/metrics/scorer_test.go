package metrics

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eraeval/domain/core"
	"eraeval/domain/frame"
)

// grid returns (i+0.5)/n, which is its own uniform rank transform
func grid(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (float64(i) + 0.5) / float64(n)
	}
	return out
}

func reversed(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[len(x)-1-i] = v
	}
	return out
}

func fill(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// twoEraTable has a prediction that tracks the target in era 1 and is
// reversed in era 2
func twoEraTable(t *testing.T) *frame.Table {
	t.Helper()
	eras := append(make([]string, 0, 20), fillLabels("1", 10)...)
	eras = append(eras, fillLabels("2", 10)...)
	table, err := frame.NewTable("era", eras)
	require.NoError(t, err)

	g := grid(10)
	require.NoError(t, table.AddColumn("prediction", append(append([]float64{}, g...), g...)))
	require.NoError(t, table.AddColumn("target", append(append([]float64{}, g...), reversed(g)...)))
	require.NoError(t, table.AddColumn("example_preds", fill(0.5, 20)))
	require.NoError(t, table.AddColumn("feature_same", append(append([]float64{}, g...), g...)))
	require.NoError(t, table.AddColumn("feature_flat", fill(0.25, 20)))
	table.InferGroups()
	return table
}

func fillLabels(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func TestScorerPerEraCorrelation(t *testing.T) {
	s, err := NewScorer(twoEraTable(t), 2)
	require.NoError(t, err)
	require.Len(t, s.Groups(), 2)

	corrs, degenerate, err := s.PerEraCorrelation(context.Background(), "prediction", "target")
	require.NoError(t, err)
	assert.Empty(t, degenerate)
	assert.Equal(t, []string{"1", "2"}, corrs.Eras())
	assert.InDelta(t, 1, corrs[0].Value, 1e-12)
	assert.InDelta(t, -1, corrs[1].Value, 1e-12)

	_, _, err = s.PerEraCorrelation(context.Background(), "prediction", "missing")
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestScorerDegenerateTargetEra(t *testing.T) {
	table := twoEraTable(t)
	target, err := table.Column("target")
	require.NoError(t, err)
	flat := append(append([]float64{}, target[:10]...), fill(0.5, 10)...)
	table, err = table.WithColumn("target", flat)
	require.NoError(t, err)

	s, err := NewScorer(table, 1)
	require.NoError(t, err)
	corrs, degenerate, err := s.PerEraCorrelation(context.Background(), "prediction", "target")
	require.NoError(t, err)
	require.Len(t, degenerate, 1)
	assert.Equal(t, "2", degenerate[0].Era)
	assert.True(t, math.IsNaN(corrs[1].Value))
	assert.Equal(t, []float64{corrs[0].Value}, corrs.Valid())
}

func TestScorerTopBottom(t *testing.T) {
	s, err := NewScorer(twoEraTable(t), 0)
	require.NoError(t, err)

	tb, _, err := s.PerEraTopBottom(context.Background(), "prediction", "target", 3)
	require.NoError(t, err)
	assert.InDelta(t, 1, tb[0].Value, 1e-12)
	assert.InDelta(t, -1, tb[1].Value, 1e-12)

	_, _, err = s.PerEraTopBottom(context.Background(), "prediction", "target", 0)
	assert.True(t, core.IsConfigurationError(err))
}

func TestScorerMMCAgainstFlatExample(t *testing.T) {
	s, err := NewScorer(twoEraTable(t), 2)
	require.NoError(t, err)

	res, degenerate, err := s.MMC(context.Background(), "prediction", "target", "example_preds")
	require.NoError(t, err)
	assert.Empty(t, degenerate)

	// a constant example removes only the level, leaving the sample
	// covariance of the grid with itself
	variance := 82.5 / 100 / 9
	mmc := variance / (BenchmarkVolatility * BenchmarkVolatility)
	assert.InDelta(t, mmc, res.Series[0].Value, 1e-9)
	assert.InDelta(t, -mmc, res.Series[1].Value, 1e-9)
	assert.InDelta(t, 0, res.Mean, 1e-9)
	assert.InDelta(t, mmc, res.Std, 1e-9)

	// corr + mmc is ±(1 + mmc): mean 0, so the ratio is 0
	assert.InDelta(t, 0, res.Sharpe, 1e-9)
}

func TestScorerMMCAgainstVaryingExample(t *testing.T) {
	table, err := frame.NewTable("era", fillLabels("1", 4))
	require.NoError(t, err)
	require.NoError(t, table.AddColumn("prediction", grid(4)))
	require.NoError(t, table.AddColumn("target", []float64{1, 1, 0, 1}))
	require.NoError(t, table.AddColumn("example_preds", []float64{0, 0, 1, 1}))
	table.InferGroups()

	s, err := NewScorer(table, 1)
	require.NoError(t, err)
	res, degenerate, err := s.MMC(context.Background(), "prediction", "target", "example_preds")
	require.NoError(t, err)
	assert.Empty(t, degenerate)

	// The augmented column mean(u)=0.5 acts as an intercept, so the fit is
	// the per-group mean of u: 0.25 and 0.75. The residual is
	// (-1/8, 1/8, -1/8, 1/8) and its sample covariance with the target is
	// (1/8)/3. Fitting the example alone would leave (1/8, 3/8, -1/8, 1/8)
	// and twice that covariance.
	cov := 0.125 / 3
	mmc := cov / (BenchmarkVolatility * BenchmarkVolatility)
	require.Len(t, res.Series, 1)
	assert.InDelta(t, mmc, res.Series[0].Value, 1e-12)
	assert.InDelta(t, mmc, res.Mean, 1e-12)
	assert.InDelta(t, 0, res.Std, 1e-12)
}

func TestScorerExampleCorrelation(t *testing.T) {
	s, err := NewScorer(twoEraTable(t), 2)
	require.NoError(t, err)

	corr, _, err := s.ExampleCorrelation(context.Background(), "prediction", "feature_same")
	require.NoError(t, err)
	assert.InDelta(t, 1, corr, 1e-12)

	// a constant example column has no defined correlation in any era
	_, degenerate, err := s.ExampleCorrelation(context.Background(), "prediction", "example_preds")
	assert.True(t, core.IsDegenerateError(err))
	assert.Len(t, degenerate, 2)
}

func TestScorerMaxFeatureExposure(t *testing.T) {
	s, err := NewScorer(twoEraTable(t), 2)
	require.NoError(t, err)

	exposure, degenerate, err := s.MaxFeatureExposure(context.Background(), "prediction", []string{"feature_flat", "feature_same"})
	require.NoError(t, err)
	assert.Empty(t, degenerate)
	assert.InDelta(t, 1, exposure, 1e-12, "constant features are skipped")

	_, degenerate, err = s.MaxFeatureExposure(context.Background(), "prediction", []string{"feature_flat"})
	assert.True(t, core.IsDegenerateError(err))
	assert.Len(t, degenerate, 2)

	_, _, err = s.MaxFeatureExposure(context.Background(), "prediction", nil)
	assert.True(t, core.IsConfigurationError(err))
}

func TestScorerFeatureNeutralMean(t *testing.T) {
	table := twoEraTable(t)
	noise := []float64{0.3, 0.9, 0.1, 0.5, 0.7, 0.2, 0.8, 0.4, 0.6, 0.0}
	noise = append(noise, reversed(noise)...)
	table, err := table.WithColumn("feature_noise", noise)
	require.NoError(t, err)

	s, err := NewScorer(table, 2)
	require.NoError(t, err)
	mean, degenerate, err := s.FeatureNeutralMean(context.Background(), "prediction", []string{"feature_noise"})
	require.NoError(t, err)
	assert.Empty(t, degenerate)
	assert.False(t, math.IsNaN(mean))
	assert.GreaterOrEqual(t, mean, 0.0)
	assert.LessOrEqual(t, mean, 1.0)
}
