package neutralize

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"eraeval/domain/core"
	"eraeval/domain/frame"
	"eraeval/internal/analysis/rank"
)

func randomEra(seed int64, n, k int) ([]float64, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	scores := make([]float64, n)
	data := make([]float64, n*k)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			data[i*k+j] = rng.Float64()
		}
		// scores load on the first feature plus noise
		scores[i] = 0.7*data[i*k] + 0.3*rng.Float64()
	}
	return scores, mat.NewDense(n, k, data)
}

func TestResidualFullProportionIsOrthogonal(t *testing.T) {
	scores, exposures := randomEra(1, 60, 3)

	residual, err := Residual(scores, exposures, 1.0)
	require.NoError(t, err)

	for j := 0; j < 3; j++ {
		col := mat.Col(nil, j, exposures)
		assert.InDelta(t, 0, stat.Correlation(residual, col, nil), 1e-9, "feature %d", j)
	}
	assert.InDelta(t, 0, floats.Sum(residual), 1e-9, "augmented mean column removes the level")
}

func TestNeutralizeZeroProportionOnlyRescales(t *testing.T) {
	scores, exposures := randomEra(2, 40, 2)

	out, err := Neutralize(scores, exposures, 0)
	require.NoError(t, err)

	_, std := stat.PopMeanStdDev(scores, nil)
	for i := range scores {
		assert.InDelta(t, scores[i]/std, out[i], 1e-12)
	}
	col := mat.Col(nil, 0, exposures)
	assert.InDelta(t, stat.Correlation(scores, col, nil), stat.Correlation(out, col, nil), 1e-12)

	_, outStd := stat.PopMeanStdDev(out, nil)
	assert.InDelta(t, 1, outStd, 1e-12)
}

func TestResidualZeroExposures(t *testing.T) {
	zeros := mat.NewDense(3, 2, nil)

	centered, err := Residual([]float64{-1, 0, 1}, zeros, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1}, centered, "rank zero leaves scores unchanged")

	shifted, err := Residual([]float64{1, 2, 3}, zeros, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, shifted, 1e-12)
}

func TestResidualValidation(t *testing.T) {
	exposures := mat.NewDense(2, 1, []float64{1, 2})

	tests := []struct {
		name       string
		scores     []float64
		proportion float64
		check      func(error) bool
	}{
		{"proportion above one", []float64{1, 2}, 1.1, core.IsConfigurationError},
		{"negative proportion", []float64{1, 2}, -0.1, core.IsConfigurationError},
		{"row mismatch", []float64{1, 2, 3}, 0.5, core.IsInputError},
		{"nan score", []float64{1, math.NaN()}, 0.5, core.IsInputError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Residual(tt.scores, exposures, tt.proportion)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestNeutralizeFullyExplainedIsDegenerate(t *testing.T) {
	feature := []float64{0, 0.25, 0.5, 0.75, 1}
	scores := make([]float64, len(feature))
	for i, v := range feature {
		scores[i] = 2*v + 1
	}
	_, err := Neutralize(scores, mat.NewDense(5, 1, feature), 1)
	assert.True(t, core.IsDegenerateError(err))

	_, err = Neutralize([]float64{3, 3, 3}, mat.NewDense(3, 1, []float64{1, 2, 3}), 0)
	assert.True(t, core.IsDegenerateError(err))
}

func TestFeatureNeutralizer(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	eras := make([]string, 0, 90)
	for _, e := range []string{"1", "2", "3"} {
		for i := 0; i < 30; i++ {
			eras = append(eras, e)
		}
	}
	table, err := frame.NewTable("era", eras)
	require.NoError(t, err)

	n := len(eras)
	fa, fb, pred := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		fa[i] = float64(rng.Intn(5)) / 4
		fb[i] = float64(rng.Intn(5)) / 4
		pred[i] = fa[i] + 0.5*rng.Float64()
	}
	require.NoError(t, table.AddColumn("feature_a", fa))
	require.NoError(t, table.AddColumn("feature_b", fb))
	require.NoError(t, table.AddColumn("prediction", pred))
	table.InferGroups()

	fn := &FeatureNeutralizer{Proportion: 0.5, Suffix: "v1", Workers: 2}
	assert.Equal(t, "prediction_neutralized_0.5_v1", fn.OutputColumn())

	result, err := fn.Transform(context.Background(), table)
	require.NoError(t, err)
	assert.Empty(t, result.Diagnostics)
	assert.False(t, table.HasColumn(result.Column))
	assert.Contains(t, result.Table.PredictionCols(), "prediction_neutralized_0.5_v1")

	values, err := result.Table.Column(result.Column)
	require.NoError(t, err)
	assert.InDelta(t, 0, floats.Min(values), 1e-12)
	assert.InDelta(t, 1, floats.Max(values), 1e-12)

	full := &FeatureNeutralizer{Proportion: 1}
	assert.Equal(t, "prediction_neutralized_1.0", full.OutputColumn())
	fullResult, err := full.Transform(context.Background(), table)
	require.NoError(t, err)
	neutral, err := fullResult.Table.Column(fullResult.Column)
	require.NoError(t, err)

	// the output is an affine image of the per-era neutralized ranks
	gauss, err := rank.Gaussian(pred[:30])
	require.NoError(t, err)
	data, err := table.Matrix([]string{"feature_a", "feature_b"}, seq(30))
	require.NoError(t, err)
	expected, err := Neutralize(gauss, mat.NewDense(30, 2, data), 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, stat.Correlation(neutral[:30], expected, nil), 1e-9)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestFeatureNeutralizerValidation(t *testing.T) {
	_, err := NewFeatureNeutralizer(2)
	assert.True(t, core.IsConfigurationError(err))
	_, err = NewFeatureNeutralizer(math.NaN())
	assert.True(t, core.IsConfigurationError(err))

	fn, err := NewFeatureNeutralizer(0.25)
	require.NoError(t, err)
	assert.Equal(t, "prediction_neutralized_0.25", fn.OutputColumn())

	assert.True(t, core.IsConfigurationError((&FeatureNeutralizer{Proportion: 2}).Validate()))
	assert.True(t, core.IsConfigurationError((&FeatureNeutralizer{Prediction: "score", Proportion: 0.5}).Validate()))
}

func TestFeatureNeutralizerFillsMissingFeatures(t *testing.T) {
	eras := []string{"1", "1", "1", "1", "1", "2", "2", "2", "2", "2"}
	pred := []float64{0.3, 0.9, 0.1, 0.5, 0.7, 0.2, 0.8, 0.4, 0.6, 0.0}
	feature := []float64{0.25, 1, 0, 0.75, 0.5, 0, 1, 0.25, 0.75, 0.5}

	build := func(f []float64) *frame.Table {
		table, err := frame.NewTable("era", eras)
		require.NoError(t, err)
		require.NoError(t, table.AddColumn("feature_a", f))
		require.NoError(t, table.AddColumn("prediction", pred))
		table.InferGroups()
		return table
	}
	withNaN := append([]float64{}, feature...)
	withNaN[1] = math.NaN()
	filled := append([]float64{}, feature...)
	filled[1] = 0.5

	fn, err := NewFeatureNeutralizer(1)
	require.NoError(t, err)
	got, err := fn.Transform(context.Background(), build(withNaN))
	require.NoError(t, err)
	want, err := fn.Transform(context.Background(), build(filled))
	require.NoError(t, err)

	gv, err := got.Table.Column(got.Column)
	require.NoError(t, err)
	wv, err := want.Table.Column(want.Column)
	require.NoError(t, err)
	assert.Equal(t, wv, gv)
	for _, v := range gv {
		assert.False(t, math.IsNaN(v))
	}
}

func TestFeatureNeutralizerDegenerateEra(t *testing.T) {
	table, err := frame.NewTable("era", []string{"1", "1", "1", "2", "2", "2"})
	require.NoError(t, err)
	// era 2: the feature is proportional to the Gaussian ranks of the prediction
	require.NoError(t, table.AddColumn("feature_a", []float64{0, 1, 0.5, -1, 0, 1}))
	require.NoError(t, table.AddColumn("prediction", []float64{0.3, 0.1, 0.9, 0.1, 0.2, 0.3}))
	table.InferGroups()

	result, err := (&FeatureNeutralizer{Proportion: 1}).Transform(context.Background(), table)
	require.NoError(t, err)
	values, err := result.Table.Column(result.Column)
	require.NoError(t, err)

	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "2", result.Diagnostics[0].Era)
	for _, v := range values[3:] {
		assert.True(t, math.IsNaN(v))
	}
	for _, v := range values[:3] {
		assert.False(t, math.IsNaN(v))
	}
}

func TestMinMaxScale(t *testing.T) {
	x := []float64{2, math.NaN(), 4, 3}
	MinMaxScale(x)
	assert.Equal(t, 0.0, x[0])
	assert.True(t, math.IsNaN(x[1]))
	assert.Equal(t, 1.0, x[2])
	assert.Equal(t, 0.5, x[3])

	c := []float64{5, 5}
	MinMaxScale(c)
	assert.Equal(t, []float64{0, 0}, c)
}

func TestFormatParam(t *testing.T) {
	assert.Equal(t, "1.0", FormatParam(1))
	assert.Equal(t, "0.5", FormatParam(0.5))
	assert.Equal(t, "0.0", FormatParam(0))
	assert.Equal(t, "0.25", FormatParam(0.25))
}
