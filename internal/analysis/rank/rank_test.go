package rank

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eraeval/domain/core"
	"eraeval/domain/frame"
)

func TestOrdinalBreaksTiesByPosition(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Ordinal([]float64{3, 1, 2}))
	assert.Equal(t, []int{1, 2, 3}, Ordinal([]float64{1, 1, 1}))
	assert.Equal(t, []int{2, 1, 3}, Ordinal([]float64{2, 1, 2}))
}

func TestUniform(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"distinct", []float64{3, 1, 2}, []float64{2.5 / 3, 0.5 / 3, 1.5 / 3}},
		{"ties", []float64{1, 1, 1}, []float64{1.0 / 6, 0.5, 5.0 / 6}},
		{"single", []float64{42}, []float64{0.5}},
		{"infinities", []float64{math.Inf(1), math.Inf(-1)}, []float64{0.75, 0.25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Uniform(tt.in)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
			for _, v := range got {
				assert.Greater(t, v, 0.0)
				assert.Less(t, v, 1.0)
			}
		})
	}
}

func TestUniformRejectsBadInput(t *testing.T) {
	_, err := Uniform([]float64{0.1, math.NaN()})
	assert.ErrorIs(t, err, core.ErrMissingValues)

	_, err = Uniform(nil)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestUniformIsIdempotentOnRanks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := make([]float64, 200)
	for i := range x {
		// coarse values force ties
		x[i] = float64(rng.Intn(20))
	}

	once, err := Uniform(x)
	require.NoError(t, err)
	twice, err := Uniform(once)
	require.NoError(t, err)

	assert.Equal(t, Ordinal(x), Ordinal(once))
	assert.InDeltaSlice(t, once, twice, 1e-12)
}

func TestGaussian(t *testing.T) {
	got, err := Gaussian([]float64{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, -0.6744897501960817, got[0], 1e-9)
	assert.InDelta(t, 0.6744897501960817, got[1], 1e-9)

	single, err := Gaussian([]float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 0, single[0], 1e-12)

	for _, v := range got {
		assert.False(t, math.IsInf(v, 0))
	}
}

func TestPercentileAveragesTies(t *testing.T) {
	got, err := Percentile([]float64{1, 2, 2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.625, 0.625, 1}, got, 1e-12)
}

func TestImpute(t *testing.T) {
	in := []float64{0.2, math.NaN()}
	out := Impute(in, DefaultFill)
	assert.Equal(t, []float64{0.2, 0.5}, out)
	assert.True(t, math.IsNaN(in[1]))
}

func TestStandardizer(t *testing.T) {
	table, err := frame.NewTable("era", []string{"1", "1", "1", "2", "2"})
	require.NoError(t, err)
	require.NoError(t, table.AddColumn("prediction_a", []float64{10, 30, 20, 5, math.NaN()}))
	require.NoError(t, table.AddColumn("prediction_b", []float64{1, 1, 2, 3, 4}))
	table.InferGroups()

	s := &Standardizer{Workers: 2}
	out, err := s.Transform(context.Background(), table)
	require.NoError(t, err)

	a, err := out.Column("prediction_a")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1, 2.0 / 3}, a[:3], 1e-12)
	assert.Equal(t, 1.0, a[3])
	assert.True(t, math.IsNaN(a[4]))

	b, err := out.Column("prediction_b")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 1, 0.5, 1}, b, 1e-12)

	orig, err := table.Column("prediction_a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, orig[0], "source table is untouched")
}
