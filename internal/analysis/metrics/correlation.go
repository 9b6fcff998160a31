package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"eraeval/domain/core"
)

// pairwise drops every position where either side is NaN
func pairwise(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

func constant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// Pearson returns the correlation of x and y over the rows where both are
// present. Fewer than two such rows or a constant side is a degenerate era.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return math.NaN(), core.NewLengthMismatchError("correlation input", len(x), len(y))
	}
	xs, ys := pairwise(x, y)
	if len(xs) < 2 {
		return math.NaN(), core.NewDegenerateEraError("", fmt.Sprintf("%d complete pairs", len(xs)))
	}
	if constant(xs) || constant(ys) {
		return math.NaN(), core.NewDegenerateEraError("", "correlation input has zero variance")
	}
	return stat.Correlation(xs, ys, nil), nil
}

// Covariance is the sample covariance (n-1) over complete pairs
func Covariance(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return math.NaN(), core.NewLengthMismatchError("covariance input", len(x), len(y))
	}
	xs, ys := pairwise(x, y)
	if len(xs) < 2 {
		return math.NaN(), core.NewDegenerateEraError("", fmt.Sprintf("%d complete pairs", len(xs)))
	}
	return stat.Covariance(xs, ys, nil), nil
}

// TopBottomIndices returns the rows of the tb lowest and tb highest
// predictions, lowest first. Ties keep row order. When the era has fewer
// than 2·tb rows every row is returned.
func TopBottomIndices(pred []float64, tb int) []int {
	idx := make([]int, len(pred))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return pred[idx[a]] < pred[idx[b]] })
	if len(idx) < 2*tb {
		return idx
	}
	return append(idx[:tb:tb], idx[len(idx)-tb:]...)
}

// TopBottomCorrelation correlates target and raw predictions restricted to
// the tb highest and tb lowest predictions
func TopBottomCorrelation(pred, target []float64, tb int) (float64, error) {
	if tb < 1 {
		return math.NaN(), core.NewConfigurationError("tb", fmt.Sprintf("must be at least 1, got %d", tb))
	}
	if len(pred) != len(target) {
		return math.NaN(), core.NewLengthMismatchError("target", len(pred), len(target))
	}
	rows := TopBottomIndices(pred, tb)
	p := make([]float64, len(rows))
	t := make([]float64, len(rows))
	for i, r := range rows {
		p[i] = pred[r]
		t[i] = target[r]
	}
	return Pearson(p, t)
}
