// Package rank maps score vectors onto uniform and Gaussian scales by rank.
package rank

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"eraeval/domain/core"
)

// DefaultFill is the uniform-scale midpoint used for missing predictions
const DefaultFill = 0.5

// Ordinal returns 1-based ranks. Ties keep their original order, so equal
// values receive distinct consecutive ranks.
func Ordinal(x []float64) []int {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	ranks := make([]int, len(x))
	for pos, i := range idx {
		ranks[i] = pos + 1
	}
	return ranks
}

func checkInput(x []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: empty vector", core.ErrInsufficientData)
	}
	for i, v := range x {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: NaN at position %d", core.ErrMissingValues, i)
		}
	}
	return nil
}

// Uniform maps x to (rank-0.5)/n, strictly inside (0, 1)
func Uniform(x []float64) ([]float64, error) {
	if err := checkInput(x); err != nil {
		return nil, err
	}
	n := float64(len(x))
	out := make([]float64, len(x))
	for i, r := range Ordinal(x) {
		out[i] = (float64(r) - 0.5) / n
	}
	return out, nil
}

// Gaussian maps x through the inverse standard normal CDF of its uniform ranks
func Gaussian(x []float64) ([]float64, error) {
	u, err := Uniform(x)
	if err != nil {
		return nil, err
	}
	for i, p := range u {
		u[i] = distuv.UnitNormal.Quantile(p)
	}
	return u, nil
}

// Percentile returns rank/n with ties sharing their average rank
func Percentile(x []float64) ([]float64, error) {
	if err := checkInput(x); err != nil {
		return nil, err
	}
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	n := float64(len(x))
	out := make([]float64, len(x))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && x[idx[end]] == x[idx[start]] {
			end++
		}
		// positions start..end-1 hold ranks start+1..end
		avg := float64(start+1+end) / 2
		for _, i := range idx[start:end] {
			out[i] = avg / n
		}
		start = end
	}
	return out, nil
}

// Impute returns a copy of x with NaN replaced by fill
func Impute(x []float64, fill float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			v = fill
		}
		out[i] = v
	}
	return out
}
