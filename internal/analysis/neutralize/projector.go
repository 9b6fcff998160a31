// Package neutralize removes the linear component of a score vector explained
// by a set of exposure columns.
package neutralize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"eraeval/domain/core"
)

// machine epsilon for float64, as used by least-squares rank cut-offs
var epsilon = math.Nextafter(1, 2) - 1

// relative std below which a residual is treated as fully explained
const degenerateTol = 1e-12

// ValidateProportion checks that a neutralization proportion lies in [0, 1]
func ValidateProportion(proportion float64) error {
	if math.IsNaN(proportion) || proportion < 0 || proportion > 1 {
		return core.NewConfigurationError("proportion", fmt.Sprintf("must be in [0, 1], got %v", proportion))
	}
	return nil
}

// Residual returns scores - proportion·(A·β) where A is the exposure matrix
// augmented with a column holding mean(scores), and β is the minimum-norm
// least-squares solution of A·β ≈ scores.
//
// Singular values below eps·max(n, k+1)·σmax are cut. An all-zero A has rank
// zero and leaves scores unchanged.
func Residual(scores []float64, exposures mat.Matrix, proportion float64) ([]float64, error) {
	if err := ValidateProportion(proportion); err != nil {
		return nil, err
	}
	n := len(scores)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty score vector", core.ErrInsufficientData)
	}
	r, k := exposures.Dims()
	if r != n {
		return nil, core.NewLengthMismatchError("exposure rows", n, r)
	}
	for i, v := range scores {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: score NaN at row %d", core.ErrMissingValues, i)
		}
	}

	mean := stat.Mean(scores, nil)
	a := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			v := exposures.At(i, j)
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: exposure NaN at row %d column %d", core.ErrMissingValues, i, j)
			}
			a.Set(i, j, v)
		}
		a.Set(i, k, mean)
	}

	out := append([]float64(nil), scores...)
	if proportion == 0 {
		return out, nil
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, core.NewDegenerateEraError("", "singular value decomposition did not converge")
	}
	rank := svd.Rank(epsilon * float64(max(n, k+1)))
	if rank == 0 {
		return out, nil
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, mat.NewVecDense(n, append([]float64(nil), scores...)), rank)

	var fitted mat.VecDense
	fitted.MulVec(a, &beta)
	for i := range out {
		out[i] -= proportion * fitted.AtVec(i)
	}
	return out, nil
}

// Neutralize is Residual rescaled to unit population standard deviation.
// A residual with no variance left is a degenerate era.
func Neutralize(scores []float64, exposures mat.Matrix, proportion float64) ([]float64, error) {
	residual, err := Residual(scores, exposures, proportion)
	if err != nil {
		return nil, err
	}
	_, std := stat.PopMeanStdDev(residual, nil)
	_, scale := stat.PopMeanStdDev(scores, nil)
	if std == 0 || math.IsNaN(std) || std <= degenerateTol*scale {
		return nil, core.NewDegenerateEraError("", "neutralized scores have zero variance")
	}
	for i := range residual {
		residual[i] /= std
	}
	return residual, nil
}
