// Package penalize reduces the feature exposure of a score vector below a
// bound by fitting a small linear correction with Adamax.
package penalize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"eraeval/domain/core"
)

// Adamax defaults
const (
	DefaultLearningRate  = 0.001
	DefaultBeta1         = 0.9
	DefaultBeta2         = 0.999
	DefaultEpsilon       = 1e-7
	DefaultTolerance     = 1e-7
	DefaultMaxIterations = 1_000_000
)

// featureCenter is subtracted from [0, 1] features before fitting
const featureCenter = 0.5

// ValidateMaxExposure checks that an exposure bound lies in [0, 1]
func ValidateMaxExposure(maxExposure float64) error {
	if math.IsNaN(maxExposure) || maxExposure < 0 || maxExposure > 1 {
		return core.NewConfigurationError("max_exposure", fmt.Sprintf("must be in [0, 1], got %v", maxExposure))
	}
	return nil
}

// Optimizer fits weights w so that scores - (F-0.5)·w keeps every feature
// exposure inside the band between zero and its clipped starting value.
// A fit is strictly sequential; callers parallelize across eras.
type Optimizer struct {
	MaxExposure   float64
	MaxIterations int
	LearningRate  float64
	Beta1         float64
	Beta2         float64
	Epsilon       float64
	Tolerance     float64
}

// NewOptimizer creates an optimizer with the Adamax defaults.
// maxIterations <= 0 selects DefaultMaxIterations.
func NewOptimizer(maxExposure float64, maxIterations int) (*Optimizer, error) {
	if err := ValidateMaxExposure(maxExposure); err != nil {
		return nil, err
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Optimizer{
		MaxExposure:   maxExposure,
		MaxIterations: maxIterations,
		LearningRate:  DefaultLearningRate,
		Beta1:         DefaultBeta1,
		Beta2:         DefaultBeta2,
		Epsilon:       DefaultEpsilon,
		Tolerance:     DefaultTolerance,
	}, nil
}

// FitResult is the outcome of one era's fit. Converged is false when the
// iteration cap stopped the loop; the weights are still the best effort.
type FitResult struct {
	Weights        []float64
	Adjusted       []float64
	StartExposures []float64
	Exposures      []float64
	Iterations     int
	Loss           float64
	Converged      bool
}

// standardized holds F with every column centered and scaled to unit norm
type standardized struct {
	x *mat.Dense
}

func standardize(f mat.Matrix) standardized {
	n, k := f.Dims()
	x := mat.NewDense(n, k, nil)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, j, f)
		mean := floats.Sum(col) / float64(n)
		floats.AddConst(-mean, col)
		norm := floats.Norm(col, 2)
		if norm == 0 {
			// constant feature: exposure 0, no gradient
			floats.Scale(0, col)
		} else {
			floats.Scale(1/norm, col)
		}
		x.SetCol(j, col)
	}
	return standardized{x: x}
}

// unit centers y and scales it to unit norm, returning the original norm
func unit(y []float64) ([]float64, float64) {
	c := append([]float64(nil), y...)
	floats.AddConst(-floats.Sum(c)/float64(len(c)), c)
	norm := floats.Norm(c, 2)
	if norm > 0 {
		floats.Scale(1/norm, c)
	}
	return c, norm
}

func (s standardized) exposures(y []float64) ([]float64, []float64, float64, error) {
	c, norm := unit(y)
	if norm == 0 || math.IsNaN(norm) {
		return nil, nil, 0, core.NewDegenerateEraError("", "scores have zero variance")
	}
	var e mat.VecDense
	e.MulVec(s.x.T(), mat.NewVecDense(len(c), c))
	return e.RawVector().Data, c, norm, nil
}

// Exposures returns the standardized covariance of y with every column of f:
// both sides centered and scaled to unit norm. Constant columns get 0.
func Exposures(f mat.Matrix, y []float64) ([]float64, error) {
	n, _ := f.Dims()
	if n != len(y) {
		return nil, core.NewLengthMismatchError("scores", n, len(y))
	}
	e, _, _, err := standardize(f).exposures(y)
	return e, err
}

func hinge(e, t float64) float64 {
	relu := func(v float64) float64 { return math.Max(v, 0) }
	return relu(relu(e)-relu(t)) + relu(relu(-e)-relu(-t))
}

// Fit runs Adamax on the double-hinge exposure loss. features are the raw
// [0, 1] feature values of one era (n×k).
func (o *Optimizer) Fit(scores []float64, features mat.Matrix) (*FitResult, error) {
	n, k := features.Dims()
	if n != len(scores) {
		return nil, core.NewLengthMismatchError("scores", n, len(scores))
	}
	if k == 0 {
		return nil, fmt.Errorf("%w: need at least 1 feature", core.ErrInsufficientData)
	}
	if n < 2 {
		return nil, core.NewDegenerateEraError("", fmt.Sprintf("need at least 2 rows, got %d", n))
	}
	for i, v := range scores {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: score NaN at row %d", core.ErrMissingValues, i)
		}
	}

	shifted := mat.NewDense(n, k, nil)
	shifted.Apply(func(_, _ int, v float64) float64 { return v - featureCenter }, features)
	std := standardize(shifted)

	start, _, _, err := std.exposures(scores)
	if err != nil {
		return nil, err
	}
	target := make([]float64, k)
	for j, e := range start {
		target[j] = math.Max(-o.MaxExposure, math.Min(o.MaxExposure, e))
	}

	w := mat.NewVecDense(k, nil)
	m := make([]float64, k)
	u := make([]float64, k)
	g := mat.NewVecDense(k, nil)
	pred := mat.NewVecDense(n, scores)
	var fitted, r, grad mat.VecDense
	y := make([]float64, n)

	result := &FitResult{StartExposures: start}
	b1Power := 1.0
	for it := 0; it < o.MaxIterations; it++ {
		fitted.MulVec(shifted, w)
		for i := range y {
			y[i] = pred.AtVec(i) - fitted.AtVec(i)
		}
		e, c, norm, err := std.exposures(y)
		if err != nil {
			return nil, err
		}

		loss := 0.0
		eg := 0.0
		for j := range e {
			loss += hinge(e[j], target[j])
			gj := 0.0
			switch {
			case e[j] > math.Max(target[j], 0):
				gj = 1
			case e[j] < math.Min(target[j], 0):
				gj = -1
			}
			g.SetVec(j, gj)
			eg += e[j] * gj
		}

		// dL/dy = (X̂g - (eᵀg)ĉ)/‖c‖, dy/dw = -F
		r.MulVec(std.x, g)
		for i := 0; i < n; i++ {
			r.SetVec(i, (r.AtVec(i)-eg*c[i])/norm)
		}
		grad.MulVec(shifted.T(), &r)

		b1Power *= o.Beta1
		lr := o.LearningRate / (1 - b1Power)
		for j := 0; j < k; j++ {
			gj := -grad.AtVec(j)
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*gj
			u[j] = math.Max(o.Beta2*u[j], math.Abs(gj))
			w.SetVec(j, w.AtVec(j)-lr*m[j]/(u[j]+o.Epsilon))
		}

		result.Iterations = it + 1
		result.Loss = loss
		if loss < o.Tolerance {
			result.Converged = true
			break
		}
	}

	fitted.MulVec(shifted, w)
	adjusted := make([]float64, n)
	for i := range adjusted {
		adjusted[i] = scores[i] - fitted.AtVec(i)
	}
	final, _, _, err := std.exposures(adjusted)
	if err != nil {
		return nil, err
	}

	result.Weights = append([]float64(nil), w.RawVector().Data...)
	result.Adjusted = adjusted
	result.Exposures = final
	return result, nil
}
