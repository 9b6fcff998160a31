package frame

import "math"

// Point is one era's value in an era-indexed series
type Point struct {
	Era   string  `json:"era"`
	Value float64 `json:"value"`
}

// Series is an era-ordered sequence of scalars. Order is significant:
// drawdown and compounding read it as a time series.
type Series []Point

// Values returns every value in era order, NaN included
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Valid returns the non-NaN values in era order
func (s Series) Valid() []float64 {
	out := make([]float64, 0, len(s))
	for _, p := range s {
		if !math.IsNaN(p.Value) {
			out = append(out, p.Value)
		}
	}
	return out
}

// Eras returns the era labels in order
func (s Series) Eras() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Era
	}
	return out
}

// Add returns the element-wise sum of two series over the same eras
func (s Series) Add(other Series) Series {
	out := make(Series, len(s))
	for i, p := range s {
		v := math.NaN()
		if i < len(other) && other[i].Era == p.Era {
			v = p.Value + other[i].Value
		}
		out[i] = Point{Era: p.Era, Value: v}
	}
	return out
}
