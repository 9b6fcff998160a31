// Package metrics turns per-era correlation series into the scalar
// performance figures reported for a prediction column.
package metrics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"eraeval/domain/core"
	"eraeval/domain/frame"
)

const (
	// PayoutClip bounds each era's correlation before compounding
	PayoutClip = 0.25
	// CompoundingPeriods is 52 weekly rounds minus a 3 round stake lag
	CompoundingPeriods = 49
)

// Sharpe returns mean/std. With std 0 it is +Inf or -Inf by the sign of the
// mean and NaN when the mean is 0 as well.
func Sharpe(mean, std float64) float64 {
	if std == 0 {
		switch {
		case mean > 0:
			return math.Inf(1)
		case mean < 0:
			return math.Inf(-1)
		}
		return math.NaN()
	}
	return mean / std
}

// IsUndefined reports whether a ratio carries the undefined sentinel
func IsUndefined(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// MeanStdSharpe aggregates the non-NaN eras of a series. std is the
// population standard deviation.
func MeanStdSharpe(series frame.Series) (mean, std, sharpe float64, err error) {
	values := series.Valid()
	if len(values) == 0 {
		return math.NaN(), math.NaN(), math.NaN(), fmt.Errorf("%w: no valid eras", core.ErrInsufficientData)
	}
	mean, err = stats.Mean(values)
	if err != nil {
		return math.NaN(), math.NaN(), math.NaN(), err
	}
	std, err = stats.StandardDeviationPopulation(values)
	if err != nil {
		return math.NaN(), math.NaN(), math.NaN(), err
	}
	return mean, std, Sharpe(mean, std), nil
}

// MaxDrawdown walks the wealth curve Π(1+c) from a starting stake of 1 and
// returns the negated largest relative fall from a running peak. The result
// is 0 for a never-falling curve and -1 for a full loss.
func MaxDrawdown(series frame.Series) float64 {
	values := series.Valid()
	if len(values) == 0 {
		return math.NaN()
	}
	wealth, peak, worst := 1.0, 1.0, 0.0
	for _, c := range values {
		wealth *= 1 + c
		peak = math.Max(peak, wealth)
		worst = math.Max(worst, (peak-wealth)/peak)
	}
	return -worst
}

// APY compounds the clipped per-era correlations, takes the per-era
// geometric growth rate and annualizes it, in percent.
func APY(series frame.Series) float64 {
	values := series.Valid()
	if len(values) == 0 {
		return math.NaN()
	}
	value := 1.0
	for _, c := range values {
		value *= 1 + math.Max(-PayoutClip, math.Min(PayoutClip, c))
	}
	growth := math.Pow(value, 1/float64(len(values)))
	return (math.Pow(growth, CompoundingPeriods) - 1) * 100
}

// Mean averages the non-NaN eras of a series
func Mean(series frame.Series) float64 {
	values := series.Valid()
	if len(values) == 0 {
		return math.NaN()
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return math.NaN()
	}
	return mean
}
