package rank

import (
	"context"
	"math"

	"eraeval/domain/frame"
	"eraeval/internal"
	"eraeval/internal/analysis/era"
)

// Standardizer replaces prediction columns by their per-era percentile rank
// (average ties) so every column lives in (0, 1]. Missing values stay missing.
type Standardizer struct {
	// Columns to standardize; all prediction columns when empty
	Columns []string
	Workers int
	Logger  *internal.Logger
}

// Transform returns a new table with the selected columns standardized
func (s *Standardizer) Transform(ctx context.Context, table *frame.Table) (*frame.Table, error) {
	logger := s.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	logger = logger.Named("Standardizer")

	cols := s.Columns
	if len(cols) == 0 {
		cols = table.PredictionCols()
	}
	groups, err := era.FromTable(table)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, len(cols))
	for c, col := range cols {
		if _, err := table.Column(col); err != nil {
			return nil, err
		}
		parts, err := era.Map(ctx, groups, s.Workers, func(ctx context.Context, g era.Group) ([]float64, error) {
			x, err := table.Gather(col, g.Rows)
			if err != nil {
				return nil, err
			}
			return percentileSkipNaN(x)
		})
		if err != nil {
			return nil, err
		}
		values[c] = era.Assemble(table.Len(), groups, parts)
	}

	logger.Info("standardized %d columns over %d eras", len(cols), len(groups))
	return table.WithColumns(cols, values)
}

func percentileSkipNaN(x []float64) ([]float64, error) {
	valid := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	out := make([]float64, len(x))
	if len(valid) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}
	pct, err := Percentile(valid)
	if err != nil {
		return nil, err
	}
	j := 0
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = pct[j]
		j++
	}
	return out, nil
}
