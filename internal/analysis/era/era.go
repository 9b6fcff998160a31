// Package era splits a table into ordered era partitions and fans per-era
// computations out over a bounded worker pool.
package era

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"eraeval/domain/core"
	"eraeval/domain/frame"
)

// Group is the set of row indices sharing one era label
type Group struct {
	Era  string
	Rows []int
}

// Len returns the number of rows in the era
func (g Group) Len() int { return len(g.Rows) }

// Degenerate records an era a scalar computation could not produce a value for
type Degenerate struct {
	Era    string
	Reason error
}

// Partition groups row indices by era label. Eras are ordered by first
// appearance unless order is given, in which case every label present must
// be listed; listed eras with no rows are skipped.
func Partition(labels []string, order []string) ([]Group, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no rows to partition", core.ErrInsufficientData)
	}

	index := make(map[string]int)
	var groups []Group
	if len(order) > 0 {
		for _, label := range order {
			if _, dup := index[label]; dup {
				return nil, core.NewConfigurationError("era order", fmt.Sprintf("lists %q twice", label))
			}
			index[label] = len(groups)
			groups = append(groups, Group{Era: label})
		}
	}

	for row, label := range labels {
		i, ok := index[label]
		if !ok {
			if len(order) > 0 {
				return nil, core.NewConfigurationError("era order", fmt.Sprintf("does not list era %q", label))
			}
			i = len(groups)
			index[label] = i
			groups = append(groups, Group{Era: label})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Rows) > 0 {
			out = append(out, g)
		}
	}
	return out, nil
}

// FromTable partitions a table by its era labels in first-appearance order
func FromTable(table *frame.Table) ([]Group, error) {
	return Partition(table.Eras(), nil)
}

func limit(workers int) int {
	if workers <= 0 {
		return runtime.NumCPU()
	}
	return workers
}

// Map applies fn to every era with at most workers concurrent calls.
// Results come back in era order whatever the completion order; the first
// error cancels the remaining eras.
func Map[T any](ctx context.Context, groups []Group, workers int, fn func(ctx context.Context, g Group) (T, error)) ([]T, error) {
	results := make([]T, len(groups))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit(workers))
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fn(ctx, g)
			if err != nil {
				return fmt.Errorf("era %s: %w", g.Era, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Series maps every era to a scalar. An ErrDegenerateEra from fn marks that
// era NaN and is reported back; any other error aborts. If every era is
// degenerate the whole series is an ErrDegenerateEra.
func Series(ctx context.Context, groups []Group, workers int, fn func(ctx context.Context, g Group) (float64, error)) (frame.Series, []Degenerate, error) {
	if len(groups) == 0 {
		return nil, nil, fmt.Errorf("%w: no eras", core.ErrInsufficientData)
	}

	type outcome struct {
		value  float64
		reason error
	}
	outcomes, err := Map(ctx, groups, workers, func(ctx context.Context, g Group) (outcome, error) {
		v, err := fn(ctx, g)
		if err != nil {
			if core.IsDegenerateError(err) {
				return outcome{value: math.NaN(), reason: err}, nil
			}
			return outcome{}, err
		}
		return outcome{value: v}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	series := make(frame.Series, len(groups))
	var degenerate []Degenerate
	for i, o := range outcomes {
		series[i] = frame.Point{Era: groups[i].Era, Value: o.value}
		if o.reason != nil {
			degenerate = append(degenerate, Degenerate{Era: groups[i].Era, Reason: o.reason})
		}
	}
	if len(degenerate) == len(groups) {
		return series, degenerate, core.NewDegenerateEraError("", fmt.Sprintf("all %d eras are degenerate", len(groups)))
	}
	return series, degenerate, nil
}

// Assemble scatters per-era vectors back into a full column of length n
func Assemble(n int, groups []Group, parts [][]float64) []float64 {
	out := make([]float64, n)
	for i, g := range groups {
		for j, row := range g.Rows {
			out[row] = parts[i][j]
		}
	}
	return out
}
