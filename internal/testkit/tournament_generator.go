package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"eraeval/domain/frame"
)

// TournamentConfig configures the synthetic tournament generator
type TournamentConfig struct {
	Eras        int     `json:"eras"`
	RowsPerEra  int     `json:"rows_per_era"`
	Features    int     `json:"features"`
	Predictions int     `json:"predictions"`
	Signal      float64 `json:"signal"`       // weight of the first feature in the target
	Noise       float64 `json:"noise"`        // target noise level
	MissingRate float64 `json:"missing_rate"` // share of prediction cells left NaN
	Seed        int64   `json:"seed"`
}

// DefaultTournamentConfig returns a small table with a weak, exploitable signal
func DefaultTournamentConfig() TournamentConfig {
	return TournamentConfig{
		Eras:        6,
		RowsPerEra:  60,
		Features:    4,
		Predictions: 2,
		Signal:      0.6,
		Noise:       0.4,
		Seed:        42,
	}
}

// TournamentGenerator produces era-partitioned feature, target and
// prediction columns on the tournament's [0, 1] bucket scale
type TournamentGenerator struct {
	config TournamentConfig
	rng    *rand.Rand
}

// NewTournamentGenerator creates a seeded generator
func NewTournamentGenerator(config TournamentConfig) *TournamentGenerator {
	return &TournamentGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Column names used by generated tables
const (
	TargetColumn  = "target"
	ExampleColumn = "example_preds"
)

// FeatureName returns the name of the i-th generated feature
func FeatureName(i int) string { return fmt.Sprintf("feature_%02d", i) }

// PredictionName returns the name of the i-th generated prediction column
func PredictionName(i int) string {
	if i == 0 {
		return frame.PredictionPrefix
	}
	return fmt.Sprintf("%s_%d", frame.PredictionPrefix, i)
}

// EraLabel formats era labels the way tournament files do
func EraLabel(i int) string { return fmt.Sprintf("era%04d", i+1) }

// bucket snaps a value onto the five feature buckets 0, .25, .5, .75, 1
func bucket(v float64) float64 {
	return math.Round(math.Max(0, math.Min(1, v))*4) / 4
}

// Generate builds the table. Prediction i mixes the first feature and the
// target with a column-specific weight so columns score differently;
// example_preds leans on the second feature.
func (g *TournamentGenerator) Generate() (*frame.Table, error) {
	c := g.config
	n := c.Eras * c.RowsPerEra

	eras := make([]string, n)
	for i := range eras {
		eras[i] = EraLabel(i / c.RowsPerEra)
	}
	table, err := frame.NewTable(frame.DefaultEraCol, eras)
	if err != nil {
		return nil, err
	}

	features := make([][]float64, c.Features)
	for j := range features {
		features[j] = make([]float64, n)
		for i := range features[j] {
			features[j][i] = bucket(g.rng.Float64())
		}
		if err := table.AddColumn(FeatureName(j), features[j]); err != nil {
			return nil, err
		}
	}

	target := make([]float64, n)
	for i := range target {
		lead := 0.5
		if c.Features > 0 {
			lead = features[0][i]
		}
		target[i] = bucket(c.Signal*lead + c.Noise*g.rng.Float64())
	}
	if err := table.AddColumn(TargetColumn, target); err != nil {
		return nil, err
	}

	example := make([]float64, n)
	for i := range example {
		second := 0.5
		if c.Features > 1 {
			second = features[1][i]
		}
		example[i] = 0.5*second + 0.3*target[i] + 0.2*g.rng.Float64()
	}
	if err := table.AddColumn(ExampleColumn, example); err != nil {
		return nil, err
	}

	for p := 0; p < c.Predictions; p++ {
		weight := 1 / float64(p+2)
		pred := make([]float64, n)
		for i := range pred {
			if g.rng.Float64() < c.MissingRate {
				pred[i] = math.NaN()
				continue
			}
			lead := 0.5
			if c.Features > 0 {
				lead = features[0][i]
			}
			pred[i] = weight*lead + (1-weight)*target[i]*g.rng.Float64() + 0.1*g.rng.Float64()
		}
		if err := table.AddColumn(PredictionName(p), pred); err != nil {
			return nil, err
		}
	}

	table.InferGroups()
	return table, nil
}
