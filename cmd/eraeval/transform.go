package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eraeval/adapters/excel"
	"eraeval/domain/evaluation"
	"eraeval/internal"
	"eraeval/internal/analysis/neutralize"
	"eraeval/internal/analysis/penalize"
	"eraeval/internal/analysis/rank"
)

// tableFlags are shared by the post-processing commands
type tableFlags struct {
	eraCol string
	sheet  string
	output string
}

func (f *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.eraCol, "era-col", "", "Era column name (default from config)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Worksheet to read from an .xlsx file (default: first sheet)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output table (.csv or .xlsx)")
	cmd.MarkFlagRequired("output")
}

func printTransform(cmd *cobra.Command, result *evaluation.TransformResult, output string) {
	for _, d := range result.Diagnostics {
		fmt.Fprintln(cmd.ErrOrStderr(), "diagnostic:", d.String())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s to %s\n", result.Column, output)
}

func newNeutralizeCmd(a *app) *cobra.Command {
	var (
		tf         tableFlags
		prediction string
		features   []string
		proportion float64
		suffix     string
	)

	cmd := &cobra.Command{
		Use:   "neutralize [table]",
		Short: "Remove linear feature exposure from a prediction column",
		Long: `Neutralize a prediction column against the feature columns era by era and
append the min-max scaled result as {prediction}_neutralized_{proportion}.

Example: eraeval neutralize live.csv --proportion 0.5 -o live_neutral.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			if tf.eraCol != "" {
				cfg.Evaluation.EraCol = tf.eraCol
			}
			table, err := a.readTable(cmd.Context(), args[0], tf.sheet)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("proportion") {
				proportion = cfg.Neutralizer.Proportion
			}
			n, err := neutralize.NewFeatureNeutralizer(proportion)
			if err != nil {
				return err
			}
			n.Features = features
			n.Prediction = prediction
			n.Suffix = cfg.Neutralizer.Suffix
			n.Workers = cfg.Evaluation.Workers
			n.Logger = internal.DefaultLogger
			if suffix != "" {
				n.Suffix = suffix
			}
			result, err := n.Transform(cmd.Context(), table)
			if err != nil {
				return err
			}
			if err := excel.WriteTable(tf.output, result.Table); err != nil {
				return err
			}
			printTransform(cmd, result, tf.output)
			return nil
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&prediction, "prediction", "prediction", "Prediction column to neutralize")
	cmd.Flags().StringSliceVar(&features, "features", nil, "Feature columns (default: every feature* column)")
	cmd.Flags().Float64Var(&proportion, "proportion", 0, "Neutralization proportion in [0, 1] (default from config)")
	cmd.Flags().StringVar(&suffix, "suffix", "", "Suffix appended to the output column name")

	return cmd
}

func newPenalizeCmd(a *app) *cobra.Command {
	var (
		tf            tableFlags
		prediction    string
		features      []string
		maxExposure   float64
		maxIterations int
		rankNormalize bool
		suffix        string
	)

	cmd := &cobra.Command{
		Use:   "penalize [table]",
		Short: "Cap the feature exposure of a prediction column",
		Long: `Fit a per-era linear correction that keeps every feature exposure within
--max-exposure and append the rescaled result as {prediction}_penalized_{max}.

Example: eraeval penalize live.xlsx --max-exposure 0.1 -o live_penalized.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			if tf.eraCol != "" {
				cfg.Evaluation.EraCol = tf.eraCol
			}
			table, err := a.readTable(cmd.Context(), args[0], tf.sheet)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("max-exposure") {
				maxExposure = cfg.Penalizer.MaxExposure
			}
			p, err := penalize.NewFeaturePenalizer(maxExposure)
			if err != nil {
				return err
			}
			p.Prediction = prediction
			p.Features = features
			p.MaxIterations = cfg.Penalizer.MaxIterations
			if maxIterations > 0 {
				p.MaxIterations = maxIterations
			}
			p.RankNormalize = cfg.Penalizer.RankNormalize
			if cmd.Flags().Changed("rank-normalize") {
				p.RankNormalize = rankNormalize
			}
			p.Suffix = cfg.Penalizer.Suffix
			if suffix != "" {
				p.Suffix = suffix
			}
			p.Workers = cfg.Evaluation.Workers
			p.Logger = internal.DefaultLogger

			result, err := p.Transform(cmd.Context(), table)
			if err != nil {
				return err
			}
			if err := excel.WriteTable(tf.output, result.Table); err != nil {
				return err
			}
			printTransform(cmd, result, tf.output)
			return nil
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&prediction, "prediction", "prediction", "Prediction column to penalize")
	cmd.Flags().StringSliceVar(&features, "features", nil, "Feature columns (default: every feature* column)")
	cmd.Flags().Float64Var(&maxExposure, "max-exposure", 0, "Largest allowed feature exposure in [0, 1] (default from config)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Optimizer iteration cap per era (default from config)")
	cmd.Flags().BoolVar(&rankNormalize, "rank-normalize", true, "Gaussian-rank each era before fitting")
	cmd.Flags().StringVar(&suffix, "suffix", "", "Suffix appended to the output column name")

	return cmd
}

func newStandardizeCmd(a *app) *cobra.Command {
	var (
		tf      tableFlags
		columns []string
	)

	cmd := &cobra.Command{
		Use:   "standardize [table]",
		Short: "Replace prediction columns by their per-era percentile rank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			if tf.eraCol != "" {
				cfg.Evaluation.EraCol = tf.eraCol
			}
			table, err := a.readTable(cmd.Context(), args[0], tf.sheet)
			if err != nil {
				return err
			}

			s := &rank.Standardizer{Columns: columns, Workers: cfg.Evaluation.Workers, Logger: internal.DefaultLogger}
			out, err := s.Transform(cmd.Context(), table)
			if err != nil {
				return err
			}
			if err := excel.WriteTable(tf.output, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote standardized table to %s\n", tf.output)
			return nil
		},
	}

	tf.register(cmd)
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to standardize (default: every prediction* column)")

	return cmd
}
