package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"eraeval/adapters/api"
	"eraeval/adapters/excel"
	render "eraeval/adapters/report"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
	"eraeval/internal/errors"
	"eraeval/internal/evaluator"
)

// readTable loads a .csv or .xlsx tournament table keyed by the configured era column
func (a *app) readTable(ctx context.Context, path, sheet string) (*frame.Table, error) {
	reader := excel.NewDataReader(excel.ExcelConfig{
		FilePath: path,
		EraCol:   a.config().Evaluation.EraCol,
		Sheet:    sheet,
	})
	return reader.ReadTable(ctx)
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		eraCol      string
		sheet       string
		target      string
		example     string
		predictions []string
		features    []string
		fast        bool
		tb          int
		output      string
		format      string
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate [table.csv|table.xlsx]",
		Short: "Compute the per-column metrics report",
		Long: `Evaluate prediction columns era by era and print or write the report.

The output format follows the --output extension (.csv, .xlsx, .md, .html,
.json); without --output the report is printed in --format.

Example: eraeval evaluate validation.csv --tb 200 -o report.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if eraCol != "" {
				a.config().Evaluation.EraCol = eraCol
			}
			table, err := a.readTable(ctx, args[0], sheet)
			if err != nil {
				return err
			}

			ev, err := a.container.Evaluator(func(s *evaluation.Settings) {
				if cmd.Flags().Changed("fast") {
					s.FastMode = fast
				}
				if tb > 0 {
					s.TBSize = tb
				}
			})
			if err != nil {
				return err
			}
			report, err := ev.FullEvaluation(ctx, table, evaluator.EvaluateRequest{
				PredictionCols: predictions,
				TargetCol:      target,
				ExampleCol:     example,
				Features:       features,
			})
			if err != nil {
				return err
			}
			for _, d := range report.Diagnostics {
				fmt.Fprintln(cmd.ErrOrStderr(), "diagnostic:", d.String())
			}

			if save {
				if err := a.saveReport(ctx, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved report %s\n", report.ID)
			}

			if output != "" {
				return writeReportFile(output, report)
			}
			return writeReportFormat(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().StringVar(&eraCol, "era-col", "", "Era column name (default from config)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet to read from an .xlsx file (default: first sheet)")
	cmd.Flags().StringVar(&target, "target", "", "Target column (default from config)")
	cmd.Flags().StringVar(&example, "example", "", "Example prediction column (default from config)")
	cmd.Flags().StringSliceVar(&predictions, "predictions", nil, "Prediction columns (default: every prediction* column)")
	cmd.Flags().StringSliceVar(&features, "features", nil, "Feature columns (default: every feature* column)")
	cmd.Flags().BoolVar(&fast, "fast", false, "Skip feature exposure, feature neutral mean and top/bottom metrics")
	cmd.Flags().IntVar(&tb, "tb", 0, "Top/bottom subset size (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file")
	cmd.Flags().StringVar(&format, "format", render.FormatMarkdown, "Stdout format: markdown, html, json or csv")
	cmd.Flags().BoolVar(&save, "save", false, "Store the report in the configured database")

	return cmd
}

func (a *app) saveReport(ctx context.Context, report *evaluation.Report) error {
	if err := a.container.Connect(ctx); err != nil {
		return err
	}
	defer a.container.Shutdown(ctx)
	if a.container.Reports == nil {
		return errors.ConfigInvalid("DATABASE_URL is required to save reports")
	}
	return a.container.Reports.SaveReport(ctx, report)
}

func writeReportFormat(w io.Writer, format string, report *evaluation.Report) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewReportDTO(report))
	case "csv":
		return excel.WriteReportCSV(w, report)
	}
	renderer, err := render.ForFormat(format)
	if err != nil {
		return err
	}
	return renderer.Render(w, report)
}

func writeReportFile(path string, report *evaluation.Report) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".csv" || ext == ".xlsx" {
		return excel.WriteReport(path, report)
	}

	format := strings.TrimPrefix(ext, ".")
	if format == "" {
		return errors.InvalidInput(fmt.Sprintf("cannot infer a report format from %q", path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create report file")
	}
	if err := writeReportFormat(f, format, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
