package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
	"eraeval/internal/errors"
)

// Sheet names used in written workbooks
const (
	EvaluationSheet  = "evaluation"
	DiagnosticsSheet = "diagnostics"
	TableSheet       = "Sheet1"
)

// ReportRows lays a report out as a header plus one string row per column
func ReportRows(report *evaluation.Report) [][]string {
	header := append([]string{"column"}, report.Header()...)
	rows := [][]string{header}
	for _, r := range report.Rows {
		row := []string{r.Column, r.Target}
		for _, v := range r.Values() {
			row = append(row, evaluation.FormatValue(v))
		}
		rows = append(rows, row)
	}
	return rows
}

func diagnosticRows(report *evaluation.Report) [][]string {
	rows := [][]string{{"column", "stage", "era", "kind", "message"}}
	for _, d := range report.Diagnostics {
		rows = append(rows, []string{d.Column, d.Stage, d.Era, string(d.Kind), d.Message})
	}
	return rows
}

// WriteReportCSV writes the metrics table of a report as CSV
func WriteReportCSV(w io.Writer, report *evaluation.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(ReportRows(report)); err != nil {
		return errors.Wrap(err, "failed to write report CSV")
	}
	return nil
}

// WriteReport saves a report to path; .csv writes the metrics table only,
// anything else writes a workbook with metrics and diagnostics sheets
func WriteReport(path string, report *evaluation.Report) error {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		file, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "failed to create report file")
		}
		defer file.Close()
		return WriteReportCSV(file, report)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", EvaluationSheet); err != nil {
		return errors.Wrap(err, "failed to name sheet")
	}
	if err := writeSheet(f, EvaluationSheet, reportCells(report)); err != nil {
		return err
	}
	if _, err := f.NewSheet(DiagnosticsSheet); err != nil {
		return errors.Wrap(err, "failed to add diagnostics sheet")
	}
	if err := writeSheet(f, DiagnosticsSheet, toCells(diagnosticRows(report))); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "failed to save workbook")
	}
	return nil
}

// reportCells keeps finite metrics numeric in the workbook
func reportCells(report *evaluation.Report) [][]interface{} {
	cells := [][]interface{}{toRow(append([]string{"column"}, report.Header()...))}
	for _, r := range report.Rows {
		row := []interface{}{r.Column, r.Target}
		for _, v := range r.Values() {
			row = append(row, cellValue(v))
		}
		cells = append(cells, row)
	}
	return cells
}

func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return evaluation.FormatValue(v)
	}
	return v
}

func toRow(s []string) []interface{} {
	row := make([]interface{}, len(s))
	for i, v := range s {
		row[i] = v
	}
	return row
}

func toCells(rows [][]string) [][]interface{} {
	cells := make([][]interface{}, len(rows))
	for i, r := range rows {
		cells[i] = toRow(r)
	}
	return cells
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "invalid cell")
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write %s row %d", sheet, i+1)
		}
	}
	return nil
}

// WriteTable saves a table, era column first, as CSV or a workbook.
// NaN cells are left blank.
func WriteTable(path string, table *frame.Table) error {
	columns := table.Columns()
	data := make([][]float64, len(columns))
	for j, name := range columns {
		values, err := table.Column(name)
		if err != nil {
			return err
		}
		data[j] = values
	}

	rows := make([][]string, 0, table.Len()+1)
	rows = append(rows, append([]string{table.EraCol()}, columns...))
	for i, label := range table.Eras() {
		row := make([]string, 0, len(columns)+1)
		row = append(row, label)
		for j := range columns {
			v := data[j][i]
			if math.IsNaN(v) {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rows = append(rows, row)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		file, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "failed to create table file")
		}
		defer file.Close()
		cw := csv.NewWriter(file)
		if err := cw.WriteAll(rows); err != nil {
			return errors.Wrap(err, "failed to write table CSV")
		}
		return nil
	}

	f := excelize.NewFile()
	defer f.Close()
	cells := make([][]interface{}, len(rows))
	for i, r := range rows {
		cells[i] = toRow(r)
		if i == 0 {
			continue
		}
		for j := 1; j < len(r); j++ {
			if v := data[j-1][i-1]; !math.IsNaN(v) {
				cells[i][j] = v
			}
		}
	}
	if err := writeSheet(f, TableSheet, cells); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to save %s", path))
	}
	return nil
}
