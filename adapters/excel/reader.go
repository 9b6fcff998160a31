package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"eraeval/domain/frame"
	"eraeval/internal"
	"eraeval/internal/errors"
)

// DataReader loads tournament tables from Excel and CSV files
type DataReader struct {
	config   ExcelConfig
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(config ExcelConfig) *DataReader {
	if config.EraCol == "" {
		config.EraCol = frame.DefaultEraCol
	}
	ext := strings.ToLower(filepath.Ext(config.FilePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{config: config, fileType: fileType, logger: internal.DefaultLogger.Named("DataReader")}
}

// ReadTable implements ports.TableSource
func (r *DataReader) ReadTable(ctx context.Context) (*frame.Table, error) {
	raw, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return BuildTable(raw, r.config.EraCol)
}

// ReadData reads the raw cells of the configured file
func (r *DataReader) ReadData() (*RawData, error) {
	r.logger.Info("reading %s file: %s", r.fileType, r.config.FilePath)

	if _, err := os.Stat(r.config.FilePath); os.IsNotExist(err) {
		return nil, errors.InvalidInput(fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.config.FilePath))
	}

	switch r.fileType {
	case "csv":
		file, err := os.Open(r.config.FilePath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open CSV file")
		}
		defer file.Close()
		return r.readCSV(file)
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", r.fileType))
	}
}

func (r *DataReader) readExcelData() (*RawData, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.config.FilePath)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to open Excel file: %w", err))
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidInput("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read sheet %s: %w", sheet, err))
	}
	r.logger.Debug("sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return splitRows(rows)
}

// ReadCSV parses CSV content from any reader
func ReadCSV(rd io.Reader) (*RawData, error) {
	return (&DataReader{logger: internal.DefaultLogger.Named("DataReader")}).readCSV(rd)
}

func (r *DataReader) readCSV(rd io.Reader) (*RawData, error) {
	start := time.Now()
	reader := csv.NewReader(rd)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read CSV: %w", err))
	}
	r.logger.Debug("CSV read in %.2fms (%d rows)", float64(time.Since(start).Nanoseconds())/1e6, len(rows))
	return splitRows(rows)
}

func splitRows(rows [][]string) (*RawData, error) {
	if len(rows) < 2 {
		return nil, errors.InvalidInput("file must have at least a header row and one data row")
	}
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}
	return &RawData{Headers: headers, Rows: rows[1:]}, nil
}

// parseCell reads a numeric cell; blanks and NaN spellings are missing
func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// BuildTable converts raw cells into a table. The era column is kept as
// labels; every other column must be numeric. Column groups are inferred
// from the tournament prefixes.
func BuildTable(raw *RawData, eraCol string) (*frame.Table, error) {
	eraIdx := -1
	seen := make(map[string]bool, len(raw.Headers))
	for i, h := range raw.Headers {
		if h == "" {
			return nil, errors.InvalidInput(fmt.Sprintf("column %d has an empty header", i+1))
		}
		if seen[h] {
			return nil, errors.InvalidInput(fmt.Sprintf("duplicate column %q", h))
		}
		seen[h] = true
		if h == eraCol {
			eraIdx = i
		}
	}
	if eraIdx < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("era column %q not found", eraCol))
	}

	cell := func(row []string, j int) string {
		if j < len(row) {
			return row[j]
		}
		return ""
	}

	eras := make([]string, len(raw.Rows))
	for i, row := range raw.Rows {
		eras[i] = strings.TrimSpace(cell(row, eraIdx))
	}
	table, err := frame.NewTable(eraCol, eras)
	if err != nil {
		return nil, errors.Wrap(err, "invalid era column")
	}

	for j, name := range raw.Headers {
		if j == eraIdx {
			continue
		}
		values := make([]float64, len(raw.Rows))
		for i, row := range raw.Rows {
			v, err := parseCell(cell(row, j))
			if err != nil {
				return nil, errors.InvalidInput(fmt.Sprintf("column %q row %d: %q is not numeric", name, i+2, cell(row, j)))
			}
			values[i] = v
		}
		if err := table.AddColumn(name, values); err != nil {
			return nil, errors.Wrapf(err, "column %q", name)
		}
	}
	table.InferGroups()
	return table, nil
}
