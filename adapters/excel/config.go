package excel

import "eraeval/domain/frame"

// ExcelConfig holds configuration for a tabular file data source
type ExcelConfig struct {
	FilePath string `json:"file_path"`
	// EraCol names the era label column; "era" when empty
	EraCol string `json:"era_col"`
	// Sheet to read from workbooks; the first sheet when empty
	Sheet string `json:"sheet"`
}

// DefaultExcelConfig returns sensible defaults for file ingestion
func DefaultExcelConfig() ExcelConfig {
	return ExcelConfig{EraCol: frame.DefaultEraCol}
}
