package ports

import (
	"context"
	"io"
	"time"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
)

// TableSource loads a tournament table with its era labels and column groups
type TableSource interface {
	ReadTable(ctx context.Context) (*frame.Table, error)
}

// ReportRepository persists evaluation reports
type ReportRepository interface {
	SaveReport(ctx context.Context, report *evaluation.Report) error
	GetReport(ctx context.Context, id core.ID) (*evaluation.Report, error)
	ListReports(ctx context.Context, filters ReportFilters) ([]ReportSummary, error)
}

// ReportFilters for listing reports, newest first
type ReportFilters struct {
	InputHash core.Hash
	Limit     int
	Offset    int
}

// ReportSummary is the listing view of a stored report
type ReportSummary struct {
	ID        core.ID   `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	InputHash core.Hash `json:"input_hash" db:"input_hash"`
	FastMode  bool      `json:"fast_mode" db:"fast_mode"`
	Columns   int       `json:"columns" db:"column_count"`
}

// ReportRenderer writes a report in a presentation format
type ReportRenderer interface {
	Render(w io.Writer, report *evaluation.Report) error
}
