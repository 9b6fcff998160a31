package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/internal/errors"
	"eraeval/ports"
)

// DefaultListLimit caps report listings without an explicit limit
const DefaultListLimit = 100

// reportRepository implements the ReportRepository interface
type reportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlx.DB) ports.ReportRepository {
	return &reportRepository{db: db}
}

// storedRow keeps metric values as text so NaN and ±Inf survive JSONB
type storedRow struct {
	Column string   `json:"column"`
	Target string   `json:"target"`
	Values []string `json:"values"`
}

type reportRecord struct {
	ID          core.ID   `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	InputHash   core.Hash `db:"input_hash"`
	Settings    []byte    `db:"settings"`
	Metrics     []byte    `db:"metrics"`
	Diagnostics []byte    `db:"diagnostics"`
}

func encodeValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return evaluation.FormatValue(v)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeRows(rows []evaluation.MetricsRow) ([]byte, error) {
	stored := make([]storedRow, len(rows))
	for i, r := range rows {
		values := r.Values()
		text := make([]string, len(values))
		for j, v := range values {
			text[j] = encodeValue(v)
		}
		stored[i] = storedRow{Column: r.Column, Target: r.Target, Values: text}
	}
	return json.Marshal(stored)
}

func decodeRows(data []byte) ([]evaluation.MetricsRow, error) {
	var stored []storedRow
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	rows := make([]evaluation.MetricsRow, len(stored))
	for i, s := range stored {
		values := make([]float64, len(s.Values))
		for j, text := range s.Values {
			v, err := evaluation.ParseValue(text)
			if err != nil {
				return nil, fmt.Errorf("row %s value %d: %w", s.Column, j, err)
			}
			values[j] = v
		}
		row, err := evaluation.RowFromValues(s.Column, s.Target, values)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// SaveReport inserts a report, replacing any stored report with the same ID
func (r *reportRepository) SaveReport(ctx context.Context, report *evaluation.Report) error {
	settingsJSON, err := json.Marshal(report.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	metricsJSON, err := encodeRows(report.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	diagnostics := report.Diagnostics
	if diagnostics == nil {
		diagnostics = []evaluation.Diagnostic{}
	}
	diagnosticsJSON, err := json.Marshal(diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	query := `INSERT INTO evaluation_reports (
		id, created_at, input_hash, fast_mode, column_count, settings, metrics, diagnostics
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	)
	ON CONFLICT (id) DO UPDATE SET
		input_hash = EXCLUDED.input_hash,
		fast_mode = EXCLUDED.fast_mode,
		column_count = EXCLUDED.column_count,
		settings = EXCLUDED.settings,
		metrics = EXCLUDED.metrics,
		diagnostics = EXCLUDED.diagnostics`

	_, err = r.db.ExecContext(ctx, query,
		report.ID, report.CreatedAt, report.InputHash, report.Settings.FastMode, len(report.Rows),
		settingsJSON, metricsJSON, diagnosticsJSON,
	)
	if err != nil {
		return errors.DatabaseError("failed to save report", err)
	}
	return nil
}

// GetReport retrieves a report by its ID
func (r *reportRepository) GetReport(ctx context.Context, id core.ID) (*evaluation.Report, error) {
	query := `SELECT id, created_at, input_hash, settings, metrics, diagnostics
	FROM evaluation_reports WHERE id = $1`

	var rec reportRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
		}
		return nil, errors.DatabaseError("failed to get report", err)
	}

	report := &evaluation.Report{ID: rec.ID, CreatedAt: rec.CreatedAt.UTC(), InputHash: rec.InputHash}
	if err := json.Unmarshal(rec.Settings, &report.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	rows, err := decodeRows(rec.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	report.Rows = rows
	if len(rec.Diagnostics) > 0 {
		if err := json.Unmarshal(rec.Diagnostics, &report.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
		}
	}
	if len(report.Diagnostics) == 0 {
		report.Diagnostics = nil
	}
	return report, nil
}

// ListReports returns report summaries, newest first
func (r *reportRepository) ListReports(ctx context.Context, filters ports.ReportFilters) ([]ports.ReportSummary, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT id, created_at, input_hash, fast_mode, column_count
	FROM evaluation_reports
	WHERE ($1 = '' OR input_hash = $1)
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	summaries := []ports.ReportSummary{}
	if err := r.db.SelectContext(ctx, &summaries, query, filters.InputHash, limit, filters.Offset); err != nil {
		return nil, errors.DatabaseError("failed to list reports", err)
	}
	return summaries, nil
}
