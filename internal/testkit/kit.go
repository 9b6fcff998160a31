package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/domain/frame"
	"eraeval/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	reports *InMemoryReportRepository // Shared report store
}

// NewTestKit creates a new test kit instance with synthetic data
func NewTestKit() *TestKit {
	return &TestKit{reports: NewInMemoryReportRepository()}
}

// ReportRepository returns the shared in-memory report store
func (t *TestKit) ReportRepository() ports.ReportRepository {
	return t.reports
}

// Table generates a tournament table from the config
func (t *TestKit) Table(config TournamentConfig) (*frame.Table, error) {
	return NewTournamentGenerator(config).Generate()
}

// TableSource wraps a fixed table as a ports.TableSource
func (t *TestKit) TableSource(table *frame.Table) ports.TableSource {
	return staticSource{table: table}
}

type staticSource struct {
	table *frame.Table
}

func (s staticSource) ReadTable(ctx context.Context) (*frame.Table, error) {
	return s.table, nil
}

// InMemoryReportRepository implements ReportRepository with in-memory storage
type InMemoryReportRepository struct {
	reports map[core.ID]*evaluation.Report
	mu      sync.RWMutex
}

func NewInMemoryReportRepository() *InMemoryReportRepository {
	return &InMemoryReportRepository{reports: make(map[core.ID]*evaluation.Report)}
}

func (s *InMemoryReportRepository) SaveReport(ctx context.Context, report *evaluation.Report) error {
	if report == nil || report.ID.IsEmpty() {
		return fmt.Errorf("%w: report without id", core.ErrMissingValues)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = report
	return nil
}

func (s *InMemoryReportRepository) GetReport(ctx context.Context, id core.ID) (*evaluation.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, exists := s.reports[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	return report, nil
}

func (s *InMemoryReportRepository) ListReports(ctx context.Context, filters ports.ReportFilters) ([]ports.ReportSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ports.ReportSummary
	for _, r := range s.reports {
		if !filters.InputHash.IsEmpty() && r.InputHash != filters.InputHash {
			continue
		}
		results = append(results, ports.ReportSummary{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			InputHash: r.InputHash,
			FastMode:  r.Settings.FastMode,
			Columns:   len(r.Rows),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })

	if filters.Offset > 0 {
		if filters.Offset >= len(results) {
			return []ports.ReportSummary{}, nil
		}
		results = results[filters.Offset:]
	}
	if filters.Limit > 0 && len(results) > filters.Limit {
		results = results[:filters.Limit]
	}
	return results, nil
}
