package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eraeval/domain/core"
	"eraeval/domain/evaluation"
	"eraeval/internal/config"
	"eraeval/internal/errors"
	"eraeval/internal/testkit"
	"eraeval/ports"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Evaluation.TBSize = 3
	cfg.Evaluation.Workers = 2
	cfg.Penalizer.MaxIterations = 2000
	return cfg
}

func syntheticTable(t *testing.T) TableDTO {
	t.Helper()
	table, err := testkit.NewTestKit().Table(testkit.DefaultTournamentConfig())
	require.NoError(t, err)
	dto, err := NewTableDTO(table)
	require.NoError(t, err)
	return dto
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func fptr(v float64) *float64 { return &v }

func TestHealth(t *testing.T) {
	rec := do(t, NewServer(testConfig(), nil, nil).Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","storage":false}`, rec.Body.String())
}

func TestEvaluateSaveAndFetch(t *testing.T) {
	repo := testkit.NewInMemoryReportRepository()
	h := NewServer(testConfig(), repo, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/evaluate", EvaluateRequest{Table: syntheticTable(t), Save: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report ReportDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Saved)
	assert.False(t, report.ID.IsEmpty())
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "prediction", report.Rows[0].Column)
	assert.Contains(t, report.Rows[0].Metrics, "tb3_sharpe")
	require.NotNil(t, report.Rows[0].Metrics["mean"])
	assert.Greater(t, *report.Rows[0].Metrics["mean"], 0.0)

	rec = do(t, h, http.MethodGet, "/api/v1/reports/"+report.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched ReportDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, report.ID, fetched.ID)
	assert.Equal(t, report.Rows, fetched.Rows)

	rec = do(t, h, http.MethodGet, "/api/v1/reports/"+report.ID.String()+"?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, rec.Body.String(), "# Evaluation report "+report.ID.String())

	rec = do(t, h, http.MethodGet, "/api/v1/reports?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Reports []ports.ReportSummary `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Reports, 1)
	assert.Equal(t, 2, listing.Reports[0].Columns)
}

func TestEvaluateEncodesNonFiniteAsNull(t *testing.T) {
	eras := []string{"1", "1", "1", "1", "2", "2", "2", "2"}
	pred := []*float64{fptr(0.125), fptr(0.375), fptr(0.625), fptr(0.875), fptr(0.125), fptr(0.375), fptr(0.625), fptr(0.875)}
	example := []*float64{fptr(0.3), fptr(0.9), fptr(0.1), fptr(0.5), fptr(0.7), fptr(0.2), fptr(0.8), fptr(0.4)}
	fast := true
	req := EvaluateRequest{
		Table: TableDTO{Eras: eras, Columns: []ColumnDTO{
			{Name: "prediction", Values: pred},
			{Name: "target", Values: pred},
			{Name: "example_preds", Values: example},
		}},
		FastMode: &fast,
	}

	rec := do(t, NewServer(testConfig(), nil, nil).Handler(), http.MethodPost, "/api/v1/evaluate", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report ReportDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Rows, 1)
	metrics := report.Rows[0].Metrics
	assert.Nil(t, metrics["sharpe"], "+Inf sharpe is encoded as null")
	require.NotNil(t, metrics["std"])
	assert.Equal(t, 0.0, *metrics["std"])
	assert.NotContains(t, metrics, "tb3_mean")
	assert.Contains(t, rec.Body.String(), `"sharpe":null`)
	assert.NotEmpty(t, report.Diagnostics)
}

func TestEvaluateRejectsBadRequests(t *testing.T) {
	h := NewServer(testConfig(), nil, nil).Handler()
	table := syntheticTable(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"malformed json", `{"table":`, http.StatusBadRequest, errors.CodeInvalidInput},
		{"unknown field", `{"tabel":{}}`, http.StatusBadRequest, errors.CodeInvalidInput},
		{"no eras", EvaluateRequest{Table: TableDTO{Columns: table.Columns}}, http.StatusBadRequest, errors.CodeValidationError},
		{"tb zero", EvaluateRequest{Table: table, TBSize: new(int)}, http.StatusBadRequest, errors.CodeValidationError},
		{"short column", EvaluateRequest{Table: TableDTO{Eras: []string{"1", "1"}, Columns: []ColumnDTO{{Name: "prediction", Values: []*float64{fptr(1)}}}}}, http.StatusBadRequest, errors.CodeInvalidInput},
		{"missing target", EvaluateRequest{Table: table, TargetCol: "target_nope"}, http.StatusBadRequest, errors.CodeInvalidInput},
		{"save without storage", EvaluateRequest{Table: table, Save: true}, http.StatusBadRequest, errors.CodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/evaluate", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/v1/reports/whatever", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "report routes need storage")
}

func TestReportLookupErrors(t *testing.T) {
	h := NewServer(testConfig(), testkit.NewInMemoryReportRepository(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/reports/0192f4a4-7c3e-7b6a-9d51-3f8e2c1a0b9d", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeNotFound, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/reports?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNeutralizeEndpoint(t *testing.T) {
	h := NewServer(testConfig(), nil, nil).Handler()
	table := syntheticTable(t)

	rec := do(t, h, http.MethodPost, "/api/v1/neutralize", NeutralizeRequest{Table: table, Proportion: fptr(1)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TransformResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "prediction_neutralized_1.0", resp.Column)
	require.Len(t, resp.Values, len(table.Eras))
	for i, v := range resp.Values {
		require.NotNil(t, v, "row %d", i)
		assert.GreaterOrEqual(t, *v, 0.0)
		assert.LessOrEqual(t, *v, 1.0)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/neutralize", NeutralizeRequest{Table: table, Proportion: fptr(1.5)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/neutralize", NeutralizeRequest{Table: table, Prediction: "prediction", Suffix: "x", Features: []string{"feature_99"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPenalizeEndpoint(t *testing.T) {
	h := NewServer(testConfig(), nil, nil).Handler()
	table := syntheticTable(t)

	rec := do(t, h, http.MethodPost, "/api/v1/penalize", PenalizeRequest{Table: table, Prediction: "prediction_1", MaxExposure: fptr(0.2)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TransformResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "prediction_1_penalized_0.2", resp.Column)
	require.Len(t, resp.Values, len(table.Eras))
	for _, v := range resp.Values {
		require.NotNil(t, v)
		assert.GreaterOrEqual(t, *v, 0.0)
		assert.LessOrEqual(t, *v, 1.0+1e-12)
	}
}

// MockReportRepository records calls and returns canned results
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) SaveReport(ctx context.Context, report *evaluation.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) GetReport(ctx context.Context, id core.ID) (*evaluation.Report, error) {
	args := m.Called(ctx, id)
	report, _ := args.Get(0).(*evaluation.Report)
	return report, args.Error(1)
}

func (m *MockReportRepository) ListReports(ctx context.Context, filters ports.ReportFilters) ([]ports.ReportSummary, error) {
	args := m.Called(ctx, filters)
	summaries, _ := args.Get(0).([]ports.ReportSummary)
	return summaries, args.Error(1)
}

func TestStorageFailuresMapToServiceUnavailable(t *testing.T) {
	repo := new(MockReportRepository)
	dbErr := errors.DatabaseError("failed to save report", fmt.Errorf("connection refused"))
	repo.On("SaveReport", mock.Anything, mock.AnythingOfType("*evaluation.Report")).Return(dbErr)
	repo.On("ListReports", mock.Anything, ports.ReportFilters{InputHash: "abc", Limit: 10}).Return(nil, dbErr)
	h := NewServer(testConfig(), repo, nil).Handler()

	fast := true
	rec := do(t, h, http.MethodPost, "/api/v1/evaluate", EvaluateRequest{Table: syntheticTable(t), FastMode: &fast, Save: true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, errors.CodeDatabaseError, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/reports?input_hash=abc&limit=10", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	repo.AssertExpectations(t)
}
