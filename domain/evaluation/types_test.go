package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMatchesValues(t *testing.T) {
	tests := []struct {
		name     string
		fastMode bool
		extended *ExtendedMetrics
	}{
		{"fast", true, nil},
		{"full", false, &ExtendedMetrics{MaxFeatureExposure: 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewReport(Settings{FastMode: tt.fastMode, TBSize: 200})
			row := MetricsRow{Column: "prediction", Target: "target", Extended: tt.extended}

			// header carries "target" in front of the numeric values
			assert.Equal(t, len(report.Header()), len(row.Values())+1)
		})
	}
}

func TestHeaderUsesTBSize(t *testing.T) {
	report := NewReport(Settings{TBSize: 50})
	header := report.Header()
	assert.Contains(t, header, "tb50_mean")
	assert.Contains(t, header, "tb50_sharpe")
	assert.False(t, report.ID.IsEmpty())
}

func TestReportRowLookup(t *testing.T) {
	report := NewReport(Settings{})
	report.Rows = []MetricsRow{{Column: "prediction_a", Mean: 0.1}, {Column: "prediction_b", Mean: 0.2}}

	row, ok := report.Row("prediction_b")
	require.True(t, ok)
	assert.Equal(t, 0.2, row.Mean)

	_, ok = report.Row("prediction_c")
	assert.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NaN", FormatValue(math.NaN()))
	assert.Equal(t, "+Inf", FormatValue(math.Inf(1)))
	assert.Equal(t, "-Inf", FormatValue(math.Inf(-1)))
	assert.Equal(t, "0.125000", FormatValue(0.125))
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Column: "prediction", Stage: "correlation", Era: "era3", Kind: DiagnosticDegenerateEra, Message: "constant target"}
	assert.Equal(t, "prediction/correlation era era3: constant target (degenerate_era)", d.String())
}

func TestRowFromValues(t *testing.T) {
	full := MetricsRow{
		Column: "prediction", Target: "target", Mean: 0.03, Sharpe: math.Inf(1), APY: 12.5,
		Extended: &ExtendedMetrics{MaxFeatureExposure: 0.2, TBSharpe: 1.5},
	}
	back, err := RowFromValues(full.Column, full.Target, full.Values())
	require.NoError(t, err)
	assert.Equal(t, full, back)

	fast, err := RowFromValues("prediction", "target", make([]float64, 9))
	require.NoError(t, err)
	assert.Nil(t, fast.Extended)

	_, err = RowFromValues("prediction", "target", make([]float64, 10))
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	for _, v := range []float64{math.Inf(1), math.Inf(-1), 0.125, -2} {
		got, err := ParseValue(FormatValue(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	nan, err := ParseValue("NaN")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(nan))

	_, err = ParseValue("high")
	assert.Error(t, err)
}
