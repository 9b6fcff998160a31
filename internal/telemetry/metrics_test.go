package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveEvaluation(t *testing.T) {
	before := testutil.ToFloat64(evaluationsTotal.WithLabelValues("fast", "error"))
	ObserveEvaluation(true, errors.New("boom"))
	after := testutil.ToFloat64(evaluationsTotal.WithLabelValues("fast", "error"))
	assert.Equal(t, before+1, after)
}

func TestDegenerateEraAndFit(t *testing.T) {
	before := testutil.ToFloat64(degenerateEras.WithLabelValues("mmc"))
	DegenerateEra("mmc")
	assert.Equal(t, before+1, testutil.ToFloat64(degenerateEras.WithLabelValues("mmc")))

	nc := testutil.ToFloat64(nonConverged)
	ObserveFit(10, true)
	assert.Equal(t, nc, testutil.ToFloat64(nonConverged))
	ObserveFit(1000, false)
	assert.Equal(t, nc+1, testutil.ToFloat64(nonConverged))

	ObserveColumn(false, 5*time.Millisecond)
}
