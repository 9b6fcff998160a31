package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// evaluationsTotal counts evaluation calls by mode and result
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eraeval_evaluations_total",
		Help: "Total evaluation calls by mode and result",
	}, []string{"mode", "result"})

	// columnDuration tracks per-column evaluation latency
	columnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eraeval_column_evaluation_duration_seconds",
		Help:    "Time to evaluate one prediction column",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"mode"})

	// degenerateEras counts eras skipped because of a numerical degeneracy
	degenerateEras = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eraeval_degenerate_eras_total",
		Help: "Eras flagged degenerate by stage",
	}, []string{"stage"})

	// optimizerIterations tracks iterations per era fit
	optimizerIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eraeval_optimizer_iterations",
		Help:    "Adamax iterations per era fit",
		Buckets: prometheus.ExponentialBuckets(1, 10, 7),
	})

	// nonConverged counts fits that hit the iteration cap
	nonConverged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eraeval_optimizer_non_converged_total",
		Help: "Era fits stopped by the iteration cap",
	})
)

func mode(fast bool) string {
	if fast {
		return "fast"
	}
	return "full"
}

// ObserveEvaluation records the outcome of an evaluation call
func ObserveEvaluation(fast bool, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	evaluationsTotal.WithLabelValues(mode(fast), result).Inc()
}

// ObserveColumn records the time spent on one column
func ObserveColumn(fast bool, elapsed time.Duration) {
	columnDuration.WithLabelValues(mode(fast)).Observe(elapsed.Seconds())
}

// DegenerateEra records a skipped era for a stage
func DegenerateEra(stage string) {
	degenerateEras.WithLabelValues(stage).Inc()
}

// ObserveFit records one optimizer fit
func ObserveFit(iterations int, converged bool) {
	optimizerIterations.Observe(float64(iterations))
	if !converged {
		nonConverged.Inc()
	}
}
