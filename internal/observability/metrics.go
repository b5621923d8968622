package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	attemptsStartedTotal   prometheus.Counter
	attemptsSubmittedTotal *prometheus.CounterVec
	gradingLatencySeconds  prometheus.Histogram
	definitionCacheTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the quiz service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		attemptsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Total number of quiz attempts created.",
		})

		attemptsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_attempts_submitted_total",
			Help: "Total number of quiz attempts submitted, by grading outcome.",
		}, []string{"grading"})

		gradingLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_grading_latency_seconds",
			Help:    "Latency distribution for grading at submit time.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		})

		definitionCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_definition_cache_total",
			Help: "Quiz definition cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(attemptsStartedTotal, attemptsSubmittedTotal, gradingLatencySeconds, definitionCacheTotal)
	})
}

// AttemptsStarted exposes the counter for created attempts.
func AttemptsStarted() prometheus.Counter {
	RegisterMetrics()
	return attemptsStartedTotal
}

// AttemptsSubmitted exposes the counter for submitted attempts.
func AttemptsSubmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsSubmittedTotal
}

// GradingLatency exposes the grading latency histogram.
func GradingLatency() prometheus.Histogram {
	RegisterMetrics()
	return gradingLatencySeconds
}

// DefinitionCache exposes the definition cache counter.
func DefinitionCache() *prometheus.CounterVec {
	RegisterMetrics()
	return definitionCacheTotal
}
