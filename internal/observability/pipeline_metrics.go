package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_pipeline_runs_total",
			Help: "Total number of question pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	pipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querychat_pipeline_failures_total",
			Help: "Total number of failed pipeline runs by failure kind.",
		},
		[]string{"kind"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_llm_call_duration_seconds",
			Help:    "Language model call latency by purpose.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"purpose", "status"},
	)
	dbQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querychat_db_query_duration_seconds",
			Help:    "Gateway query latency including connect and close.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "status"},
	)
	retrievalDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querychat_retrieval_duration_seconds",
			Help:    "Schema retrieval latency including the question embedding call.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineFailuresTotal,
		llmCallDurationSeconds,
		dbQueryDurationSeconds,
		retrievalDurationSeconds,
	)
}

func ObservePipelineRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

func IncrementPipelineFailure(kind string) {
	pipelineFailuresTotal.WithLabelValues(kind).Inc()
}

func ObserveLLMCall(purpose string, elapsed time.Duration, err error) {
	llmCallDurationSeconds.WithLabelValues(purpose, statusLabel(err)).Observe(elapsed.Seconds())
}

func ObserveDBQuery(driver string, elapsed time.Duration, err error) {
	dbQueryDurationSeconds.WithLabelValues(driver, statusLabel(err)).Observe(elapsed.Seconds())
}

func ObserveRetrieval(elapsed time.Duration) {
	retrievalDurationSeconds.Observe(elapsed.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
