package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_pipeline_runs_total",
			Help: "Total number of question pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asksql_llm_call_duration_seconds",
			Help:    "LLM completion latency by operation and provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"operation", "provider"},
	)
	llmCallErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_llm_call_errors_total",
			Help: "Total number of failed LLM completions by operation and provider.",
		},
		[]string{"operation", "provider"},
	)
	sqlRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asksql_sql_rejections_total",
			Help: "Total number of generated statements refused by the read-only validator.",
		},
	)
	memoryLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_memory_lookups_total",
			Help: "Conversation memory lookups by result.",
		},
		[]string{"result"},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asksql_query_rows",
			Help:    "Rows returned per executed statement.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asksql_query_duration_seconds",
			Help:    "Statement execution latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		llmCallDurationSeconds,
		llmCallErrorsTotal,
		sqlRejectionsTotal,
		memoryLookupsTotal,
		queryRows,
		queryDurationSeconds,
	)
}

func ObservePipelineRun(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

func ObserveLLMCall(operation, provider string, elapsed time.Duration, err error) {
	llmCallDurationSeconds.WithLabelValues(operation, provider).Observe(elapsed.Seconds())
	if err != nil {
		llmCallErrorsTotal.WithLabelValues(operation, provider).Inc()
	}
}

func IncrementSQLRejection() {
	sqlRejectionsTotal.Inc()
}

func ObserveMemoryLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	memoryLookupsTotal.WithLabelValues(result).Inc()
}

func ObserveQuery(rows int, elapsed time.Duration) {
	if rows < 0 {
		rows = 0
	}
	queryRows.Observe(float64(rows))
	queryDurationSeconds.Observe(elapsed.Seconds())
}
