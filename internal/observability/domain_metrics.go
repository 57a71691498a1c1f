package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbanalyst_validation_rejections_total",
			Help: "Total number of user requests rejected by the request validator.",
		},
		[]string{"category"},
	)
	guardViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbanalyst_guard_violations_total",
			Help: "Total number of SQL statements rejected by the query guard.",
		},
		[]string{"reason"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbanalyst_query_executions_total",
			Help: "Total number of guarded query executions by status.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbanalyst_query_duration_seconds",
			Help:    "Guarded query execution latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbanalyst_query_rows",
			Help:    "Number of rows materialized per guarded query.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
	)
	orchestratorOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbanalyst_orchestrator_outcomes_total",
			Help: "Total number of orchestrated requests by terminal state.",
		},
		[]string{"state"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbanalyst_llm_requests_total",
			Help: "Total number of LLM calls by operation and status.",
		},
		[]string{"operation", "status"},
	)
	ragDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbanalyst_rag_documents_total",
			Help: "Total number of documents ingested.",
		},
	)
	ragChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbanalyst_rag_chunks_total",
			Help: "Total number of document chunks embedded.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		validationRejectionsTotal,
		guardViolationsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		queryRows,
		orchestratorOutcomesTotal,
		llmRequestsTotal,
		ragDocumentsTotal,
		ragChunksTotal,
	)
}

func IncrementValidationRejection(category string) {
	validationRejectionsTotal.WithLabelValues(category).Inc()
}

func IncrementGuardViolation(reason string) {
	guardViolationsTotal.WithLabelValues(reason).Inc()
}

func ObserveQueryExecution(status string, rows int, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
	if rows >= 0 {
		queryRows.Observe(float64(rows))
	}
}

func IncrementOrchestratorOutcome(state string) {
	orchestratorOutcomesTotal.WithLabelValues(state).Inc()
}

func IncrementLLMRequest(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmRequestsTotal.WithLabelValues(operation, status).Inc()
}

func ObserveDocumentIngested(chunks int) {
	ragDocumentsTotal.Inc()
	if chunks > 0 {
		ragChunksTotal.Add(float64(chunks))
	}
}
