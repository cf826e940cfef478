package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesqa_pipeline_queries_total",
			Help: "Total number of pipeline queries by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	pipelineQueryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesqa_pipeline_query_latency_ms",
			Help:    "End-to-end pipeline latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 40000},
		},
		[]string{"mode"},
	)
	pipelineStageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesqa_pipeline_stage_latency_ms",
			Help:    "Latency of individual pipeline stages in milliseconds.",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		},
		[]string{"stage"},
	)
	sqlAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesqa_sql_attempts_total",
			Help: "Total number of SQL generate/execute attempts by result.",
		},
		[]string{"result"},
	)
	sqlRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesqa_sql_retries_total",
			Help: "Total number of SQL regenerations triggered by a failed attempt.",
		},
	)
	sqlRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesqa_sql_rejected_total",
			Help: "Total number of generated statements rejected by the SQL guard.",
		},
	)
	retrievalChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesqa_retrieval_chunks",
			Help:    "Number of chunks returned per retrieval.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)
	queryLogWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesqa_query_log_writes_total",
			Help: "Total number of query log writes by result.",
		},
		[]string{"result"},
	)
	ingestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesqa_ingest_chunks_total",
			Help: "Total number of document chunks written by the ingester.",
		},
		[]string{"doc_id"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineQueriesTotal,
		pipelineQueryLatencyMs,
		pipelineStageLatencyMs,
		sqlAttemptsTotal,
		sqlRetriesTotal,
		sqlRejectedTotal,
		retrievalChunks,
		queryLogWritesTotal,
		ingestChunksTotal,
	)
}

func ObservePipelineQuery(mode, outcome string, elapsed time.Duration) {
	pipelineQueriesTotal.WithLabelValues(mode, outcome).Inc()
	pipelineQueryLatencyMs.WithLabelValues(mode).Observe(float64(elapsed.Milliseconds()))
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageLatencyMs.WithLabelValues(stage).Observe(float64(elapsed.Milliseconds()))
}

func ObserveSQLAttempt(success bool) {
	if success {
		sqlAttemptsTotal.WithLabelValues("success").Inc()
		return
	}
	sqlAttemptsTotal.WithLabelValues("failure").Inc()
}

func IncrementSQLRetry() {
	sqlRetriesTotal.Inc()
}

func IncrementSQLRejected() {
	sqlRejectedTotal.Inc()
}

func ObserveRetrievalChunks(count int) {
	if count < 0 {
		count = 0
	}
	retrievalChunks.Observe(float64(count))
}

func ObserveQueryLogWrite(err error) {
	if err != nil {
		queryLogWritesTotal.WithLabelValues("error").Inc()
		return
	}
	queryLogWritesTotal.WithLabelValues("ok").Inc()
}

func AddIngestChunks(docID string, chunks int) {
	if chunks <= 0 {
		return
	}
	ingestChunksTotal.WithLabelValues(docID).Add(float64(chunks))
}
