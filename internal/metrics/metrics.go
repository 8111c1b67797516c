// Package metrics holds the prometheus collectors shared by the ingest
// pipeline and the validation server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lexgraph"

var (
	Chunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_total",
		Help:      "Chunks seen by the ingest pipeline by outcome (processed, skipped, failed).",
	}, []string{"outcome"})

	GleaningRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gleaning_rounds",
		Help:      "Extraction rounds per chunk including the initial round.",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Text generation calls by outcome (ok, retry, failed, empty).",
	}, []string{"outcome"})

	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "Tokens reported by the text generation backend.",
	}, []string{"direction"})

	StoreApply = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "graph_apply_seconds",
		Help:      "Duration of graph mutations by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	GraphRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_records_total",
		Help:      "Nodes and edges written by the ingest pipeline.",
	}, []string{"kind"})

	Proposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proposal_transitions_total",
		Help:      "Proposal state transitions by target status.",
	}, []string{"status"})

	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "votes_total",
		Help:      "Votes cast by value.",
	}, []string{"vote"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// QueueMessages counts worker deliveries by queue and outcome (ack, retry, dlq).
var QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "queue_messages_total",
	Help:      "Worker deliveries by queue and outcome.",
}, []string{"queue", "outcome"})
