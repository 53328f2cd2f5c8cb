// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "rewind"

type Metrics struct {
	registry *prometheus.Registry

	APIRequests   prometheus.Counter
	APIRateLimits prometheus.Counter
	APIRetries    prometheus.Counter

	QueueDepth    prometheus.Gauge
	QueueInflight prometheus.Gauge
	QueueDLQ      prometheus.Counter

	MatchesProcessed prometheus.Counter
	MatchesFailed    prometheus.Counter
	ProcessLatency   prometheus.Histogram

	AggregationRuns  prometheus.Counter
	AggregationSkips prometheus.Counter

	ActiveStreams prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		APIRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "riot_api_requests_total",
			Help:      "Successful Riot API calls.",
		}),
		APIRateLimits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "riot_api_rate_limited_total",
			Help:      "429 responses observed by the limiter.",
		}),
		APIRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "riot_api_retries_total",
			Help:      "Retried Riot API calls.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting in the work queue.",
		}),
		QueueInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_inflight",
			Help:      "Messages currently leased to consumers.",
		}),
		QueueDLQ: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dead_lettered_total",
			Help:      "Messages moved to the dead-letter buffer.",
		}),
		MatchesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_processed_total",
			Help:      "Queue messages processed successfully.",
		}),
		MatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_failed_total",
			Help:      "Queue messages that failed and were reported back.",
		}),
		ProcessLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_process_seconds",
			Help:      "Per-message processing latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		AggregationRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_runs_total",
			Help:      "Aggregations that recomputed and wrote a recap.",
		}),
		AggregationSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_skips_total",
			Help:      "Aggregations skipped due to an unchanged content hash.",
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Clients currently attached to a progress stream.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var Module = fx.Provide(New)
