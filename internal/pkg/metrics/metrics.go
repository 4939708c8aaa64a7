package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zaidan_quotes_total",
		Help: "Quote requests issued to the dealer",
	}, []string{"kind", "status"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zaidan_settlements_total",
		Help: "Signed fill transactions submitted for settlement",
	}, []string{"status"})

	ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zaidan_confirmations_total",
		Help: "Settlement transactions observed in a terminal state",
	}, []string{"status"})

	AllowanceOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zaidan_allowance_operations_total",
		Help: "Allowance checks and approvals",
	}, []string{"op", "result"})

	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zaidan_stage_latency_seconds",
		Help:    "Latency of each trade pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zaidan_http_latency_seconds",
		Help:    "Gateway request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
