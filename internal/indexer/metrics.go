package indexer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opIndex = "index"
	opQuery = "query"
)

var (
	// upstreamReqs counts indexer calls by operation and outcome
	// (ok|upstream_error|contract_violation).
	upstreamReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_requests_total",
			Help: "Total number of calls to the external indexing service.",
		},
		[]string{"op", "outcome"},
	)

	// upstreamLat uses wider buckets than the HTTP histogram; indexing a large
	// PDF routinely takes tens of seconds.
	upstreamLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_request_duration_seconds",
			Help:    "Duration of calls to the external indexing service in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(upstreamReqs, upstreamLat)
}

// observe is deferred by Index and Query with a pointer to their named error.
func observe(op string, start time.Time, errp *error) {
	upstreamLat.WithLabelValues(op).Observe(time.Since(start).Seconds())
	upstreamReqs.WithLabelValues(op, outcome(*errp)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrContractViolation):
		return "contract_violation"
	default:
		return "upstream_error"
	}
}
