package fetch

import (
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "icdlens_client",
			Name:      "fetch_attempts_total",
			Help:      "Catalog fetch attempts by host and outcome.",
		},
		[]string{"host", "outcome"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "icdlens_client",
			Name:      "fetch_retries_total",
			Help:      "Retries scheduled after a retryable failure.",
		},
		[]string{"host"},
	)

	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "icdlens_client",
			Name:      "fetch_attempt_duration_seconds",
			Help:      "Wall time of a single catalog fetch attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"host"},
	)
)

// hostLabel keeps label cardinality bounded to the upstream host.
func hostLabel(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if IsCanceled(err) {
		return "canceled"
	}
	if apiErr, ok := err.(*APIError); ok {
		return string(apiErr.Code)
	}
	return "error"
}
