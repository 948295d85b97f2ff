package metrics

import (
	"strconv"
	"time"

	"github.com/icdlens/icdlens/internal/observability"
)

// Search pipeline metrics following Prometheus conventions
const (
	SearchesTotal       = "icd_searches_total"
	SearchDuration      = "icd_search_duration_ms"
	SearchResults       = "icd_search_results"
	ProxyRequestsTotal  = "icd_proxy_requests_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
)

// RecordSearch records one settled search. endpoint is primary or proxy;
// outcome is ok, or the fetch error code in lower case.
func RecordSearch(endpoint, mode, outcome string, results int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{
		"endpoint": endpoint,
		"mode":     mode,
		"outcome":  outcome,
	}
	_ = observability.TelemetrySystem.Counter(SearchesTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(SearchDuration, duration, labels)
	_ = observability.TelemetrySystem.Gauge(SearchResults, float64(results), map[string]string{"endpoint": endpoint})
}

// RecordProxyRequest records a response written by the catalog proxy route.
func RecordProxyRequest(outcome string, status int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ProxyRequestsTotal, 1, map[string]string{
		"outcome": outcome,
		"status":  strconv.Itoa(status),
	})
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}
