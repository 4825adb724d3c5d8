// Package metrics names keygate's telemetry series and emits them through
// observability.TelemetrySystem. Every recorder is a no-op while telemetry
// is not initialized.
package metrics

import (
	"time"

	"github.com/keygate/keygate/internal/observability"
)

// Series names. The exporter prefixes them with the configured namespace.
const (
	OperationsTotal = "app_operations_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"

	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"

	RateLimitDecisionsTotal    = "ratelimit_decisions_total"
	RateLimitTrackedIdentities = "ratelimit_tracked_identities"
	RateLimitSweptTotal        = "ratelimit_swept_entries_total"
)

func counter(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, value, labels)
	}
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}

func histogram(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}

func outcome(ok bool, pass, fail string) string {
	if ok {
		return pass
	}
	return fail
}
