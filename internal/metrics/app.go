package metrics

import (
	"time"

	"github.com/agritutor/agritutor/internal/observability"
)

// Application metric names.
const (
	CommandsTotal       = "app_commands_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
	ServerUptime        = "app_server_uptime_seconds"
	CatalogTemplates    = "app_catalog_templates"
	CacheEntries        = "app_response_cache_entries"
	CacheLastPruned     = "app_response_cache_last_pruned"
)

func successStatus(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// RecordCommand counts a maintenance command (cache prune, catalog lint).
func RecordCommand(command string, success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(CommandsTotal, 1, map[string]string{
		"command": command,
		"status":  successStatus(success, "success", "failure"),
	})
}

// RecordHealthCheck records one checker run.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": successStatus(healthy, "healthy", "unhealthy"),
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	setGauge(ServerStartTime, float64(timestamp), nil)
}

// SetServerUptime records uptime in seconds.
func SetServerUptime(seconds int64) {
	setGauge(ServerUptime, float64(seconds), nil)
}

// SetCatalogTemplates records the loaded catalog size by source.
func SetCatalogTemplates(source string, count int) {
	setGauge(CatalogTemplates, float64(count), map[string]string{"source": source})
}

// RecordCachePrune records how many rows the last prune removed and how many
// remain.
func RecordCachePrune(removed int64, remaining int64) {
	setGauge(CacheLastPruned, float64(removed), nil)
	setGauge(CacheEntries, float64(remaining), nil)
}

func setGauge(name string, value float64, tags map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(name, value, tags)
}
