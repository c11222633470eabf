package metrics

import (
	"time"

	"github.com/agritutor/agritutor/internal/observability"
)

// Tutor and prompt metrics
const (
	PromptFillsTotal     = "prompt_fills_total"
	TutorRequestsTotal   = "tutor_requests_total"
	TutorRequestDuration = "tutor_request_duration_ms"
	TutorCacheHitsTotal  = "tutor_cache_hits_total"
)

// RecordFill counts a template fill.
func RecordFill(templateID string, complete bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "complete"
	if !complete {
		status = "incomplete"
	}
	_ = observability.TelemetrySystem.Counter(
		PromptFillsTotal,
		1,
		map[string]string{
			"template": templateID,
			"status":   status,
		},
	)
}

// RecordTutorRequest records a model call outcome. status is "success" or an
// error code.
func RecordTutorRequest(provider, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		TutorRequestsTotal,
		1,
		map[string]string{
			"provider": provider,
			"status":   status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		TutorRequestDuration,
		duration,
		map[string]string{
			"provider": provider,
		},
	)
}

// RecordCacheHit counts an answer served from the response cache.
func RecordCacheHit(provider string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		TutorCacheHitsTotal,
		1,
		map[string]string{"provider": provider},
	)
}
