package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// NewRelicApp wraps the New Relic application. Every method is a no-op when the
// agent is disabled, so callers never need to nil-check.
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		// Return disabled app
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// Disabled returns an agent that records nothing. Used by tests.
func Disabled() *NewRelicApp {
	return &NewRelicApp{nil, false}
}

// App returns the underlying application or nil when disabled.
func (nr *NewRelicApp) App() *newrelic.Application {
	if nr == nil || !nr.enabled {
		return nil
	}
	return nr.Application
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if nr == nil || !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if nr == nil || !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if nr == nil || !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.Shutdown(timeout)
}

// Custom metric helpers

// RecordCandidateSearch records how long a nearby-driver search took
func (nr *NewRelicApp) RecordCandidateSearch(latencyMs float64, candidates int) {
	nr.RecordCustomMetric("custom/trip/candidate_search_latency_ms", latencyMs)
	nr.RecordCustomMetric("custom/trip/candidates_found", float64(candidates))
}

// RecordLocationUpdate records driver location update
func (nr *NewRelicApp) RecordLocationUpdate() {
	nr.RecordCustomMetric("custom/driver/location_update", 1)
}

// RecordTripRequested records trip creation
func (nr *NewRelicApp) RecordTripRequested(vehicleType string, fare float64) {
	nr.RecordCustomEvent("TripRequested", map[string]interface{}{
		"vehicle_type": vehicleType,
		"fare":         fare,
		"timestamp":    time.Now().Unix(),
	})
}

// RecordTripCompleted records trip completion
func (nr *NewRelicApp) RecordTripCompleted(tripID string, fare float64, distanceMeters int, durationSeconds int, paymentMethod string) {
	nr.RecordCustomEvent("TripCompleted", map[string]interface{}{
		"trip_id":          tripID,
		"fare":             fare,
		"distance_meters":  distanceMeters,
		"duration_seconds": durationSeconds,
		"payment_method":   paymentMethod,
	})
}

// RecordTripCancelled records who cancelled a trip and from which status
func (nr *NewRelicApp) RecordTripCancelled(tripID string, fromStatus string, byRole string) {
	nr.RecordCustomEvent("TripCancelled", map[string]interface{}{
		"trip_id":     tripID,
		"from_status": fromStatus,
		"by_role":     byRole,
	})
}

// RecordRedisPoolStats records Redis pool statistics
func (nr *NewRelicApp) RecordRedisPoolStats(stats map[string]interface{}) {
	if hits, ok := stats["hits"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/cache_hits", float64(hits))
	}
	if misses, ok := stats["misses"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/cache_misses", float64(misses))
	}
	if timeouts, ok := stats["timeouts"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/timeouts", float64(timeouts))
	}
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr != nil && nr.enabled
}
