// Package metrics records stylization and HTTP metrics. Counters are kept
// in memory for /health and exported to Prometheus through OpenTelemetry.
package metrics

import "time"

// StylizeRecord is one stylization attempt.
type StylizeRecord struct {
	// RequestID correlates the record with request logs
	RequestID string `json:"request_id"`

	// Backend is the pipeline that served the request
	Backend string `json:"backend"`

	// Status is "success" or "error"
	Status string `json:"status"`

	// ErrorKind is the failure classification when Status is "error"
	ErrorKind string `json:"error_kind,omitempty"`

	// Stall marks results that were published to the stall slot
	Stall bool `json:"stall"`

	// FinishedAt is when the attempt completed
	FinishedAt time.Time `json:"finished_at"`

	// Duration is the total time spent in the service
	Duration time.Duration `json:"duration"`
}

// Summary aggregates all records seen since startup.
type Summary struct {
	Total       int64            `json:"total"`
	Success     int64            `json:"success"`
	Errors      int64            `json:"errors"`
	SuccessRate float64          `json:"success_rate"`
	AvgDuration time.Duration    `json:"avg_duration"`
	ByErrorKind map[string]int64 `json:"by_error_kind"`
	Uptime      time.Duration    `json:"uptime"`
}

// Status constants for StylizeRecord
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
