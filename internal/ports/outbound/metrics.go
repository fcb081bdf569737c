package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the reconciliation service to record metrics without depending
// on specific telemetry implementations.
type MetricsRecorder interface {
	// RecordComparison records one finished block comparison.
	// status is the outcome ("match", "mismatch", or "skipped") and
	// fetchDuration is how long the authoritative fetch took.
	RecordComparison(ctx context.Context, status string, fetchDuration time.Duration)

	// RecordReconnect records a successful stream reconnection.
	RecordReconnect(ctx context.Context)
}
