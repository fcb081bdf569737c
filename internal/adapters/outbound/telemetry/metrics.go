package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	blocksCompared metric.Int64Counter
	fetchDuration  metric.Float64Histogram
	reconnects     metric.Int64Counter
}

// NewMetrics creates a new OpenTelemetry metrics recorder.
// meterName should typically be the service name.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	blocks, err := meter.Int64Counter(
		"blocks_compared_total",
		metric.WithDescription("Total number of blocks compared, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks_compared_total counter: %w", err)
	}

	fetch, err := meter.Float64Histogram(
		"rpc_fetch_duration_seconds",
		metric.WithDescription("Time taken to re-derive a block's transaction count from RPC"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc_fetch_duration_seconds histogram: %w", err)
	}

	reconnects, err := meter.Int64Counter(
		"stream_reconnects_total",
		metric.WithDescription("Total number of successful block feed reconnections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_reconnects_total counter: %w", err)
	}

	return &Metrics{
		blocksCompared: blocks,
		fetchDuration:  fetch,
		reconnects:     reconnects,
	}, nil
}

// RecordComparison records one finished block comparison.
func (m *Metrics) RecordComparison(ctx context.Context, status string, fetchDuration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.blocksCompared.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, fetchDuration.Seconds(), attrs)
}

// RecordReconnect increments the reconnect counter.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	m.reconnects.Add(ctx, 1)
}
