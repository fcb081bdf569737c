// Package memory provides in-memory adapter implementations for testing.
//
// AlertSink stores all published alerts for later inspection. All operations
// are thread-safe. For production, use the sns adapter instead.
package memory

import (
	"context"
	"sync"

	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// Compile-time check that AlertSink implements outbound.AlertSink
var _ outbound.AlertSink = (*AlertSink)(nil)

// AlertSink is an in-memory implementation of the AlertSink port for testing.
type AlertSink struct {
	mu     sync.RWMutex
	alerts []outbound.MismatchAlert
	closed bool

	// Callback for test assertions
	onPublish func(outbound.MismatchAlert)
}

// NewAlertSink creates a new in-memory alert sink for testing.
func NewAlertSink() *AlertSink {
	return &AlertSink{
		alerts: make([]outbound.MismatchAlert, 0),
	}
}

// Publish stores the alert in memory.
func (s *AlertSink) Publish(ctx context.Context, alert outbound.MismatchAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.alerts = append(s.alerts, alert)

	if s.onPublish != nil {
		s.onPublish(alert)
	}

	return nil
}

// Close marks the sink as closed.
func (s *AlertSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Alerts returns all published alerts.
func (s *AlertSink) Alerts() []outbound.MismatchAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.MismatchAlert, len(s.alerts))
	copy(result, s.alerts)
	return result
}

// AlertCount returns the number of published alerts.
func (s *AlertSink) AlertCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// OnPublish sets a callback to be called when an alert is published.
func (s *AlertSink) OnPublish(fn func(outbound.MismatchAlert)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = fn
}
