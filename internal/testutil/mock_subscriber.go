// Package testutil provides hand-written mocks for the outbound ports.
package testutil

import (
	"context"
	"sync"

	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// MockSubscriber is a test subscriber that emits block updates on demand.
// It satisfies the outbound.BlockSubscriber interface.
type MockSubscriber struct {
	mu        sync.Mutex
	updates   chan outbound.BlockUpdate
	closed    bool
	onReconn  func()
	reconnSet chan struct{}
}

func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{
		updates:   make(chan outbound.BlockUpdate, 100),
		reconnSet: make(chan struct{}),
	}
}

func (m *MockSubscriber) Subscribe(ctx context.Context) (<-chan outbound.BlockUpdate, error) {
	return m.updates, nil
}

func (m *MockSubscriber) Unsubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.updates)
	}
	return nil
}

func (m *MockSubscriber) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockSubscriber) SetOnReconnect(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconn = callback
	select {
	case <-m.reconnSet:
	default:
		close(m.reconnSet)
	}
}

// SendUpdate delivers one block update to the subscriber's channel.
func (m *MockSubscriber) SendUpdate(update outbound.BlockUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.updates <- update
	}
}

// SimulateReconnect fires the reconnect callback as the real subscriber
// does after re-establishing a dropped connection. It blocks until a
// callback has been registered so tests can fire it from a goroutine.
func (m *MockSubscriber) SimulateReconnect() {
	<-m.reconnSet
	m.mu.Lock()
	callback := m.onReconn
	m.mu.Unlock()
	if callback != nil {
		callback()
	}
}
