package testutil

import (
	"context"
	"sync"

	"github.com/solwatch/geyser-verify/internal/ports/outbound"
)

// MockCounter is a scripted TransactionCounter. Counts maps slots to the
// count returned; Errors maps slots to an error returned instead.
type MockCounter struct {
	mu     sync.Mutex
	Counts map[uint64]uint64
	Errors map[uint64]error
	calls  []uint64
}

func NewMockCounter() *MockCounter {
	return &MockCounter{
		Counts: make(map[uint64]uint64),
		Errors: make(map[uint64]error),
	}
}

func (m *MockCounter) Name() string {
	return "mock"
}

func (m *MockCounter) CountTransactions(ctx context.Context, slot uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, slot)

	if err, ok := m.Errors[slot]; ok {
		return 0, err
	}
	return m.Counts[slot], nil
}

// Calls returns the slots fetched so far, in call order.
func (m *MockCounter) Calls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]uint64, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns how many fetches were made.
func (m *MockCounter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ outbound.TransactionCounter = (*MockCounter)(nil)
