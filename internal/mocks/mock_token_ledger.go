package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/you/authsvc/domain"
)

// MockTokenLedger implements domain.TokenLedger interface for testing
type MockTokenLedger struct {
	ConsumeFunc func(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseFunc func(ctx context.Context, id string) error

	mu   sync.Mutex
	used map[string]time.Duration
}

// NewMockTokenLedger creates a new MockTokenLedger with default behaviors
func NewMockTokenLedger() *MockTokenLedger {
	return &MockTokenLedger{used: make(map[string]time.Duration)}
}

// Consume marks id as used
func (m *MockTokenLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.used[id]; seen {
		return false, nil
	}
	m.used[id] = ttl
	return true, nil
}

// Release forgets id
func (m *MockTokenLedger) Release(ctx context.Context, id string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.used, id)
	return nil
}

// Compile-time interface compliance verification
var _ domain.TokenLedger = (*MockTokenLedger)(nil)
