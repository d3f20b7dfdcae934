package mocks

import (
	"context"
	"sync"

	"github.com/you/authsvc/domain"
)

// SentNotification is a message captured by MockNotificationService
type SentNotification struct {
	Destination string
	Subject     string
	Body        string
}

// MockNotificationService implements domain.NotificationService interface for testing
type MockNotificationService struct {
	SendFunc func(ctx context.Context, destination, subject, body string) error

	mu   sync.Mutex
	sent []SentNotification
}

// NewMockNotificationService creates a new MockNotificationService with default behaviors
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

// Send records the message and delegates to SendFunc when set
func (m *MockNotificationService) Send(ctx context.Context, destination, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentNotification{Destination: destination, Subject: subject, Body: body})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, destination, subject, body)
	}
	// Default behavior: success (nothing is actually delivered in tests)
	return nil
}

// Sent returns a copy of every message passed to Send
func (m *MockNotificationService) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.sent))
	copy(out, m.sent)
	return out
}

// Compile-time interface compliance verification
var _ domain.NotificationService = (*MockNotificationService)(nil)
