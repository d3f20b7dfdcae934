package mocks

import (
	"context"
	"time"

	"github.com/you/authsvc/domain"
)

// MockOTPService implements domain.OTPService interface for testing
type MockOTPService struct {
	IssueFunc        func(ctx context.Context, key domain.OTPKey, destination string) (*domain.OTPEntry, error)
	ValidateFunc     func(ctx context.Context, key domain.OTPKey, code string) error
	ResendFunc       func(ctx context.Context, key domain.OTPKey, destination string) (*domain.OTPEntry, error)
	PurgeExpiredFunc func(ctx context.Context) (int, error)

	IssuedTo []string
}

// NewMockOTPService creates a new MockOTPService with default behaviors
func NewMockOTPService() *MockOTPService {
	return &MockOTPService{}
}

// Issue creates a passcode for the key
func (m *MockOTPService) Issue(ctx context.Context, key domain.OTPKey, destination string) (*domain.OTPEntry, error) {
	m.IssuedTo = append(m.IssuedTo, destination)
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, key, destination)
	}
	return mockEntry(key), nil
}

// Validate checks a passcode for the key
func (m *MockOTPService) Validate(ctx context.Context, key domain.OTPKey, code string) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, key, code)
	}
	// Default behavior: accept "123456" as valid OTP
	if code != "123456" {
		return &domain.OTPMismatchError{AttemptsRemaining: 4}
	}
	return nil
}

// Resend regenerates the passcode for the key
func (m *MockOTPService) Resend(ctx context.Context, key domain.OTPKey, destination string) (*domain.OTPEntry, error) {
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, key, destination)
	}
	return mockEntry(key), nil
}

// PurgeExpired removes expired passcodes
func (m *MockOTPService) PurgeExpired(ctx context.Context) (int, error) {
	if m.PurgeExpiredFunc != nil {
		return m.PurgeExpiredFunc(ctx)
	}
	return 0, nil
}

func mockEntry(key domain.OTPKey) *domain.OTPEntry {
	now := time.Now()
	return &domain.OTPEntry{
		Key:               key,
		Code:              "123456", // Mock OTP code for testing
		IssuedAt:          now,
		ExpiresAt:         now.Add(5 * time.Minute),
		AttemptsRemaining: 5,
	}
}

// Compile-time interface compliance verification
var _ domain.OTPService = (*MockOTPService)(nil)
