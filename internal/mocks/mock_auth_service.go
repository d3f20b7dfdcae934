package mocks

import (
	"context"

	"github.com/you/authsvc/domain"
)

// MockAuthService implements domain.AuthService interface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error)
	VerifyOTPFunc      func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error)
	ResendOTPFunc      func(ctx context.Context, pendingToken string) (*domain.AuthResult, error)
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, resetToken, newPassword string) error
	LoginFederatedFunc func(ctx context.Context, rawToken string) (*domain.AuthResult, error)
	MeFunc             func(ctx context.Context, sessionToken string) (*domain.IdentitySummary, error)
}

// NewMockAuthService creates a new MockAuthService with default behaviors
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

func mockIdentity() *domain.Identity {
	return &domain.Identity{
		ID:       1,
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Active:   true,
		Roles:    []domain.RoleAssignment{{RoleCode: "EMPLOYEE", Active: true}},
	}
}

// Login authenticates with username and password
func (m *MockAuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	// Default behavior: a session without step-up
	return &domain.AuthResult{
		Identity:  mockIdentity(),
		Roles:     []string{"EMPLOYEE"},
		Token:     "mock_session_token",
		ExpiresIn: 3600,
	}, nil
}

// VerifyOTP completes a step-up challenge
func (m *MockAuthService) VerifyOTP(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, req)
	}
	return &domain.AuthResult{
		Identity:  mockIdentity(),
		Roles:     []string{"EMPLOYEE"},
		Token:     "mock_session_token",
		ExpiresIn: 3600,
	}, nil
}

// ResendOTP regenerates a pending challenge
func (m *MockAuthService) ResendOTP(ctx context.Context, pendingToken string) (*domain.AuthResult, error) {
	if m.ResendOTPFunc != nil {
		return m.ResendOTPFunc(ctx, pendingToken)
	}
	return &domain.AuthResult{
		Identity:     mockIdentity(),
		Roles:        []string{"EMPLOYEE"},
		OTPRequired:  true,
		PendingToken: "mock_pending_token",
		ExpiresIn:    300,
	}, nil
}

// ForgotPassword starts the reset flow
func (m *MockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

// ResetPassword completes the reset flow
func (m *MockAuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, resetToken, newPassword)
	}
	return nil
}

// LoginFederated authenticates with a provider token
func (m *MockAuthService) LoginFederated(ctx context.Context, rawToken string) (*domain.AuthResult, error) {
	if m.LoginFederatedFunc != nil {
		return m.LoginFederatedFunc(ctx, rawToken)
	}
	return &domain.AuthResult{
		Identity:  mockIdentity(),
		Roles:     []string{"EMPLOYEE"},
		Token:     "mock_session_token",
		ExpiresIn: 3600,
	}, nil
}

// Me returns the profile behind a session token
func (m *MockAuthService) Me(ctx context.Context, sessionToken string) (*domain.IdentitySummary, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, sessionToken)
	}
	return &domain.IdentitySummary{
		ID:       1,
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Roles:    []string{"EMPLOYEE"},
		Active:   true,
	}, nil
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*MockAuthService)(nil)
