package mocks

import (
	"context"

	"github.com/you/authsvc/domain"
)

// MockFederatedVerifier implements domain.FederatedVerifier interface for testing
type MockFederatedVerifier struct {
	VerifyFunc func(ctx context.Context, rawToken string) (*domain.FederatedIdentity, error)
}

// NewMockFederatedVerifier creates a new MockFederatedVerifier with default behaviors
func NewMockFederatedVerifier() *MockFederatedVerifier {
	return &MockFederatedVerifier{}
}

// Verify validates a provider token
func (m *MockFederatedVerifier) Verify(ctx context.Context, rawToken string) (*domain.FederatedIdentity, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, rawToken)
	}
	if rawToken == "" {
		return nil, domain.ErrFederatedTokenInvalid
	}
	// Default behavior: the raw token is the verified email
	return &domain.FederatedIdentity{
		Provider:      "google",
		Subject:       "google-" + rawToken,
		Email:         rawToken,
		EmailVerified: true,
	}, nil
}

// Compile-time interface compliance verification
var _ domain.FederatedVerifier = (*MockFederatedVerifier)(nil)
