package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/you/authsvc/domain"
)

// MockTokenService implements domain.TokenService interface for testing.
// By default issued tokens are remembered and verify back to their claims.
type MockTokenService struct {
	IssueFunc             func(kind domain.TokenKind, subject string, extras domain.TokenExtras) (string, error)
	VerifyFunc            func(token string) (*domain.TokenClaims, error)
	VerifyDeviceTokenFunc func(token, subject string) bool

	mu     sync.Mutex
	seq    int
	issued map[string]*domain.TokenClaims
}

// NewMockTokenService creates a new MockTokenService with default behaviors
func NewMockTokenService() *MockTokenService {
	return &MockTokenService{issued: make(map[string]*domain.TokenClaims)}
}

// Issue mints a token of the given kind
func (m *MockTokenService) Issue(kind domain.TokenKind, subject string, extras domain.TokenExtras) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(kind, subject, extras)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	token := fmt.Sprintf("%s_token_%s_%d", kind, subject, m.seq)
	now := time.Now()
	m.issued[token] = &domain.TokenClaims{
		ID:        fmt.Sprintf("jti-%d", m.seq),
		Subject:   subject,
		Kind:      kind,
		Username:  extras.Username,
		Roles:     extras.Roles,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(m.TTL(kind)).Unix(),
	}
	return token, nil
}

// Verify returns the claims of a previously issued token
func (m *MockTokenService) Verify(token string) (*domain.TokenClaims, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	claims, ok := m.issued[token]
	if !ok {
		return nil, domain.ErrTokenMalformed
	}
	c := *claims
	return &c, nil
}

// VerifyKind verifies the token and checks its kind
func (m *MockTokenService) VerifyKind(token string, kind domain.TokenKind) (*domain.TokenClaims, error) {
	claims, err := m.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, domain.ErrTokenWrongType
	}
	return claims, nil
}

// VerifyDeviceToken reports whether token is a device token for subject
func (m *MockTokenService) VerifyDeviceToken(token, subject string) bool {
	if m.VerifyDeviceTokenFunc != nil {
		return m.VerifyDeviceTokenFunc(token, subject)
	}
	claims, err := m.VerifyKind(token, domain.TokenKindDeviceTrust)
	return err == nil && claims.Subject == subject
}

// TTL returns fixed lifetimes per kind
func (m *MockTokenService) TTL(kind domain.TokenKind) time.Duration {
	switch kind {
	case domain.TokenKindDeviceTrust:
		return 30 * 24 * time.Hour
	case domain.TokenKindReset:
		return 15 * time.Minute
	case domain.TokenKindOTPPending:
		return 5 * time.Minute
	default:
		return time.Hour
	}
}

// Compile-time interface compliance verification
var _ domain.TokenService = (*MockTokenService)(nil)
