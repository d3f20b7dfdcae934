package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/you/authsvc/domain"
)

// MockIdentityRepository implements domain.IdentityRepository interface for testing.
// Without overrides it serves the identities added with Add.
type MockIdentityRepository struct {
	FindByUsernameFunc func(ctx context.Context, username string) (*domain.Identity, error)
	FindByEmailFunc    func(ctx context.Context, email string) (*domain.Identity, error)
	FindByIDFunc       func(ctx context.Context, id uint) (*domain.Identity, error)
	SaveFunc           func(ctx context.Context, identity *domain.Identity) error

	mu         sync.Mutex
	identities map[uint]*domain.Identity
	SaveCalls  int
}

// NewMockIdentityRepository creates a new MockIdentityRepository with default behaviors
func NewMockIdentityRepository() *MockIdentityRepository {
	return &MockIdentityRepository{identities: make(map[uint]*domain.Identity)}
}

// Add stores an identity served by the default lookups
func (m *MockIdentityRepository) Add(identity *domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
}

// Get returns the stored identity by id (test helper)
func (m *MockIdentityRepository) Get(id uint) *domain.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[id]
}

// FindByUsername finds an identity by username
func (m *MockIdentityRepository) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	if m.FindByUsernameFunc != nil {
		return m.FindByUsernameFunc(ctx, username)
	}
	return m.find(func(i *domain.Identity) bool { return i.Username == username })
}

// FindByEmail finds an identity by email
func (m *MockIdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	return m.find(func(i *domain.Identity) bool { return strings.EqualFold(i.Email, email) })
}

// FindByID finds an identity by id
func (m *MockIdentityRepository) FindByID(ctx context.Context, id uint) (*domain.Identity, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return m.find(func(i *domain.Identity) bool { return i.ID == id })
}

// Save persists the identity's mutable fields
func (m *MockIdentityRepository) Save(ctx context.Context, identity *domain.Identity) error {
	m.mu.Lock()
	m.SaveCalls++
	m.mu.Unlock()
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, identity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.identities[identity.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	stored.PasswordHash = identity.PasswordHash
	stored.LastLogin = identity.LastLogin
	return nil
}

func (m *MockIdentityRepository) find(match func(*domain.Identity) bool) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if match(i) {
			c := *i
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Compile-time interface compliance verification
var _ domain.IdentityRepository = (*MockIdentityRepository)(nil)
