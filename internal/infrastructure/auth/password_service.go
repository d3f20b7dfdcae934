package auth

import (
	"sync"

	"github.com/samber/oops"
	"github.com/you/authsvc/domain"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordServiceImpl implements domain.PasswordService
type PasswordServiceImpl struct {
	cost int

	// dummy is a hash at the same cost, used to equalise the cost of failed
	// lookups with failed password checks
	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordService creates a new password service. A cost outside bcrypt's
// accepted range falls back to bcrypt.DefaultCost.
func NewPasswordService(cost int) domain.PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordServiceImpl{
		cost: cost,
	}
}

// Hash implements domain.PasswordService
func (p *PasswordServiceImpl) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hashedBytes), nil
}

// Verify implements domain.PasswordService
func (p *PasswordServiceImpl) Verify(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

// VerifyDummy implements domain.PasswordService
func (p *PasswordServiceImpl) VerifyDummy(password string) {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("authsvc-dummy-credential"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(password))
}
