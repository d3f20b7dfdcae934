package domain

import (
	"context"
	"time"
)

// IdentityRepository defines the lookup contract of the persistence collaborator
type IdentityRepository interface {
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id uint) (*Identity, error)
	// Save persists the mutable credential fields (password hash, last login)
	Save(ctx context.Context, identity *Identity) error
}

// EntryOp tells an OTPStore what to do with an entry after a mutation callback
type EntryOp int

const (
	EntryKeep EntryOp = iota
	EntrySave
	EntryDelete
)

// OTPStore is a keyed store of passcode entries. Mutate must be atomic per key.
type OTPStore interface {
	// Put stores the entry, replacing any entry under the same key
	Put(ctx context.Context, entry *OTPEntry) error
	// Mutate loads the entry for key, applies fn and then the returned op.
	// Returns ErrOTPNotFound when no entry exists, otherwise fn's error.
	Mutate(ctx context.Context, key OTPKey, fn func(entry *OTPEntry) (EntryOp, error)) error
	Delete(ctx context.Context, key OTPKey) error
	// DeleteExpired removes entries expired at now and returns how many were removed
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// OTPService defines the one-time passcode engine
type OTPService interface {
	Issue(ctx context.Context, key OTPKey, destination string) (*OTPEntry, error)
	Validate(ctx context.Context, key OTPKey, code string) error
	Resend(ctx context.Context, key OTPKey, destination string) (*OTPEntry, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// PasswordService defines password operations
type PasswordService interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) bool
	// VerifyDummy spends the cost of one verification without a real hash
	VerifyDummy(password string)
}

// TokenExtras carries the kind-specific claims of a token being issued
type TokenExtras struct {
	Username string
	Roles    []string
}

// TokenService defines bearer token operations
type TokenService interface {
	Issue(kind TokenKind, subject string, extras TokenExtras) (string, error)
	Verify(token string) (*TokenClaims, error)
	VerifyKind(token string, kind TokenKind) (*TokenClaims, error)
	VerifyDeviceToken(token, subject string) bool
	TTL(kind TokenKind) time.Duration
}

// TokenLedger records consumed token ids so single-use tokens cannot be replayed
type TokenLedger interface {
	// Consume marks id as used for ttl and reports whether this was the first use
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
	// Release forgets id so a consumed token can be presented again
	Release(ctx context.Context, id string) error
}

// NotificationService defines outbound notification delivery
type NotificationService interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// FederatedVerifier validates an external identity provider token
type FederatedVerifier interface {
	Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error)
}

// AuthService defines the authentication orchestrator
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	VerifyOTP(ctx context.Context, req OTPVerification) (*AuthResult, error)
	ResendOTP(ctx context.Context, pendingToken string) (*AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	LoginFederated(ctx context.Context, rawToken string) (*AuthResult, error)
	Me(ctx context.Context, sessionToken string) (*IdentitySummary, error)
}

// TokenClaims represents verified bearer token claims
type TokenClaims struct {
	ID        string    `json:"jti"`
	Subject   string    `json:"sub"`
	Kind      TokenKind `json:"type"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

// Remaining returns how long the token stays valid after now
func (c *TokenClaims) Remaining(now time.Time) time.Duration {
	d := time.Unix(c.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// CasbinEnforcer interface defines the methods we need from Casbin enforcer
type CasbinEnforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}
