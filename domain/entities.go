package domain

import (
	"strconv"
	"time"
)

// Identity represents a user account as seen by the authentication core
type Identity struct {
	ID           uint
	Username     string
	Email        string
	Phone        string
	FullName     string
	PasswordHash string
	Active       bool
	OTPEnabled   bool
	Roles        []RoleAssignment
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubjectID returns the token subject for the identity
func (i *Identity) SubjectID() string {
	return strconv.FormatUint(uint64(i.ID), 10)
}

// ActiveRoleCodes returns the codes of active role assignments, in assignment order
func (i *Identity) ActiveRoleCodes() []string {
	codes := make([]string, 0, len(i.Roles))
	seen := make(map[string]struct{}, len(i.Roles))
	for _, r := range i.Roles {
		if !r.Active {
			continue
		}
		if _, dup := seen[r.RoleCode]; dup {
			continue
		}
		seen[r.RoleCode] = struct{}{}
		codes = append(codes, r.RoleCode)
	}
	return codes
}

// RoleAssignment represents a role granted to an identity
type RoleAssignment struct {
	RoleCode   string
	Active     bool
	AssignedBy *uint
	AssignedAt time.Time
}

// OTPPurpose scopes a passcode to a single flow
type OTPPurpose string

const (
	// OTPPurposeLogin is the step-up challenge issued during login
	OTPPurposeLogin OTPPurpose = "LOGIN_2FA"
)

// OTPKey identifies the single live passcode for a subject and purpose
type OTPKey struct {
	SubjectID uint
	Purpose   OTPPurpose
}

// String renders the key as used by keyed stores
func (k OTPKey) String() string {
	return string(k.Purpose) + ":" + strconv.FormatUint(uint64(k.SubjectID), 10)
}

// OTPEntry represents a stored one-time passcode
type OTPEntry struct {
	Key               OTPKey    `json:"-"`
	Code              string    `json:"code"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
}

// IsExpired reports whether the entry is past its expiry at the given instant
func (e *OTPEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TokenKind distinguishes the bearer tokens minted by the token service
type TokenKind string

const (
	TokenKindSession     TokenKind = "SESSION"
	TokenKindDeviceTrust TokenKind = "DEVICE_TRUST"
	TokenKindReset       TokenKind = "RESET_PASSWORD"
	// TokenKindOTPPending names the subject of a step-up challenge between
	// the password check and the passcode submission.
	TokenKindOTPPending  TokenKind = "OTP_PENDING"
)

// LoginRequest represents a username/password login attempt
type LoginRequest struct {
	Username       string
	Password       string
	DeviceToken    string
	RememberDevice bool
}

// OTPVerification represents a step-up passcode submission
type OTPVerification struct {
	PendingToken   string
	Code           string
	RememberDevice bool
}

// AuthResult represents the outcome of an authentication step
type AuthResult struct {
	Identity     *Identity
	Roles        []string
	OTPRequired  bool
	// PendingToken is set instead of Token while a step-up challenge is open
	PendingToken string
	Token        string
	DeviceToken  string
	ExpiresIn    int64
}

// SessionContext is the authorization input derived from an authenticated identity
type SessionContext struct {
	SubjectID string
	Roles     []string
}

// HasRole reports whether the context carries the given role code
func (s SessionContext) HasRole(code string) bool {
	for _, r := range s.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// IdentitySummary represents the profile returned for the current session
type IdentitySummary struct {
	ID         uint       `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name"`
	Phone      string     `json:"phone,omitempty"`
	Roles      []string   `json:"roles"`
	Active     bool       `json:"is_active"`
	OTPEnabled bool       `json:"otp_enabled"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}
