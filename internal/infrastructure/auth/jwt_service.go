package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/you/authsvc/domain"
)

// Fixed lifetimes for the long- and short-lived token kinds.
const (
	DefaultSessionTTL = time.Hour
	DeviceTokenTTL    = 30 * 24 * time.Hour
	ResetTokenTTL     = 15 * time.Minute
	PendingOTPTTL     = 5 * time.Minute
)

// JWTConfig configures the token service
type JWTConfig struct {
	Secret     string
	Issuer     string
	SessionTTL time.Duration
	DeviceTTL  time.Duration
	ResetTTL   time.Duration
	// PendingTTL bounds the window between a password check and its OTP step-up
	PendingTTL time.Duration
}

// JWTServiceImpl implements domain.TokenService. All token kinds share one
// HS256 key and are told apart by the "type" claim.
type JWTServiceImpl struct {
	secretKey []byte
	issuer    string
	ttls      map[domain.TokenKind]time.Duration
	now       func() time.Time
}

// claims is the wire form of every token minted here
type claims struct {
	Type     string   `json:"type"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg JWTConfig) domain.TokenService {
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	deviceTTL := cfg.DeviceTTL
	if deviceTTL <= 0 {
		deviceTTL = DeviceTokenTTL
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = ResetTokenTTL
	}
	pendingTTL := cfg.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = PendingOTPTTL
	}
	return &JWTServiceImpl{
		secretKey: []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		ttls: map[domain.TokenKind]time.Duration{
			domain.TokenKindSession:     sessionTTL,
			domain.TokenKindDeviceTrust: deviceTTL,
			domain.TokenKindReset:       resetTTL,
			domain.TokenKindOTPPending:  pendingTTL,
		},
		now: time.Now,
	}
}

// TTL implements domain.TokenService
func (j *JWTServiceImpl) TTL(kind domain.TokenKind) time.Duration {
	return j.ttls[kind]
}

// Issue implements domain.TokenService
func (j *JWTServiceImpl) Issue(kind domain.TokenKind, subject string, extras domain.TokenExtras) (string, error) {
	ttl, ok := j.ttls[kind]
	if !ok {
		return "", oops.Code("TOKEN_UNKNOWN_KIND").With("kind", kind).Errorf("unknown token kind %q", kind)
	}
	if subject == "" {
		return "", oops.Code("TOKEN_SUBJECT_REQUIRED").Errorf("token subject is required")
	}

	now := j.now()
	c := claims{
		Type: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	// Only session tokens carry authority; the other kinds prove possession only.
	if kind == domain.TokenKindSession {
		c.Username = extras.Username
		c.Roles = extras.Roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("kind", kind).Wrap(err)
	}
	return signed, nil
}

// Verify implements domain.TokenService
func (j *JWTServiceImpl) Verify(tokenString string) (*domain.TokenClaims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, domain.ErrTokenBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
		}
	}

	kind := domain.TokenKind(c.Type)
	if _, known := j.ttls[kind]; !known || c.Subject == "" || c.IssuedAt == nil {
		return nil, domain.ErrTokenMalformed
	}

	return &domain.TokenClaims{
		ID:        c.ID,
		Subject:   c.Subject,
		Kind:      kind,
		Username:  c.Username,
		Roles:     c.Roles,
		IssuedAt:  c.IssuedAt.Unix(),
		ExpiresAt: c.ExpiresAt.Unix(),
	}, nil
}

// VerifyKind implements domain.TokenService
func (j *JWTServiceImpl) VerifyKind(tokenString string, kind domain.TokenKind) (*domain.TokenClaims, error) {
	c, err := j.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, domain.ErrTokenWrongType
	}
	return c, nil
}

// VerifyDeviceToken implements domain.TokenService
func (j *JWTServiceImpl) VerifyDeviceToken(tokenString, subject string) bool {
	if tokenString == "" || subject == "" {
		return false
	}
	c, err := j.VerifyKind(tokenString, domain.TokenKindDeviceTrust)
	if err != nil {
		return false
	}
	return c.Subject == subject
}
