package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/authsvc/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestJWT(now time.Time) *JWTServiceImpl {
	svc := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "authsvc-test"}).(*JWTServiceImpl)
	svc.now = func() time.Time { return now }
	return svc
}

func TestJWTService_IssueAndVerify(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	svc := newTestJWT(now)

	token, err := svc.Issue(domain.TokenKindSession, "42", domain.TokenExtras{Username: "alice", Roles: []string{"ADMIN"}})
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, domain.TokenKindSession, claims.Kind)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"ADMIN"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, now.Unix(), claims.IssuedAt)
	assert.Equal(t, now.Add(DefaultSessionTTL).Unix(), claims.ExpiresAt)
}

func TestJWTService_NonSessionTokensCarryNoAuthority(t *testing.T) {
	svc := newTestJWT(time.Now())

	for _, kind := range []domain.TokenKind{domain.TokenKindDeviceTrust, domain.TokenKindReset, domain.TokenKindOTPPending} {
		token, err := svc.Issue(kind, "42", domain.TokenExtras{Username: "alice", Roles: []string{"ADMIN"}})
		require.NoError(t, err)

		claims, err := svc.VerifyKind(token, kind)
		require.NoError(t, err)
		assert.Empty(t, claims.Username)
		assert.Empty(t, claims.Roles)
		assert.Equal(t, svc.TTL(kind), time.Duration(claims.ExpiresAt-claims.IssuedAt)*time.Second)
	}
}

func TestJWTService_PendingOTPToken(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	svc := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "authsvc-test", PendingTTL: 2 * time.Minute}).(*JWTServiceImpl)
	svc.now = func() time.Time { return now }

	token, err := svc.Issue(domain.TokenKindOTPPending, "42", domain.TokenExtras{})
	require.NoError(t, err)

	claims, err := svc.VerifyKind(token, domain.TokenKindOTPPending)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, now.Add(2*time.Minute).Unix(), claims.ExpiresAt)

	// a pending token never passes as a session
	_, err = svc.VerifyKind(token, domain.TokenKindSession)
	assert.ErrorIs(t, err, domain.ErrTokenWrongType)

	svc.now = func() time.Time { return now.Add(3 * time.Minute) }
	_, err = svc.VerifyKind(token, domain.TokenKindOTPPending)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	assert.Equal(t, PendingOTPTTL, newTestJWT(now).TTL(domain.TokenKindOTPPending))
}

func TestJWTService_UniqueIDs(t *testing.T) {
	svc := newTestJWT(time.Now())

	a, err := svc.Issue(domain.TokenKindReset, "1", domain.TokenExtras{})
	require.NoError(t, err)
	b, err := svc.Issue(domain.TokenKindReset, "1", domain.TokenExtras{})
	require.NoError(t, err)

	ca, err := svc.Verify(a)
	require.NoError(t, err)
	cb, err := svc.Verify(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestJWTService_IssueErrors(t *testing.T) {
	svc := newTestJWT(time.Now())

	_, err := svc.Issue(domain.TokenKind("BOGUS"), "1", domain.TokenExtras{})
	assert.Error(t, err)

	_, err = svc.Issue(domain.TokenKindSession, "", domain.TokenExtras{})
	assert.Error(t, err)
}

func TestJWTService_VerifyFailures(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	old := newTestJWT(issuedAt)
	expired, err := old.Issue(domain.TokenKindSession, "42", domain.TokenExtras{})
	require.NoError(t, err)

	other := NewJWTService(JWTConfig{Secret: "ffffffffffffffffffffffffffffffff", Issuer: "authsvc-test"})
	foreign, err := other.Issue(domain.TokenKindSession, "42", domain.TokenExtras{})
	require.NoError(t, err)

	otherIssuer := NewJWTService(JWTConfig{Secret: testSecret, Issuer: "someone-else"})
	wrongIssuer, err := otherIssuer.Issue(domain.TokenKindSession, "42", domain.TokenExtras{})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "42", "type": "SESSION", "iss": "authsvc-test"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	untyped := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42", "iss": "authsvc-test",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	})
	noType, err := untyped.SignedString([]byte(testSecret))
	require.NoError(t, err)

	svc := newTestJWT(time.Now())
	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "expired", token: expired, wantErr: domain.ErrTokenExpired},
		{name: "bad signature", token: foreign, wantErr: domain.ErrTokenBadSignature},
		{name: "wrong issuer", token: wrongIssuer, wantErr: domain.ErrTokenMalformed},
		{name: "alg none", token: unsigned, wantErr: domain.ErrTokenBadSignature},
		{name: "missing type", token: noType, wantErr: domain.ErrTokenMalformed},
		{name: "garbage", token: "not.a.jwt", wantErr: domain.ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJWTService_VerifyKind(t *testing.T) {
	svc := newTestJWT(time.Now())
	reset, err := svc.Issue(domain.TokenKindReset, "42", domain.TokenExtras{})
	require.NoError(t, err)

	_, err = svc.VerifyKind(reset, domain.TokenKindSession)
	assert.ErrorIs(t, err, domain.ErrTokenWrongType)

	_, err = svc.VerifyKind(reset, domain.TokenKindReset)
	assert.NoError(t, err)
}

func TestJWTService_VerifyDeviceToken(t *testing.T) {
	svc := newTestJWT(time.Now())
	device, err := svc.Issue(domain.TokenKindDeviceTrust, "42", domain.TokenExtras{})
	require.NoError(t, err)
	session, err := svc.Issue(domain.TokenKindSession, "42", domain.TokenExtras{})
	require.NoError(t, err)

	assert.True(t, svc.VerifyDeviceToken(device, "42"))
	assert.False(t, svc.VerifyDeviceToken(device, "43"), "device token is bound to its subject")
	assert.False(t, svc.VerifyDeviceToken(session, "42"), "session token is not a device token")
	assert.False(t, svc.VerifyDeviceToken("", "42"))
	assert.False(t, svc.VerifyDeviceToken(device, ""))
}
