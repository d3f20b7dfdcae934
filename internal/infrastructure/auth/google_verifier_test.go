package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"github.com/you/authsvc/domain"
)

func fakeGoogle(payload *idtoken.Payload, err error) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: "client-123",
		validate: func(_ context.Context, _, audience string) (*idtoken.Payload, error) {
			if audience != "client-123" {
				return nil, errors.New("audience mismatch")
			}
			return payload, err
		},
	}
}

func TestGoogleVerifier_Verify(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		payload  *idtoken.Payload
		err      error
		expected *domain.FederatedIdentity
		wantErr  bool
	}{
		{
			name:  "verified email",
			token: "id-token",
			payload: &idtoken.Payload{Subject: "g-1", Claims: map[string]interface{}{
				"email": "Alice@Example.com", "email_verified": true,
			}},
			expected: &domain.FederatedIdentity{Provider: GoogleProvider, Subject: "g-1", Email: "alice@example.com", EmailVerified: true},
		},
		{
			name:  "unverified email",
			token: "id-token",
			payload: &idtoken.Payload{Subject: "g-1", Claims: map[string]interface{}{
				"email": "alice@example.com", "email_verified": false,
			}},
			wantErr: true,
		},
		{
			name:    "missing email",
			token:   "id-token",
			payload: &idtoken.Payload{Subject: "g-1", Claims: map[string]interface{}{}},
			wantErr: true,
		},
		{name: "validator rejects", token: "id-token", err: errors.New("expired"), wantErr: true},
		{name: "blank token", token: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fakeGoogle(tt.payload, tt.err).Verify(context.Background(), tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrFederatedTokenInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewGoogleVerifier_RequiresClientID(t *testing.T) {
	_, err := NewGoogleVerifier(context.Background(), "")
	assert.Error(t, err)
}
