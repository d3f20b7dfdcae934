package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/you/authsvc/domain"
	"google.golang.org/api/idtoken"
)

// GoogleProvider is the provider name recorded on Google-federated identities
const GoogleProvider = "google"

// GoogleVerifier implements domain.FederatedVerifier for Google ID tokens
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier creates a verifier that accepts ID tokens minted for clientID
func NewGoogleVerifier(ctx context.Context, clientID string) (domain.FederatedVerifier, error) {
	if clientID == "" {
		return nil, oops.Code("GOOGLE_CLIENT_ID_REQUIRED").Errorf("google client id is required")
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, oops.Code("GOOGLE_VALIDATOR_FAILED").Wrap(err)
	}
	return &GoogleVerifier{clientID: clientID, validate: v.Validate}, nil
}

// Verify implements domain.FederatedVerifier
func (g *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*domain.FederatedIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, domain.ErrFederatedTokenInvalid
	}
	payload, err := g.validate(ctx, rawToken, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFederatedTokenInvalid, err)
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if email == "" || !verified {
		return nil, domain.ErrFederatedTokenInvalid
	}

	return &domain.FederatedIdentity{
		Provider:      GoogleProvider,
		Subject:       payload.Subject,
		Email:         strings.ToLower(email),
		EmailVerified: verified,
	}, nil
}
