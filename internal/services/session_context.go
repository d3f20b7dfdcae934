package services

import (
	"context"

	"github.com/you/authsvc/domain"
)

// SessionContextBuilder turns an authenticated identity into the authorization
// input used by request middleware
type SessionContextBuilder struct{}

// NewSessionContextBuilder creates a new builder
func NewSessionContextBuilder() *SessionContextBuilder {
	return &SessionContextBuilder{}
}

// BuildContext keeps only active role assignments
func (b *SessionContextBuilder) BuildContext(identity *domain.Identity) domain.SessionContext {
	return domain.SessionContext{
		SubjectID: identity.SubjectID(),
		Roles:     identity.ActiveRoleCodes(),
	}
}

// FromClaims rebuilds the context from a verified session token. Roles are the
// snapshot taken when the token was minted.
func (b *SessionContextBuilder) FromClaims(claims *domain.TokenClaims) (domain.SessionContext, error) {
	if claims.Kind != domain.TokenKindSession {
		return domain.SessionContext{}, domain.ErrTokenWrongType
	}
	roles := make([]string, len(claims.Roles))
	copy(roles, claims.Roles)
	return domain.SessionContext{SubjectID: claims.Subject, Roles: roles}, nil
}

type sessionKey struct{}

// ContextWithSession attaches the session context to ctx
func ContextWithSession(ctx context.Context, session domain.SessionContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session attached by ContextWithSession
func SessionFromContext(ctx context.Context) (domain.SessionContext, bool) {
	session, ok := ctx.Value(sessionKey{}).(domain.SessionContext)
	return session, ok
}
