package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/services"
)

// AuthMW wraps the token service and session context builder for middleware
type AuthMW struct {
	tokenSvc domain.TokenService
	builder  *services.SessionContextBuilder
}

// NewAuthMW creates new auth middleware wrapper
func NewAuthMW(tokenSvc domain.TokenService, builder *services.SessionContextBuilder) *AuthMW {
	if builder == nil {
		builder = services.NewSessionContextBuilder()
	}
	return &AuthMW{
		tokenSvc: tokenSvc,
		builder:  builder,
	}
}

// WithJWT returns the JWT middleware function
func (mw *AuthMW) WithJWT() gin.HandlerFunc {
	return AuthMiddleware(mw.tokenSvc, mw.builder)
}
