package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/services"
)

// SessionCookie carries the session token for browser clients
const SessionCookie = "JWT_TOKEN"

// Gin context keys set by AuthMiddleware
const (
	ContextKeySession = "session"
	ContextKeyUserID  = "user_id"
	ContextKeyToken   = "session_token"
)

// AuthMiddleware creates authentication middleware. The session token is read
// from a Bearer Authorization header, falling back to the session cookie.
func AuthMiddleware(tokenSvc domain.TokenService, builder *services.SessionContextBuilder) gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		token, ok := SessionToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := tokenSvc.VerifyKind(token, domain.TokenKindSession)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			case errors.Is(err, domain.ErrTokenWrongType):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not a session token"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		session, err := builder.FromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ContextKeySession, session)
		c.Set(ContextKeyUserID, session.SubjectID)
		c.Set(ContextKeyToken, token)
		c.Request = c.Request.WithContext(services.ContextWithSession(c.Request.Context(), session))

		c.Next()
	})
}

// SessionToken extracts the bearer token from the request
func SessionToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// SessionFromGin returns the session attached by AuthMiddleware
func SessionFromGin(c *gin.Context) (domain.SessionContext, bool) {
	v, ok := c.Get(ContextKeySession)
	if !ok {
		return domain.SessionContext{}, false
	}
	session, ok := v.(domain.SessionContext)
	return session, ok
}
