package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/infrastructure/auth"
)

// CasbinMW enforces the role policy for authenticated requests
type CasbinMW struct {
	enforcer domain.CasbinEnforcer
	logger   *slog.Logger
}

// NewCasbinMW creates new casbin middleware wrapper
func NewCasbinMW(enforcer domain.CasbinEnforcer, logger *slog.Logger) *CasbinMW {
	if logger == nil {
		logger = slog.Default()
	}
	return &CasbinMW{enforcer: enforcer, logger: logger}
}

// Enforce returns the casbin authorization middleware. A request passes when
// any of the session's active roles is allowed.
func (mw *CasbinMW) Enforce() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		session, ok := SessionFromGin(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		path := c.Request.URL.Path
		method := c.Request.Method

		for _, role := range session.Roles {
			allowed, err := mw.enforcer.Enforce(auth.RolePrefix+role, path, method)
			if err != nil {
				mw.logger.ErrorContext(c.Request.Context(), "authorization check failed",
					"role", role, "path", path, "method", method, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
				return
			}
			if allowed {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access Denied"})
	})
}
