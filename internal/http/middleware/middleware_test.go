package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/logging"
	"github.com/you/authsvc/internal/metrics"
	"github.com/you/authsvc/internal/mocks"
	"github.com/you/authsvc/internal/services"
)

func newProtectedRouter(tokens domain.TokenService, enforcer domain.CasbinEnforcer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authMW := NewAuthMW(tokens, nil)
	casbinMW := NewCasbinMW(enforcer, logging.Discard())
	r.GET("/auth/me", authMW.WithJWT(), casbinMW.Enforce(), func(c *gin.Context) {
		session, ok := services.SessionFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no session in request context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": session.SubjectID, "token": c.GetString(ContextKeyToken)})
	})
	r.GET("/admin/policies", authMW.WithJWT(), casbinMW.Enforce(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tokens := mocks.NewMockTokenService()
	session, err := tokens.Issue(domain.TokenKindSession, "7", domain.TokenExtras{Username: "jdoe", Roles: []string{"EMPLOYEE"}})
	require.NoError(t, err)
	device, err := tokens.Issue(domain.TokenKindDeviceTrust, "7", domain.TokenExtras{})
	require.NoError(t, err)

	tests := []struct {
		name           string
		prepare        func(req *http.Request)
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "bearer header",
			prepare:        func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+session) },
			expectedStatus: http.StatusOK,
		},
		{
			name:           "session cookie",
			prepare:        func(req *http.Request) { req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session}) },
			expectedStatus: http.StatusOK,
		},
		{
			name:           "no credentials",
			prepare:        func(req *http.Request) {},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Authentication required",
		},
		{
			name:           "malformed header",
			prepare:        func(req *http.Request) { req.Header.Set("Authorization", "Token "+session) },
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Authentication required",
		},
		{
			name:           "device token is not a session",
			prepare:        func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+device) },
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Not a session token",
		},
		{
			name:           "unknown token",
			prepare:        func(req *http.Request) { req.Header.Set("Authorization", "Bearer forged") },
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid token",
		},
	}

	router := newProtectedRouter(tokens, mocks.NewMockCasbinEnforcer())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, body["error"])
				return
			}
			assert.Equal(t, "7", body["subject"])
			assert.Equal(t, session, body["token"])
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	tokens := mocks.NewMockTokenService()
	tokens.VerifyFunc = func(token string) (*domain.TokenClaims, error) {
		return nil, domain.ErrTokenExpired
	}
	router := newProtectedRouter(tokens, mocks.NewMockCasbinEnforcer())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer stale")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestCasbinMW_Enforce(t *testing.T) {
	tokens := mocks.NewMockTokenService()
	employee, _ := tokens.Issue(domain.TokenKindSession, "7", domain.TokenExtras{Roles: []string{"EMPLOYEE"}})
	multi, _ := tokens.Issue(domain.TokenKindSession, "8", domain.TokenExtras{Roles: []string{"EMPLOYEE", "ADMIN"}})
	roleless, _ := tokens.Issue(domain.TokenKindSession, "9", domain.TokenExtras{})

	tests := []struct {
		name           string
		token          string
		path           string
		expectedStatus int
	}{
		{name: "employee reads own profile", token: employee, path: "/auth/me", expectedStatus: http.StatusOK},
		{name: "employee denied admin", token: employee, path: "/admin/policies", expectedStatus: http.StatusForbidden},
		{name: "any role grants access", token: multi, path: "/admin/policies", expectedStatus: http.StatusNoContent},
		{name: "no roles denied", token: roleless, path: "/auth/me", expectedStatus: http.StatusForbidden},
	}

	enforcer := mocks.NewMockCasbinEnforcer()
	router := newProtectedRouter(tokens, enforcer)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	for _, call := range enforcer.Calls() {
		assert.Contains(t, call[0], "role_")
	}
}

func TestCasbinMW_EnforcerError(t *testing.T) {
	tokens := mocks.NewMockTokenService()
	token, _ := tokens.Issue(domain.TokenKindSession, "7", domain.TokenExtras{Roles: []string{"EMPLOYEE"}})
	enforcer := mocks.NewMockCasbinEnforcer()
	enforcer.EnforceFunc = func(rvals ...interface{}) (bool, error) {
		return false, errors.New("adapter unavailable")
	}
	router := newProtectedRouter(tokens, enforcer)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCasbinMW_WithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/auth/me", NewCasbinMW(mocks.NewMockCasbinEnforcer(), nil).Enforce(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2, nil)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	rl := NewRateLimiter(0.001, 1, m)

	r := gin.New()
	r.POST("/auth/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitedTotal))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(RequestLogger(logger), SecurityHeaders())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("generates id", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 26)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, id, entry["request_id"])
		assert.Equal(t, float64(http.StatusOK), entry["status"])
		assert.Equal(t, "/health", entry["path"])
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "caller-supplied")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "caller-supplied", w.Header().Get(RequestIDHeader))
	})
}

func TestMaxBodyBytes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/login", MaxBodyBytes(8), func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"username":"a-much-longer-value"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
