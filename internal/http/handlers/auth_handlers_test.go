package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/http/middleware"
	"github.com/you/authsvc/internal/logging"
	"github.com/you/authsvc/internal/mocks"
)

type handlerCase struct {
	name           string
	requestBody    interface{}
	cookies        []*http.Cookie
	setupMocks     func(*mocks.MockAuthService)
	expectedStatus int
	expectedBody   map[string]interface{}
	validate       func(t *testing.T, w *httptest.ResponseRecorder)
}

func runHandlerCases(t *testing.T, path string, call func(h *AuthHandlers, c *gin.Context), tests []handlerCase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuthSvc := mocks.NewMockAuthService()
			if tt.setupMocks != nil {
				tt.setupMocks(mockAuthSvc)
			}
			handler := NewAuthHandlers(mockAuthSvc, CookieConfig{Secure: true}, logging.Discard())

			reqBody, _ := json.Marshal(tt.requestBody)
			req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(reqBody))
			req.Header.Set("Content-Type", "application/json")
			for _, ck := range tt.cookies {
				req.AddCookie(ck)
			}

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = req

			call(handler, c)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}

			var responseBody map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &responseBody); err != nil {
				t.Fatalf("failed to unmarshal response body: %v", err)
			}
			for key, expectedValue := range tt.expectedBody {
				if actualValue, exists := responseBody[key]; !exists {
					t.Errorf("expected key %s not found in response", key)
				} else {
					validateValue(t, key, expectedValue, actualValue)
				}
			}

			if tt.validate != nil {
				tt.validate(t, w)
			}
		})
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func sessionResult(deviceToken string) *domain.AuthResult {
	return &domain.AuthResult{
		Identity:    &domain.Identity{ID: 7, Username: "jdoe", Email: "jdoe@example.com"},
		Roles:       []string{"EMPLOYEE"},
		Token:       "session-token",
		DeviceToken: deviceToken,
		ExpiresIn:   3600,
	}
}

func TestAuthHandlers_Login(t *testing.T) {
	runHandlerCases(t, "/auth/login", (*AuthHandlers).Login, []handlerCase{
		{
			name:        "successful login sets session cookie",
			requestBody: LoginRequest{Username: "jdoe", Password: "secret"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					return sessionResult(""), nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"data": map[string]interface{}{
					"otp_required": false,
					"token":        "session-token",
					"token_type":   "Bearer",
					"expires_in":   float64(3600),
					"user": map[string]interface{}{
						"id":       float64(7),
						"username": "jdoe",
					},
				},
			},
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				ck := findCookie(w, middleware.SessionCookie)
				require.NotNil(t, ck)
				assert.Equal(t, "session-token", ck.Value)
				assert.True(t, ck.HttpOnly)
				assert.True(t, ck.Secure)
				assert.Equal(t, 3600, ck.MaxAge)
				assert.Nil(t, findCookie(w, DeviceCookie))
			},
		},
		{
			name:        "otp required withholds token",
			requestBody: LoginRequest{Username: "jdoe", Password: "secret"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					return &domain.AuthResult{
						Identity:     &domain.Identity{ID: 7, Email: "jdoe@example.com"},
						Roles:        []string{"EMPLOYEE"},
						OTPRequired:  true,
						PendingToken: "pending-token",
						ExpiresIn:    300,
					}, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"data": map[string]interface{}{
					"otp_required": true,
					"otp_token":    "pending-token",
					"expires_in":   float64(300),
					"user_id":      float64(7),
					"email":        "jdoe@example.com",
				},
			},
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Nil(t, findCookie(w, middleware.SessionCookie))
				assert.NotContains(t, w.Body.String(), `"token"`)

				var body struct {
					Data struct {
						Roles []string `json:"roles"`
					} `json:"data"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, []string{"EMPLOYEE"}, body.Data.Roles)
			},
		},
		{
			name:        "device token read from cookie",
			requestBody: LoginRequest{Username: "jdoe", Password: "secret"},
			cookies:     []*http.Cookie{{Name: DeviceCookie, Value: "device-from-cookie"}},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					if req.DeviceToken != "device-from-cookie" {
						return nil, errors.New("device token not forwarded")
					}
					return sessionResult(""), nil
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:        "remember device sets device cookie",
			requestBody: LoginRequest{Username: "jdoe", Password: "secret", RememberDevice: true},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					if !req.RememberDevice {
						return nil, errors.New("remember flag not forwarded")
					}
					return sessionResult("device-token"), nil
				}
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				ck := findCookie(w, DeviceCookie)
				require.NotNil(t, ck)
				assert.Equal(t, "device-token", ck.Value)
				assert.Equal(t, 30*24*60*60, ck.MaxAge)
			},
		},
		{
			name:           "missing password",
			requestBody:    map[string]string{"username": "jdoe"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "invalid credentials",
			requestBody: LoginRequest{Username: "jdoe", Password: "wrong"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					return nil, domain.ErrInvalidCredentials
				}
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   map[string]interface{}{"error": "Invalid credentials"},
		},
		{
			name:        "inactive account",
			requestBody: LoginRequest{Username: "jdoe", Password: "secret"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					return nil, domain.ErrUserInactive
				}
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   map[string]interface{}{"error": "Account is inactive"},
		},
		{
			name:        "internal failure is generic",
			requestBody: LoginRequest{Username: "jdoe", Password: "secret"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFunc = func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
					return nil, errors.New("failed to update last login: connection reset")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]interface{}{"error": "Login failed"},
		},
	})
}

func TestAuthHandlers_VerifyOTP(t *testing.T) {
	runHandlerCases(t, "/auth/otp/verify", (*AuthHandlers).VerifyOTP, []handlerCase{
		{
			name:        "valid code",
			requestBody: OTPVerifyRequest{OTPToken: "pending-token", Code: "123456"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.VerifyOTPFunc = func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
					if req.PendingToken != "pending-token" || req.Code != "123456" {
						return nil, domain.ErrOTPInvalid
					}
					return sessionResult(""), nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"data": map[string]interface{}{"token": "session-token"}},
		},
		{
			name:           "missing code",
			requestBody:    map[string]interface{}{"otp_token": "pending-token"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "raw user id is not accepted",
			requestBody:    map[string]interface{}{"user_id": 7, "code": "123456"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "forged or expired pending token",
			requestBody: OTPVerifyRequest{OTPToken: "forged", Code: "123456"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.VerifyOTPFunc = func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
					return nil, domain.ErrInvalidOrExpiredToken
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "Invalid or expired token"},
		},
		{
			name:        "mismatch reports attempts",
			requestBody: OTPVerifyRequest{OTPToken: "pending-token", Code: "000000"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.VerifyOTPFunc = func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
					return nil, &domain.OTPMismatchError{AttemptsRemaining: 3}
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "Invalid OTP code", "attempts_remaining": float64(3)},
		},
		{
			name:        "expired",
			requestBody: OTPVerifyRequest{OTPToken: "pending-token", Code: "123456"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.VerifyOTPFunc = func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
					return nil, domain.ErrOTPExpired
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "OTP has expired"},
		},
		{
			name:        "attempts exhausted",
			requestBody: OTPVerifyRequest{OTPToken: "pending-token", Code: "123456"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.VerifyOTPFunc = func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
					return nil, domain.ErrOTPMaxAttempts
				}
			},
			expectedStatus: http.StatusTooManyRequests,
			expectedBody:   map[string]interface{}{"error": "Maximum attempts exceeded"},
		},
		{
			name:        "no pending code",
			requestBody: OTPVerifyRequest{OTPToken: "pending-token", Code: "123456"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.VerifyOTPFunc = func(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
					return nil, domain.ErrOTPNotFound
				}
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   map[string]interface{}{"error": "OTP not found"},
		},
	})
}

func TestAuthHandlers_ResendOTP(t *testing.T) {
	runHandlerCases(t, "/auth/otp/resend", (*AuthHandlers).ResendOTP, []handlerCase{
		{
			name:           "resent with a fresh pending token",
			requestBody:    OTPResendRequest{OTPToken: "pending-token"},
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"data": map[string]interface{}{"message": "OTP resent", "otp_token": "mock_pending_token"}},
		},
		{
			name:           "missing pending token",
			requestBody:    map[string]interface{}{"user_id": 7},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "exhausted challenge cannot be resent",
			requestBody: OTPResendRequest{OTPToken: "pending-token"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.ResendOTPFunc = func(ctx context.Context, pendingToken string) (*domain.AuthResult, error) {
					return nil, domain.ErrOTPMaxAttempts
				}
			},
			expectedStatus: http.StatusTooManyRequests,
			expectedBody:   map[string]interface{}{"error": "Maximum attempts exceeded"},
		},
		{
			name:        "throttled",
			requestBody: OTPResendRequest{OTPToken: "pending-token"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.ResendOTPFunc = func(ctx context.Context, pendingToken string) (*domain.AuthResult, error) {
					return nil, &domain.ResendThrottledError{WaitSeconds: 20}
				}
			},
			expectedStatus: http.StatusTooManyRequests,
			expectedBody:   map[string]interface{}{"wait_seconds": float64(20)},
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "20", w.Header().Get("Retry-After"))
			},
		},
	})
}

func TestAuthHandlers_ForgotPassword(t *testing.T) {
	var gotEmail string
	runHandlerCases(t, "/auth/forgot-password", (*AuthHandlers).ForgotPassword, []handlerCase{
		{
			name:        "same answer for any address",
			requestBody: ForgotPasswordRequest{Email: "nobody@example.com"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.ForgotPasswordFunc = func(ctx context.Context, email string) error {
					gotEmail = email
					return nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"data": map[string]interface{}{"message": "If the email is registered, a reset link has been sent"},
			},
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "nobody@example.com", gotEmail)
			},
		},
		{
			name:           "malformed email",
			requestBody:    ForgotPasswordRequest{Email: "not-an-email"},
			expectedStatus: http.StatusBadRequest,
		},
	})
}

func TestAuthHandlers_ResetPassword(t *testing.T) {
	runHandlerCases(t, "/auth/reset-password", (*AuthHandlers).ResetPassword, []handlerCase{
		{
			name:           "reset",
			requestBody:    ResetPasswordRequest{Token: "reset-token", NewPassword: "n3w-passw0rd"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "password too short",
			requestBody:    ResetPasswordRequest{Token: "reset-token", NewPassword: "short"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "bad token",
			requestBody: ResetPasswordRequest{Token: "session-token", NewPassword: "n3w-passw0rd"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.ResetPasswordFunc = func(ctx context.Context, resetToken, newPassword string) error {
					return domain.ErrInvalidOrExpiredToken
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "Invalid or expired token"},
		},
	})
}

func TestAuthHandlers_GoogleLogin(t *testing.T) {
	runHandlerCases(t, "/auth/google", (*AuthHandlers).GoogleLogin, []handlerCase{
		{
			name:        "registered account",
			requestBody: GoogleLoginRequest{IDToken: "google-id-token"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFederatedFunc = func(ctx context.Context, rawToken string) (*domain.AuthResult, error) {
					return sessionResult(""), nil
				}
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.NotNil(t, findCookie(w, middleware.SessionCookie))
			},
		},
		{
			name:        "unregistered account",
			requestBody: GoogleLoginRequest{IDToken: "google-id-token"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFederatedFunc = func(ctx context.Context, rawToken string) (*domain.AuthResult, error) {
					return nil, domain.ErrAccountNotRegistered
				}
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   map[string]interface{}{"error": "Account not registered"},
		},
		{
			name:        "invalid token",
			requestBody: GoogleLoginRequest{IDToken: "forged"},
			setupMocks: func(m *mocks.MockAuthService) {
				m.LoginFederatedFunc = func(ctx context.Context, rawToken string) (*domain.AuthResult, error) {
					return nil, domain.ErrFederatedTokenInvalid
				}
			},
			expectedStatus: http.StatusUnauthorized,
		},
	})
}

func TestAuthHandlers_Me(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("returns summary for context token", func(t *testing.T) {
		mockAuthSvc := mocks.NewMockAuthService()
		mockAuthSvc.MeFunc = func(ctx context.Context, sessionToken string) (*domain.IdentitySummary, error) {
			if sessionToken != "session-token" {
				return nil, domain.ErrUnauthenticated
			}
			return &domain.IdentitySummary{ID: 7, Username: "jdoe", Roles: []string{"EMPLOYEE"}, Active: true}, nil
		}
		handler := NewAuthHandlers(mockAuthSvc, CookieConfig{}, logging.Discard())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		c.Set(middleware.ContextKeyToken, "session-token")

		handler.Me(c)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data domain.IdentitySummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "jdoe", body.Data.Username)
		assert.Equal(t, []string{"EMPLOYEE"}, body.Data.Roles)
	})

	t.Run("vanished identity", func(t *testing.T) {
		mockAuthSvc := mocks.NewMockAuthService()
		mockAuthSvc.MeFunc = func(ctx context.Context, sessionToken string) (*domain.IdentitySummary, error) {
			return nil, domain.ErrUnauthenticated
		}
		handler := NewAuthHandlers(mockAuthSvc, CookieConfig{}, logging.Discard())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		c.Set(middleware.ContextKeyToken, "session-token")

		handler.Me(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no token in context", func(t *testing.T) {
		handler := NewAuthHandlers(mocks.NewMockAuthService(), CookieConfig{}, logging.Discard())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)

		handler.Me(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandlers_Logout(t *testing.T) {
	runHandlerCases(t, "/auth/logout", (*AuthHandlers).Logout, []handlerCase{
		{
			name:           "clears session cookie",
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				ck := findCookie(w, middleware.SessionCookie)
				require.NotNil(t, ck)
				assert.Empty(t, ck.Value)
				assert.True(t, ck.MaxAge < 0)
			},
		},
	})
}

func TestPolicyHandlers_List(t *testing.T) {
	gin.SetMode(gin.TestMode)

	enforcer := mocks.NewMockCasbinEnforcer()
	enforcer.SetPolicies([][]string{{"role_ADMIN", "/admin/*", "GET"}, {"broken"}})
	handler := NewPolicyHandlers(enforcer, logging.Discard())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/policies", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []policyRule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []policyRule{{Sub: "role_ADMIN", Obj: "/admin/*", Act: "GET"}}, body.Data)
}

func TestHealthHandlers_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		checks         map[string]HealthCheck
		expectedStatus int
	}{
		{
			name:           "all up",
			checks:         map[string]HealthCheck{"database": func(ctx context.Context) error { return nil }},
			expectedStatus: http.StatusOK,
		},
		{
			name: "one down",
			checks: map[string]HealthCheck{
				"database": func(ctx context.Context) error { return nil },
				"redis":    func(ctx context.Context) error { return errors.New("dial tcp: refused") },
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

			NewHealthHandlers(tt.checks).Health(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

// Helper function to validate nested maps and values
func validateValue(t *testing.T, key string, expected, actual interface{}) {
	t.Helper()

	expectedMap, expectedIsMap := expected.(map[string]interface{})
	actualMap, actualIsMap := actual.(map[string]interface{})

	if expectedIsMap && actualIsMap {
		for nestedKey, nestedExpected := range expectedMap {
			if nestedActual, exists := actualMap[nestedKey]; !exists {
				t.Errorf("expected key %s.%s not found in response", key, nestedKey)
			} else {
				validateValue(t, key+"."+nestedKey, nestedExpected, nestedActual)
			}
		}
	} else if expected != actual {
		t.Errorf("for key %s, expected %v, got %v", key, expected, actual)
	}
}
