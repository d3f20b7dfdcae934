package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/http/middleware"
	"github.com/you/authsvc/internal/logging"
)

// DeviceCookie carries the trusted-device token
const DeviceCookie = "deviceToken"

// CookieConfig controls how auth cookies are written
type CookieConfig struct {
	Secure bool
	// DeviceMaxAge is the device cookie lifetime in seconds
	DeviceMaxAge int
}

// AuthHandlers handles authentication HTTP requests using clean architecture
type AuthHandlers struct {
	authSvc domain.AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authSvc domain.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cookies.DeviceMaxAge <= 0 {
		cookies.DeviceMaxAge = 30 * 24 * 60 * 60
	}
	return &AuthHandlers{
		authSvc: authSvc,
		cookies: cookies,
		logger:  logger,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username       string `json:"username" binding:"required"`
	Password       string `json:"password" binding:"required"`
	RememberDevice bool   `json:"rememberDevice"`
	DeviceToken    string `json:"deviceToken"`
}

// OTPVerifyRequest represents OTP verification request
type OTPVerifyRequest struct {
	OTPToken       string `json:"otp_token" binding:"required"`
	Code           string `json:"code" binding:"required"`
	RememberDevice bool   `json:"rememberDevice"`
}

// OTPResendRequest represents an OTP resend request
type OTPResendRequest struct {
	OTPToken string `json:"otp_token" binding:"required"`
}

// ForgotPasswordRequest represents a password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest represents the completion of a password reset
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// GoogleLoginRequest carries the Google ID token from the frontend
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// Login handles username/password login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deviceToken := req.DeviceToken
	if deviceToken == "" {
		deviceToken, _ = c.Cookie(DeviceCookie)
	}

	result, err := h.authSvc.Login(c.Request.Context(), domain.LoginRequest{
		Username:       req.Username,
		Password:       req.Password,
		DeviceToken:    deviceToken,
		RememberDevice: req.RememberDevice,
	})
	if err != nil {
		h.writeError(c, err, "Login failed")
		return
	}

	if result.OTPRequired {
		h.writeChallenge(c, result, "A verification code has been sent")
		return
	}

	h.writeSession(c, result)
}

// VerifyOTP completes a step-up challenge
func (h *AuthHandlers) VerifyOTP(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authSvc.VerifyOTP(c.Request.Context(), domain.OTPVerification{
		PendingToken:   req.OTPToken,
		Code:           req.Code,
		RememberDevice: req.RememberDevice,
	})
	if err != nil {
		h.writeError(c, err, "OTP verification failed")
		return
	}

	h.writeSession(c, result)
}

// ResendOTP regenerates and redelivers a pending challenge
func (h *AuthHandlers) ResendOTP(c *gin.Context) {
	var req OTPResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authSvc.ResendOTP(c.Request.Context(), req.OTPToken)
	if err != nil {
		h.writeError(c, err, "Failed to resend OTP")
		return
	}

	h.writeChallenge(c, result, "OTP resent")
}

// writeChallenge answers with the pending token that the OTP endpoints expect
func (h *AuthHandlers) writeChallenge(c *gin.Context, result *domain.AuthResult, message string) {
	data := gin.H{
		"otp_required": true,
		"otp_token":    result.PendingToken,
		"expires_in":   result.ExpiresIn,
		"roles":        result.Roles,
		"message":      message,
	}
	if result.Identity != nil {
		data["user_id"] = result.Identity.ID
		data["email"] = result.Identity.Email
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// ForgotPassword always answers the same way so callers cannot probe for accounts
func (h *AuthHandlers) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authSvc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err, "Failed to process request")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"message": "If the email is registered, a reset link has been sent"},
	})
}

// ResetPassword sets a new password using a reset token
func (h *AuthHandlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authSvc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(c, err, "Failed to reset password")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"message": "Password has been reset"}})
}

// GoogleLogin signs in with a Google ID token
func (h *AuthHandlers) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authSvc.LoginFederated(c.Request.Context(), req.IDToken)
	if err != nil {
		h.writeError(c, err, "Login failed")
		return
	}

	h.writeSession(c, result)
}

// Me returns the profile of the current session (requires authentication)
func (h *AuthHandlers) Me(c *gin.Context) {
	token := c.GetString(middleware.ContextKeyToken)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	summary, err := h.authSvc.Me(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err, "Failed to get user profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// Logout clears the session cookie. Tokens are stateless and expire on their own.
func (h *AuthHandlers) Logout(c *gin.Context) {
	h.setCookie(c, middleware.SessionCookie, "", -1)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"message": "Logged out"}})
}

func (h *AuthHandlers) writeSession(c *gin.Context, result *domain.AuthResult) {
	h.setCookie(c, middleware.SessionCookie, result.Token, int(result.ExpiresIn))
	if result.DeviceToken != "" {
		h.setCookie(c, DeviceCookie, result.DeviceToken, h.cookies.DeviceMaxAge)
	}

	user := gin.H{"roles": result.Roles}
	if result.Identity != nil {
		user["id"] = result.Identity.ID
		user["username"] = result.Identity.Username
		user["email"] = result.Identity.Email
	}

	data := gin.H{
		"otp_required": false,
		"token":        result.Token,
		"token_type":   "Bearer",
		"expires_in":   result.ExpiresIn,
		"user":         user,
	}
	if result.DeviceToken != "" {
		data["device_token"] = result.DeviceToken
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *AuthHandlers) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.cookies.Secure, true)
}

// writeError maps domain errors onto status codes and generic messages
func (h *AuthHandlers) writeError(c *gin.Context, err error, fallback string) {
	var mismatch *domain.OTPMismatchError
	var throttled *domain.ResendThrottledError

	switch {
	case errors.As(err, &mismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTP code", "attempts_remaining": mismatch.AttemptsRemaining})
	case errors.As(err, &throttled):
		c.Header("Retry-After", strconv.FormatInt(throttled.WaitSeconds, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Please wait before requesting a new OTP", "wait_seconds": throttled.WaitSeconds})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, domain.ErrUserInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is inactive"})
	case errors.Is(err, domain.ErrOTPNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "OTP not found"})
	case errors.Is(err, domain.ErrOTPExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "OTP has expired"})
	case errors.Is(err, domain.ErrOTPMaxAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Maximum attempts exceeded"})
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, domain.ErrAccountNotRegistered):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account not registered"})
	case errors.Is(err, domain.ErrFederatedTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity token"})
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	default:
		logging.LogError(c.Request.Context(), h.logger, fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
