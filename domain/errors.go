package domain

import (
	"errors"
	"fmt"
)

// Authentication errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrUserInactive         = errors.New("user account is inactive")
	ErrAccountNotRegistered = errors.New("account not registered")
	ErrUnauthenticated      = errors.New("user is not authenticated")
)

// OTP errors
var (
	ErrOTPExpired         = errors.New("otp has expired")
	ErrOTPInvalid         = errors.New("invalid otp code")
	ErrOTPMaxAttempts     = errors.New("too many failed attempts, otp locked")
	ErrOTPNotFound        = errors.New("otp not found")
	ErrOTPResendThrottled = errors.New("otp resend requested too soon")
)

// Token errors
var (
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenMalformed        = errors.New("malformed token")
	ErrTokenBadSignature     = errors.New("token signature is invalid")
	ErrTokenWrongType        = errors.New("token type mismatch")
	ErrFederatedTokenInvalid = errors.New("invalid federated identity token")
)

// OTPMismatchError reports a wrong passcode together with the remaining budget.
// It matches ErrOTPInvalid under errors.Is.
type OTPMismatchError struct {
	AttemptsRemaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("invalid otp code, attempts left: %d", e.AttemptsRemaining)
}

func (e *OTPMismatchError) Is(target error) bool {
	return target == ErrOTPInvalid
}

// ResendThrottledError reports how long a caller must wait before another resend.
// It matches ErrOTPResendThrottled under errors.Is.
type ResendThrottledError struct {
	WaitSeconds int64
}

func (e *ResendThrottledError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting new OTP", e.WaitSeconds)
}

func (e *ResendThrottledError) Is(target error) bool {
	return target == ErrOTPResendThrottled
}
