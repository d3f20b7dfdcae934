package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/logging"
	"github.com/you/authsvc/internal/metrics"
)

// OTPServiceImpl implements domain.OTPService on top of a keyed entry store
type OTPServiceImpl struct {
	store    domain.OTPStore
	notifier domain.NotificationService
	config   OTPConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// OTPConfig holds passcode parameters
type OTPConfig struct {
	Length       int
	TTL          time.Duration
	MaxAttempts  int
	ResendWindow time.Duration
}

// DefaultOTPConfig returns 6 digit codes valid for 5 minutes with 5 attempts
func DefaultOTPConfig() OTPConfig {
	return OTPConfig{
		Length:       6,
		TTL:          5 * time.Minute,
		MaxAttempts:  5,
		ResendWindow: 30 * time.Second,
	}
}

// NewOTPService creates a new OTP service. Zero config fields fall back to DefaultOTPConfig.
func NewOTPService(store domain.OTPStore, notifier domain.NotificationService, config OTPConfig, logger *slog.Logger, m *metrics.Metrics) *OTPServiceImpl {
	def := DefaultOTPConfig()
	if config.Length <= 0 {
		config.Length = def.Length
	}
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.ResendWindow < 0 {
		config.ResendWindow = 0
	}
	return &OTPServiceImpl{
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Issue implements domain.OTPService. Any previous entry for the key is replaced.
func (s *OTPServiceImpl) Issue(ctx context.Context, key domain.OTPKey, destination string) (*domain.OTPEntry, error) {
	entry, err := s.newEntry(key)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, entry); err != nil {
		s.metrics.OTP("issue", "error")
		return nil, fmt.Errorf("failed to store OTP: %w", err)
	}
	s.metrics.OTP("issue", "success")
	s.deliver(ctx, key, destination, entry.Code)
	return entry, nil
}

// Validate implements domain.OTPService. The entry is consumed on success,
// expiry and exhaustion; a mismatch costs one attempt.
func (s *OTPServiceImpl) Validate(ctx context.Context, key domain.OTPKey, code string) error {
	now := s.now()
	err := s.store.Mutate(ctx, key, func(entry *domain.OTPEntry) (domain.EntryOp, error) {
		if entry.IsExpired(now) {
			return domain.EntryDelete, domain.ErrOTPExpired
		}
		if entry.AttemptsRemaining <= 0 {
			return domain.EntryDelete, domain.ErrOTPMaxAttempts
		}
		if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
			entry.AttemptsRemaining--
			return domain.EntrySave, &domain.OTPMismatchError{AttemptsRemaining: entry.AttemptsRemaining}
		}
		return domain.EntryDelete, nil
	})
	s.metrics.OTP("validate", otpOutcome(err))
	return err
}

// Resend implements domain.OTPService. It needs a pending entry and regenerates
// its code, expiry and attempt budget.
func (s *OTPServiceImpl) Resend(ctx context.Context, key domain.OTPKey, destination string) (*domain.OTPEntry, error) {
	fresh, err := s.newEntry(key)
	if err != nil {
		return nil, err
	}
	now := fresh.IssuedAt
	err = s.store.Mutate(ctx, key, func(entry *domain.OTPEntry) (domain.EntryOp, error) {
		// a challenge that is already dead cannot be revived; the caller must log in again
		if entry.IsExpired(now) {
			return domain.EntryDelete, domain.ErrOTPExpired
		}
		if entry.AttemptsRemaining <= 0 {
			return domain.EntryDelete, domain.ErrOTPMaxAttempts
		}
		if wait := entry.IssuedAt.Add(s.config.ResendWindow).Sub(now); wait > 0 {
			return domain.EntryKeep, &domain.ResendThrottledError{WaitSeconds: int64((wait + time.Second - 1) / time.Second)}
		}
		*entry = *fresh
		return domain.EntrySave, nil
	})
	s.metrics.OTP("resend", otpOutcome(err))
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, key, destination, fresh.Code)
	return fresh, nil
}

// PurgeExpired implements domain.OTPService
func (s *OTPServiceImpl) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired OTPs: %w", err)
	}
	return n, nil
}

func (s *OTPServiceImpl) newEntry(key domain.OTPKey) (*domain.OTPEntry, error) {
	code, err := s.generateSecureCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP code: %w", err)
	}
	now := s.now()
	return &domain.OTPEntry{
		Key:               key,
		Code:              code,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.config.TTL),
		AttemptsRemaining: s.config.MaxAttempts,
	}, nil
}

// deliver hands the code to the notifier; failures are logged only
func (s *OTPServiceImpl) deliver(ctx context.Context, key domain.OTPKey, destination, code string) {
	if destination == "" {
		s.logger.WarnContext(ctx, "no otp destination on record", "subject_id", key.SubjectID)
		return
	}
	subject := "Your login verification code"
	body := fmt.Sprintf("Your one-time login verification code is:\n\n%s\n\n"+
		"This code will expire in %d minutes.\n"+
		"If you did not attempt to sign in, please ignore this message.\n",
		code, int(s.config.TTL.Minutes()))
	if err := s.notifier.Send(ctx, destination, subject, body); err != nil {
		logging.LogError(ctx, s.logger, "otp delivery failed", err)
	}
}

// generateSecureCode generates a cryptographically secure OTP code
func (s *OTPServiceImpl) generateSecureCode() (string, error) {
	digits := make([]byte, s.config.Length)

	for i := 0; i < s.config.Length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte('0' + num.Int64())
	}

	return string(digits), nil
}

func otpOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrOTPExpired):
		return "expired"
	case errors.Is(err, domain.ErrOTPMaxAttempts):
		return "exhausted"
	case errors.Is(err, domain.ErrOTPInvalid):
		return "mismatch"
	case errors.Is(err, domain.ErrOTPResendThrottled):
		return "throttled"
	default:
		return "error"
	}
}

// Compile-time interface compliance verification
var _ domain.OTPService = (*OTPServiceImpl)(nil)
