package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/logging"
	"github.com/you/authsvc/internal/metrics"
)

var tracer = otel.Tracer("github.com/you/authsvc/internal/services")

// OTP delivery channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// AuthConfig holds orchestrator settings
type AuthConfig struct {
	// ResetURL is the page that receives the reset token as ?token=
	ResetURL string
	// OTPChannel selects where step-up codes go: "email" (default) or "sms"
	OTPChannel string
}

// AuthDependencies groups the collaborators of the orchestrator. Federated and
// Ledger may be nil to disable federated login and single-use reset tokens.
type AuthDependencies struct {
	Identities domain.IdentityRepository
	Passwords  domain.PasswordService
	Tokens     domain.TokenService
	OTP        domain.OTPService
	Notifier   domain.NotificationService
	Federated  domain.FederatedVerifier
	Ledger     domain.TokenLedger
	Audit      domain.AuditLogger
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// AuthServiceImpl implements domain.AuthService
type AuthServiceImpl struct {
	identities domain.IdentityRepository
	passwords  domain.PasswordService
	tokens     domain.TokenService
	otp        domain.OTPService
	notifier   domain.NotificationService
	federated  domain.FederatedVerifier
	ledger     domain.TokenLedger
	audit      domain.AuditLogger
	sessions   *SessionContextBuilder
	config     AuthConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(deps AuthDependencies, config AuthConfig) *AuthServiceImpl {
	if config.OTPChannel == "" {
		config.OTPChannel = ChannelEmail
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := deps.Audit
	if audit == nil {
		audit = NewSlogAuditLogger(logger)
	}
	return &AuthServiceImpl{
		identities: deps.Identities,
		passwords:  deps.Passwords,
		tokens:     deps.Tokens,
		otp:        deps.OTP,
		notifier:   deps.Notifier,
		federated:  deps.Federated,
		ledger:     deps.Ledger,
		audit:      audit,
		sessions:   NewSessionContextBuilder(),
		config:     config,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// Login implements domain.AuthService
func (s *AuthServiceImpl) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	identity, err := s.resolve(ctx, domain.LocalCredential{Username: req.Username, Password: req.Password})
	if err != nil {
		s.loginFailed(ctx, span, "password", req.Username, err)
		return nil, err
	}

	// inactive is only revealed to a caller who already knows the password
	if !identity.Active {
		s.loginFailed(ctx, span, "password", req.Username, domain.ErrUserInactive)
		return nil, domain.ErrUserInactive
	}

	otpRequired := identity.OTPEnabled
	if otpRequired && req.DeviceToken != "" && s.tokens.VerifyDeviceToken(req.DeviceToken, identity.SubjectID()) {
		otpRequired = false
		s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.TrustedDeviceEvent, identity.ID).WithUsername(identity.Username))
	}
	span.SetAttributes(attribute.Bool("auth.otp_required", otpRequired))

	if otpRequired {
		key := domain.OTPKey{SubjectID: identity.ID, Purpose: domain.OTPPurposeLogin}
		if _, err := s.otp.Issue(ctx, key, s.otpDestination(identity)); err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to issue OTP: %w", err)
		}
		pending, err := s.issuePending(span, identity)
		if err != nil {
			return nil, err
		}
		s.metrics.Login("password", "otp_required")
		s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.OTPIssuedEvent, identity.ID).
			WithUsername(identity.Username).
			WithMetadata("channel", s.config.OTPChannel))
		return pending, nil
	}

	return s.completeLogin(ctx, span, identity, req.RememberDevice, "password")
}

// VerifyOTP implements domain.AuthService. The subject comes from the pending
// token minted at login, never from the caller.
func (s *AuthServiceImpl) VerifyOTP(ctx context.Context, req domain.OTPVerification) (*domain.AuthResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.VerifyOTP")
	defer span.End()

	subjectID, err := s.pendingSubject(span, req.PendingToken)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("auth.subject_id", int64(subjectID)))

	key := domain.OTPKey{SubjectID: subjectID, Purpose: domain.OTPPurposeLogin}
	if err := s.otp.Validate(ctx, key, req.Code); err != nil {
		recordSpanError(span, err)
		s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.OTPFailureEvent, subjectID).WithError(err))
		return nil, err
	}

	identity, err := s.identities.FindByID(ctx, subjectID)
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !identity.Active {
		return nil, domain.ErrUserInactive
	}

	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.OTPVerifiedEvent, identity.ID).WithUsername(identity.Username))
	return s.completeLogin(ctx, span, identity, req.RememberDevice, "otp")
}

// ResendOTP implements domain.AuthService. A fresh pending token is returned
// because the regenerated code outlives the one presented.
func (s *AuthServiceImpl) ResendOTP(ctx context.Context, pendingToken string) (*domain.AuthResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.ResendOTP")
	defer span.End()

	subjectID, err := s.pendingSubject(span, pendingToken)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.FindByID(ctx, subjectID)
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	key := domain.OTPKey{SubjectID: identity.ID, Purpose: domain.OTPPurposeLogin}
	if _, err := s.otp.Resend(ctx, key, s.otpDestination(identity)); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.OTPIssuedEvent, identity.ID).
		WithUsername(identity.Username).
		WithMetadata("resend", true))
	return s.issuePending(span, identity)
}

// ForgotPassword implements domain.AuthService. Unknown and inactive accounts
// get the same nil result as registered ones.
func (s *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "AuthService.ForgotPassword")
	defer span.End()

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.PasswordResetRequestEvent, 0).
				WithError(err).
				WithMetadata("registered", false))
			return nil
		}
		recordSpanError(span, err)
		return fmt.Errorf("failed to find user: %w", err)
	}
	if !identity.Active {
		s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.PasswordResetRequestEvent, identity.ID).
			WithError(domain.ErrUserInactive))
		return nil
	}

	token, err := s.tokens.Issue(domain.TokenKindReset, identity.SubjectID(), domain.TokenExtras{})
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	s.metrics.TokenIssued(string(domain.TokenKindReset))

	ttl := s.tokens.TTL(domain.TokenKindReset)
	body := fmt.Sprintf("A password reset was requested for your account.\n\n"+
		"Open the link below to choose a new password. It expires in %d minutes.\n\n%s\n\n"+
		"If you did not request this, you can ignore this message.\n",
		int(ttl.Minutes()), s.resetLink(token))
	if err := s.notifier.Send(ctx, identity.Email, "Reset your password", body); err != nil {
		logging.LogError(ctx, s.logger, "reset link delivery failed", err)
	}

	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.PasswordResetRequestEvent, identity.ID).
		WithUsername(identity.Username))
	return nil
}

// ResetPassword implements domain.AuthService
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	ctx, span := tracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	claims, err := s.tokens.VerifyKind(resetToken, domain.TokenKindReset)
	if err != nil {
		return s.resetFailed(ctx, span, 0, err)
	}
	id, err := parseSubject(claims.Subject)
	if err != nil {
		return s.resetFailed(ctx, span, 0, err)
	}

	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return s.resetFailed(ctx, span, id, err)
		}
		recordSpanError(span, err)
		return fmt.Errorf("failed to find user: %w", err)
	}

	hashed, err := s.passwords.Hash(newPassword)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if s.ledger != nil {
		first, err := s.ledger.Consume(ctx, claims.ID, claims.Remaining(s.now()))
		if err != nil {
			recordSpanError(span, err)
			return fmt.Errorf("failed to record reset token use: %w", err)
		}
		if !first {
			return s.resetFailed(ctx, span, id, errors.New("reset token already used"))
		}
	}

	identity.PasswordHash = hashed
	if err := s.identities.Save(ctx, identity); err != nil {
		recordSpanError(span, err)
		// the password did not change, so the link stays usable
		if s.ledger != nil {
			if relErr := s.ledger.Release(ctx, claims.ID); relErr != nil {
				logging.LogError(ctx, s.logger, "reset token release failed", relErr)
			}
		}
		return fmt.Errorf("failed to save password: %w", err)
	}

	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.PasswordResetEvent, identity.ID).WithUsername(identity.Username))
	return nil
}

// LoginFederated implements domain.AuthService
func (s *AuthServiceImpl) LoginFederated(ctx context.Context, rawToken string) (*domain.AuthResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.LoginFederated")
	defer span.End()

	if s.federated == nil {
		s.loginFailed(ctx, span, "federated", "", domain.ErrFederatedTokenInvalid)
		return nil, domain.ErrFederatedTokenInvalid
	}
	fi, err := s.federated.Verify(ctx, rawToken)
	if err != nil {
		s.loginFailed(ctx, span, "federated", "", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrFederatedTokenInvalid, err)
	}

	identity, err := s.resolve(ctx, *fi)
	if err != nil {
		s.loginFailed(ctx, span, "federated", fi.Email, err)
		return nil, err
	}
	if !identity.Active {
		s.loginFailed(ctx, span, "federated", fi.Email, domain.ErrUserInactive)
		return nil, domain.ErrUserInactive
	}

	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.FederatedLoginEvent, identity.ID).
		WithUsername(identity.Username).
		WithMetadata("provider", fi.Provider))
	return s.completeLogin(ctx, span, identity, false, "federated")
}

// Me implements domain.AuthService. The profile is read from live data, so
// roles reflect current assignments rather than the token snapshot.
func (s *AuthServiceImpl) Me(ctx context.Context, sessionToken string) (*domain.IdentitySummary, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Me")
	defer span.End()

	claims, err := s.tokens.VerifyKind(sessionToken, domain.TokenKindSession)
	if err != nil {
		recordSpanError(span, err)
		return nil, domain.ErrUnauthenticated
	}
	id, err := parseSubject(claims.Subject)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}

	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &domain.IdentitySummary{
		ID:         identity.ID,
		Username:   identity.Username,
		Email:      identity.Email,
		FullName:   identity.FullName,
		Phone:      identity.Phone,
		Roles:      identity.ActiveRoleCodes(),
		Active:     identity.Active,
		OTPEnabled: identity.OTPEnabled,
		LastLogin:  identity.LastLogin,
	}, nil
}

// resolve maps a credential to the single identity it proves
func (s *AuthServiceImpl) resolve(ctx context.Context, cred domain.Credential) (*domain.Identity, error) {
	switch c := cred.(type) {
	case domain.LocalCredential:
		identity, err := s.identities.FindByUsername(ctx, c.Username)
		if errors.Is(err, domain.ErrUserNotFound) {
			s.passwords.VerifyDummy(c.Password)
			return nil, domain.ErrInvalidCredentials
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if !s.passwords.Verify(identity.PasswordHash, c.Password) {
			return nil, domain.ErrInvalidCredentials
		}
		return identity, nil

	case domain.FederatedIdentity:
		if c.Email == "" || !c.EmailVerified {
			return nil, domain.ErrFederatedTokenInvalid
		}
		identity, err := s.identities.FindByEmail(ctx, c.Email)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrAccountNotRegistered
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		return identity, nil

	default:
		return nil, fmt.Errorf("unsupported credential type %T", cred)
	}
}

// completeLogin mints the session (and optional device) token and stamps last login
func (s *AuthServiceImpl) completeLogin(ctx context.Context, span trace.Span, identity *domain.Identity, rememberDevice bool, method string) (*domain.AuthResult, error) {
	session := s.sessions.BuildContext(identity)

	token, err := s.tokens.Issue(domain.TokenKindSession, session.SubjectID, domain.TokenExtras{
		Username: identity.Username,
		Roles:    session.Roles,
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	s.metrics.TokenIssued(string(domain.TokenKindSession))

	var deviceToken string
	if rememberDevice {
		deviceToken, err = s.tokens.Issue(domain.TokenKindDeviceTrust, session.SubjectID, domain.TokenExtras{})
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to generate device token: %w", err)
		}
		s.metrics.TokenIssued(string(domain.TokenKindDeviceTrust))
	}

	now := s.now()
	identity.LastLogin = &now
	if err := s.identities.Save(ctx, identity); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}

	s.metrics.Login(method, "success")
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.UserLoginEvent, identity.ID).
		WithUsername(identity.Username).
		WithMetadata("method", method).
		WithMetadata("remember_device", rememberDevice))

	return &domain.AuthResult{
		Identity:    identity,
		Roles:       session.Roles,
		Token:       token,
		DeviceToken: deviceToken,
		ExpiresIn:   int64(s.tokens.TTL(domain.TokenKindSession).Seconds()),
	}, nil
}

// issuePending mints the token that names the subject of an open step-up challenge
func (s *AuthServiceImpl) issuePending(span trace.Span, identity *domain.Identity) (*domain.AuthResult, error) {
	token, err := s.tokens.Issue(domain.TokenKindOTPPending, identity.SubjectID(), domain.TokenExtras{})
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to generate pending OTP token: %w", err)
	}
	s.metrics.TokenIssued(string(domain.TokenKindOTPPending))
	return &domain.AuthResult{
		Identity:     identity,
		Roles:        identity.ActiveRoleCodes(),
		OTPRequired:  true,
		PendingToken: token,
		ExpiresIn:    int64(s.tokens.TTL(domain.TokenKindOTPPending).Seconds()),
	}, nil
}

// pendingSubject resolves the subject of a pending OTP token. Every failure
// collapses to ErrInvalidOrExpiredToken.
func (s *AuthServiceImpl) pendingSubject(span trace.Span, token string) (uint, error) {
	claims, err := s.tokens.VerifyKind(token, domain.TokenKindOTPPending)
	if err == nil {
		var id uint
		if id, err = parseSubject(claims.Subject); err == nil {
			return id, nil
		}
	}
	recordSpanError(span, err)
	return 0, domain.ErrInvalidOrExpiredToken
}

func (s *AuthServiceImpl) otpDestination(identity *domain.Identity) string {
	if s.config.OTPChannel == ChannelSMS && identity.Phone != "" {
		return identity.Phone
	}
	return identity.Email
}

func (s *AuthServiceImpl) resetLink(token string) string {
	sep := "?"
	if strings.Contains(s.config.ResetURL, "?") {
		sep = "&"
	}
	return s.config.ResetURL + sep + "token=" + url.QueryEscape(token)
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, span trace.Span, method, username string, err error) {
	recordSpanError(span, err)
	outcome := "error"
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		outcome = "invalid_credentials"
	case errors.Is(err, domain.ErrUserInactive):
		outcome = "inactive"
	case errors.Is(err, domain.ErrAccountNotRegistered):
		outcome = "not_registered"
	case errors.Is(err, domain.ErrFederatedTokenInvalid):
		outcome = "invalid_token"
	}
	s.metrics.Login(method, outcome)
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.UserLoginFailureEvent, 0).
		WithUsername(username).
		WithMetadata("method", method).
		WithError(err))
}

// resetFailed records the cause and returns the single external reset failure
func (s *AuthServiceImpl) resetFailed(ctx context.Context, span trace.Span, id uint, cause error) error {
	recordSpanError(span, cause)
	s.audit.LogEvent(ctx, domain.NewAuditEvent(domain.PasswordResetFailureEvent, id).WithError(cause))
	return domain.ErrInvalidOrExpiredToken
}

func parseSubject(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: subject %q", domain.ErrTokenMalformed, subject)
	}
	return uint(id), nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*AuthServiceImpl)(nil)
