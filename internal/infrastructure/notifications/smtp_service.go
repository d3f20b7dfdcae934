package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"
	"github.com/you/authsvc/domain"
)

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPServiceImpl implements domain.NotificationService over SMTP. STARTTLS is
// used when the server offers it, and PLAIN auth when a username is set.
type SMTPServiceImpl struct {
	config SMTPConfig
	send   sendFunc
	now    func() time.Time
}

// NewSMTPService creates a new SMTP notification service
func NewSMTPService(config SMTPConfig) *SMTPServiceImpl {
	if config.Port == 0 {
		config.Port = 587
	}
	s := &SMTPServiceImpl{config: config, now: time.Now}
	s.send = s.dialAndSend
	return s
}

// Send implements domain.NotificationService
func (s *SMTPServiceImpl) Send(ctx context.Context, destination, subject, body string) error {
	if s.config.Host == "" || s.config.From == "" {
		return oops.Code("EMAIL_NOT_CONFIGURED").Errorf("smtp host or sender is not configured")
	}
	if strings.ContainsAny(destination, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return oops.Code("EMAIL_INVALID_HEADER").Errorf("header values must not contain line breaks")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.buildMessage(destination, subject, body)
	if err != nil {
		return oops.Code("EMAIL_INVALID_HEADER").With("to", maskDestination(destination)).Wrap(err)
	}
	if err := s.send(ctx, msg); err != nil {
		return oops.Code("EMAIL_SEND_FAILED").With("to", maskDestination(destination)).Wrap(err)
	}
	return nil
}

func (s *SMTPServiceImpl) buildMessage(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.config.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetDateWithValue(s.now())
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *SMTPServiceImpl) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.config.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}

	client, err := mail.NewClient(s.config.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Compile-time interface compliance verification
var _ domain.NotificationService = (*SMTPServiceImpl)(nil)
