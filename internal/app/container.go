package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/config"
	httpx "github.com/you/authsvc/internal/http"
	"github.com/you/authsvc/internal/http/handlers"
	"github.com/you/authsvc/internal/http/middleware"
	"github.com/you/authsvc/internal/infrastructure/auth"
	"github.com/you/authsvc/internal/infrastructure/database"
	"github.com/you/authsvc/internal/infrastructure/notifications"
	"github.com/you/authsvc/internal/infrastructure/repositories"
	"github.com/you/authsvc/internal/metrics"
	"github.com/you/authsvc/internal/services"
)

// Container holds all dependencies
type Container struct {
	// Config
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	DB          *gorm.DB
	RedisClient *redis.Client
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Casbin      *auth.CasbinService

	// Repositories
	Identities domain.IdentityRepository
	OTPStore   domain.OTPStore
	Ledger     domain.TokenLedger

	// Services
	PasswordSvc domain.PasswordService
	TokenSvc    domain.TokenService
	Notifier    *notifications.AsyncNotifier
	Federated   domain.FederatedVerifier
	OTPSvc      domain.OTPService
	AuthSvc     domain.AuthService

	transport domain.NotificationService
}

// Option customizes a Container before its services are built
type Option func(*Container)

// WithTransport replaces the SMTP/Twilio delivery chain
func WithTransport(t domain.NotificationService) Option {
	return func(c *Container) { c.transport = t }
}

// NewContainer creates and initializes all dependencies
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	c.Registry, c.Metrics = metrics.NewRegistry()

	if err := c.initDatabase(); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.initRepositories()
	if err := c.initServices(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Container) initDatabase() error {
	db, err := database.Open(c.Config.Database.Driver, c.Config.Database.DSN, c.Config.Database.Schema)
	if err != nil {
		return err
	}
	c.DB = db

	if c.Config.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
	}

	cas, err := auth.NewCasbinService(db, c.Config.Casbin.ModelPath)
	if err != nil {
		return err
	}
	seeded, err := cas.SeedDefaults(true)
	if err != nil {
		return err
	}
	if seeded {
		c.Logger.Info("casbin: seeded default policies", "count", len(auth.DefaultPolicies))
	}
	c.Casbin = cas
	return nil
}

func (c *Container) initRedis(ctx context.Context) error {
	if !c.Config.UseRedis() {
		return nil
	}
	client, err := database.OpenRedis(ctx, database.RedisOptions{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err != nil {
		return err
	}
	c.RedisClient = client
	return nil
}

func (c *Container) initRepositories() {
	c.Identities = repositories.NewIdentityRepository(c.DB)

	if c.Config.OTP.Store == "redis" {
		c.OTPStore = repositories.NewRedisOTPStore(c.RedisClient)
	} else {
		c.OTPStore = repositories.NewMemoryOTPStore()
	}

	if c.Config.Reset.SingleUse {
		if c.RedisClient != nil {
			c.Ledger = repositories.NewRedisTokenLedger(c.RedisClient)
		} else {
			c.Ledger = repositories.NewMemoryTokenLedger()
		}
	}
}

func (c *Container) initServices(ctx context.Context) error {
	cfg := c.Config

	c.PasswordSvc = auth.NewPasswordService(cfg.Password.BcryptCost)
	c.TokenSvc = auth.NewJWTService(auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		SessionTTL: cfg.JWT.SessionTTL,
		DeviceTTL:  cfg.JWT.DeviceTTL,
		ResetTTL:   cfg.JWT.ResetTTL,
		PendingTTL: cfg.OTP.TTL,
	})
	if c.transport == nil {
		c.transport = c.buildTransport()
	}
	c.Notifier = notifications.NewAsyncNotifier(c.transport, cfg.Notifications.Timeout, c.Logger, c.Metrics)

	if cfg.Google.ClientID != "" {
		verifier, err := auth.NewGoogleVerifier(ctx, cfg.Google.ClientID)
		if err != nil {
			return fmt.Errorf("failed to initialize google verifier: %w", err)
		}
		c.Federated = verifier
	}

	c.OTPSvc = services.NewOTPService(c.OTPStore, c.Notifier, services.OTPConfig{
		Length:       cfg.OTP.Length,
		TTL:          cfg.OTP.TTL,
		MaxAttempts:  cfg.OTP.MaxAttempts,
		ResendWindow: cfg.OTP.ResendWindow,
	}, c.Logger, c.Metrics)

	deps := services.AuthDependencies{
		Identities: c.Identities,
		Passwords:  c.PasswordSvc,
		Tokens:     c.TokenSvc,
		OTP:        c.OTPSvc,
		Notifier:   c.Notifier,
		Federated:  c.Federated,
		Ledger:     c.Ledger,
		Audit:      services.NewSlogAuditLogger(c.Logger),
		Logger:     c.Logger,
		Metrics:    c.Metrics,
	}
	c.AuthSvc = services.NewAuthService(deps, services.AuthConfig{
		ResetURL:   cfg.Reset.URL,
		OTPChannel: cfg.OTP.Channel,
	})
	return nil
}

// buildTransport routes email to SMTP and phone numbers to Twilio, logging
// instead when a transport is not configured
func (c *Container) buildTransport() domain.NotificationService {
	cfg := c.Config
	fallback := notifications.NewLogNotifier(c.Logger, cfg.Notifications.LogBody)

	var email domain.NotificationService = fallback
	if cfg.SMTP.Host != "" {
		email = notifications.NewSMTPService(notifications.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		c.Logger.Warn("smtp not configured, email notifications will only be logged")
	}

	var sms domain.NotificationService = fallback
	if cfg.Twilio.AccountSID != "" {
		sms = notifications.NewTwilioService(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	} else if cfg.OTP.Channel == services.ChannelSMS {
		c.Logger.Warn("twilio not configured, sms notifications will only be logged")
	}

	return notifications.NewRouter(email, sms)
}

// Router builds the HTTP handler tree
func (c *Container) Router() (*gin.Engine, error) {
	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.RedisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}
	}

	var limiter *middleware.RateLimiter
	if c.Config.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(c.Config.RateLimit.RPS, c.Config.RateLimit.Burst, c.Metrics)
	}

	router := httpx.BuildRouter(httpx.RouterDeps{
		Auth: handlers.NewAuthHandlers(c.AuthSvc, handlers.CookieConfig{
			Secure:       c.Config.HTTP.SecureCookies,
			DeviceMaxAge: int(c.TokenSvc.TTL(domain.TokenKindDeviceTrust).Seconds()),
		}, c.Logger),
		Policies: handlers.NewPolicyHandlers(c.Casbin.E, c.Logger),
		Health:   handlers.NewHealthHandlers(checks),
		JWT:      middleware.NewAuthMW(c.TokenSvc, services.NewSessionContextBuilder()),
		Casbin:   middleware.NewCasbinMW(c.Casbin.E, c.Logger),
		Limiter:  limiter,
		Metrics:  promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry}),
		Logger:   c.Logger,
	})
	if err := router.SetTrustedProxies(c.Config.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	return router, nil
}

// Close waits for in-flight notifications and closes all connections
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Notifier != nil {
		if err := c.Notifier.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notifications still in flight: %w", err))
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err != nil {
			errs = append(errs, err)
		} else if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
