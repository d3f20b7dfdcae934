package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultPath is read when no --config flag is given
const DefaultPath = "config/config.yml"

// MinJWTSecretLength is the shortest HS256 secret accepted
const MinJWTSecretLength = 32

type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	GinMode         string        `koanf:"gin_mode"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	SecureCookies   bool          `koanf:"secure_cookies"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

type DatabaseConfig struct {
	Driver      string `koanf:"driver"`
	DSN         string `koanf:"dsn"`
	Schema      string `koanf:"schema"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type JWTConfig struct {
	Secret     string        `koanf:"secret"`
	Issuer     string        `koanf:"issuer"`
	SessionTTL time.Duration `koanf:"session_ttl"`
	DeviceTTL  time.Duration `koanf:"device_ttl"`
	ResetTTL   time.Duration `koanf:"reset_ttl"`
}

type OTPConfig struct {
	Length        int           `koanf:"length"`
	TTL           time.Duration `koanf:"ttl"`
	MaxAttempts   int           `koanf:"max_attempts"`
	ResendWindow  time.Duration `koanf:"resend_window"`
	Channel       string        `koanf:"channel"`
	Store         string        `koanf:"store"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

type ResetConfig struct {
	URL       string `koanf:"url"`
	SingleUse bool   `koanf:"single_use"`
}

type PasswordConfig struct {
	BcryptCost int `koanf:"bcrypt_cost"`
}

type GoogleConfig struct {
	ClientID string `koanf:"client_id"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	FromNumber string `koanf:"from_number"`
}

type NotificationsConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	LogBody bool          `koanf:"log_body"`
}

type CasbinConfig struct {
	ModelPath string `koanf:"model_path"`
}

type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

type Config struct {
	Service       ServiceConfig       `koanf:"service"`
	HTTP          HTTPConfig          `koanf:"http"`
	Log           LogConfig           `koanf:"log"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	JWT           JWTConfig           `koanf:"jwt"`
	OTP           OTPConfig           `koanf:"otp"`
	Reset         ResetConfig         `koanf:"reset"`
	Password      PasswordConfig      `koanf:"password"`
	Google        GoogleConfig        `koanf:"google"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	Twilio        TwilioConfig        `koanf:"twilio"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Casbin        CasbinConfig        `koanf:"casbin"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
}

var defaults = map[string]any{
	"service.name":          "authsvc",
	"service.version":       "dev",
	"http.addr":             ":8080",
	"http.gin_mode":         "release",
	"http.read_timeout":     10 * time.Second,
	"http.write_timeout":    10 * time.Second,
	"http.shutdown_timeout": 15 * time.Second,
	"http.secure_cookies":   true,
	"log.format":            "json",
	"log.level":             "info",
	"database.driver":       "postgres",
	"database.auto_migrate": true,
	"jwt.issuer":            "authsvc",
	"jwt.session_ttl":       time.Hour,
	"jwt.device_ttl":        30 * 24 * time.Hour,
	"jwt.reset_ttl":         15 * time.Minute,
	"otp.length":            6,
	"otp.ttl":               5 * time.Minute,
	"otp.max_attempts":      5,
	"otp.resend_window":     30 * time.Second,
	"otp.channel":           "email",
	"otp.store":             "memory",
	"otp.purge_interval":    time.Minute,
	"reset.single_use":      true,
	"password.bcrypt_cost":  10,
	"smtp.port":             587,
	"notifications.timeout": 15 * time.Second,
	"casbin.model_path":     "config/rbac_model.conf",
	"rate_limit.enabled":    true,
	"rate_limit.rps":        5.0,
	"rate_limit.burst":      10,
}

// EnvPrefix marks the environment variables read by Load. Secrets are
// expected to come from here rather than the config file.
const EnvPrefix = "AUTHSVC_"

// envAliases covers variables whose names do not split as SECTION_FIELD
var envAliases = map[string]string{
	"TWILIO_SID":  "twilio.account_sid",
	"TWILIO_FROM": "twilio.from_number",
}

// envSections lists sections whose own name contains an underscore
var envSections = []string{"rate_limit"}

// envKey maps AUTHSVC_SECTION_FIELD onto section.field, e.g.
// AUTHSVC_JWT_SESSION_TTL onto jwt.session_ttl. Empty values are skipped.
func envKey(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	name = strings.TrimPrefix(name, EnvPrefix)
	if key, ok := envAliases[name]; ok {
		return key, value
	}
	lower := strings.ToLower(name)
	for _, section := range envSections {
		if field, ok := strings.CutPrefix(lower, section+"_"); ok && field != "" {
			return section + "." + field, value
		}
	}
	section, field, ok := strings.Cut(lower, "_")
	if !ok || section == "" || field == "" {
		return "", nil
	}
	return section + "." + field, value
}

// flagKeys maps CLI flag names onto config keys
var flagKeys = map[string]string{
	"addr":       "http.addr",
	"log-format": "log.format",
	"log-level":  "log.level",
	"otp-store":  "otp.store",
	"gin-mode":   "http.gin_mode",
}

// RegisterFlags adds the config overrides understood by Load to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("otp-store", "memory", "OTP store backend (memory or redis)")
	fs.String("gin-mode", "release", "gin mode (debug, release or test)")
}

// Load reads configuration in order of increasing precedence: defaults, the
// YAML file at path, environment overrides, then flags explicitly set on fs.
// A missing file at DefaultPath is not an error; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !(errors.Is(err, os.ErrNotExist) && path == DefaultPath) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.Secret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("jwt.secret must be at least %d characters", MinJWTSecretLength))
	}
	for name, d := range map[string]time.Duration{
		"jwt.session_ttl":    c.JWT.SessionTTL,
		"jwt.device_ttl":     c.JWT.DeviceTTL,
		"jwt.reset_ttl":      c.JWT.ResetTTL,
		"otp.ttl":            c.OTP.TTL,
		"otp.resend_window":  c.OTP.ResendWindow,
		"otp.purge_interval": c.OTP.PurgeInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		errs = append(errs, fmt.Errorf("otp.length must be between 4 and 10, got %d", c.OTP.Length))
	}
	if c.OTP.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("otp.max_attempts must be at least 1"))
	}
	if c.OTP.Channel != "email" && c.OTP.Channel != "sms" {
		errs = append(errs, fmt.Errorf("otp.channel must be 'email' or 'sms', got %q", c.OTP.Channel))
	}
	switch c.OTP.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("otp.store 'redis' requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("otp.store must be 'memory' or 'redis', got %q", c.OTP.Store))
	}
	switch c.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("http.gin_mode must be debug, release or test, got %q", c.HTTP.GinMode))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be 'postgres' or 'sqlite', got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required"))
	}
	if c.Reset.URL != "" && !strings.HasPrefix(c.Reset.URL, "http://") && !strings.HasPrefix(c.Reset.URL, "https://") {
		errs = append(errs, fmt.Errorf("reset.url must be an http(s) URL"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// UseRedis reports whether any component needs the Redis client
func (c *Config) UseRedis() bool {
	return c.OTP.Store == "redis" || (c.Reset.SingleUse && c.Redis.Addr != "")
}
