// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"taskflow/backend/internal/security"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the REST API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// Lockout.
	LockoutEnabled           bool   `mapstructure:"LOCKOUT_ENABLED"`
	LockoutMaxFailedAttempts int    `mapstructure:"LOCKOUT_MAX_FAILED_ATTEMPTS"`
	LockoutDuration          string `mapstructure:"LOCKOUT_DURATION"`

	// MaxActiveSessionsPerUser caps concurrent non-revoked sessions; the oldest are revoked on login.
	MaxActiveSessionsPerUser int `mapstructure:"MAX_ACTIVE_SESSIONS_PER_USER"`
	// RequireConfirmedEmail gates login on EmailConfirmed and triggers a confirmation code at registration.
	RequireConfirmedEmail bool `mapstructure:"REQUIRE_CONFIRMED_EMAIL"`
	// RequireConfirmedPhone gates login on PhoneNumberConfirmed.
	RequireConfirmedPhone bool `mapstructure:"REQUIRE_CONFIRMED_PHONE"`
	// ConfirmationCodeTTL is how long an email-confirmation or reset code stays valid (e.g. "15m").
	ConfirmationCodeTTL string `mapstructure:"CONFIRMATION_CODE_TTL"`
	// ConfirmationCodeLength is the number of digits in a confirmation code.
	ConfirmationCodeLength int `mapstructure:"CONFIRMATION_CODE_LENGTH"`
	// DefaultRole is assigned to newly registered users when a role with that name exists.
	DefaultRole string `mapstructure:"DEFAULT_ROLE"`

	// Password policy.
	PasswordRequiredLength         int  `mapstructure:"PASSWORD_REQUIRED_LENGTH"`
	PasswordRequireDigit           bool `mapstructure:"PASSWORD_REQUIRE_DIGIT"`
	PasswordRequireLowercase       bool `mapstructure:"PASSWORD_REQUIRE_LOWERCASE"`
	PasswordRequireUppercase       bool `mapstructure:"PASSWORD_REQUIRE_UPPERCASE"`
	PasswordRequireNonAlphanumeric bool `mapstructure:"PASSWORD_REQUIRE_NON_ALPHANUMERIC"`
	PasswordRequiredUniqueChars    int  `mapstructure:"PASSWORD_REQUIRED_UNIQUE_CHARS"`

	// Mail. When SMTPHost is empty emails are logged instead of sent.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	// AppBaseURL is used to build links in emails (e.g. https://app.example.com).
	AppBaseURL string `mapstructure:"APP_BASE_URL"`

	// Background jobs. When KafkaBrokers is empty jobs run in-process.
	KafkaBrokers   string `mapstructure:"KAFKA_BROKERS"`
	JobsKafkaTopic string `mapstructure:"JOBS_KAFKA_TOPIC"`
	KafkaGroupID   string `mapstructure:"KAFKA_GROUP_ID"`

	// Rate limiting for public auth routes. Disabled when RedisURL is empty.
	RedisURL          string `mapstructure:"REDIS_URL"`
	RateLimitRequests int    `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   string `mapstructure:"RATE_LIMIT_WINDOW"`

	// OpenTelemetry. Empty endpoint yields no-op providers.
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// SignInPolicyPath optionally points at a Rego file replacing the built-in sign-in gate policy.
	SignInPolicyPath string `mapstructure:"SIGNIN_POLICY_PATH"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "taskflow-auth")
	v.SetDefault("JWT_AUDIENCE", "taskflow-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOCKOUT_ENABLED", true)
	v.SetDefault("LOCKOUT_MAX_FAILED_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_DURATION", "5m")
	v.SetDefault("MAX_ACTIVE_SESSIONS_PER_USER", 5)
	v.SetDefault("REQUIRE_CONFIRMED_EMAIL", true)
	v.SetDefault("REQUIRE_CONFIRMED_PHONE", false)
	v.SetDefault("CONFIRMATION_CODE_TTL", "15m")
	v.SetDefault("CONFIRMATION_CODE_LENGTH", 6)
	v.SetDefault("DEFAULT_ROLE", "Member")
	v.SetDefault("PASSWORD_REQUIRED_LENGTH", 8)
	v.SetDefault("PASSWORD_REQUIRE_DIGIT", true)
	v.SetDefault("PASSWORD_REQUIRE_LOWERCASE", true)
	v.SetDefault("PASSWORD_REQUIRE_UPPERCASE", true)
	v.SetDefault("PASSWORD_REQUIRE_NON_ALPHANUMERIC", true)
	v.SetDefault("PASSWORD_REQUIRED_UNIQUE_CHARS", 1)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "no-reply@taskflow.local")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("JOBS_KAFKA_TOPIC", "taskflow-jobs")
	v.SetDefault("KAFKA_GROUP_ID", "taskflow-jobs-worker")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", 20)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "taskflow-auth")
	v.SetDefault("SIGNIN_POLICY_PATH", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.LockoutMaxFailedAttempts < 1 {
		return nil, errors.New("config: LOCKOUT_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if cfg.MaxActiveSessionsPerUser < 1 {
		return nil, errors.New("config: MAX_ACTIVE_SESSIONS_PER_USER must be at least 1")
	}
	if cfg.ConfirmationCodeLength < 4 || cfg.ConfirmationCodeLength > 10 {
		return nil, errors.New("config: CONFIRMATION_CODE_LENGTH must be between 4 and 10")
	}
	if cfg.PasswordRequiredLength < 1 {
		return nil, errors.New("config: PASSWORD_REQUIRED_LENGTH must be at least 1")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// LockoutDurationValue parses LockoutDuration. Returns 5m if unset or invalid.
func (c *Config) LockoutDurationValue() time.Duration {
	return parseDuration(c.LockoutDuration, 5*time.Minute)
}

// ConfirmationCodeTTLValue parses ConfirmationCodeTTL. Returns 15m if unset or invalid.
func (c *Config) ConfirmationCodeTTLValue() time.Duration {
	return parseDuration(c.ConfirmationCodeTTL, 15*time.Minute)
}

// RateLimitWindowValue parses RateLimitWindow. Returns 1m if unset or invalid.
func (c *Config) RateLimitWindowValue() time.Duration {
	return parseDuration(c.RateLimitWindow, time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means jobs run in-process.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PasswordPolicy returns the password rules applied at registration and reset.
func (c *Config) PasswordPolicy() security.PasswordPolicy {
	return security.PasswordPolicy{
		RequiredLength:         c.PasswordRequiredLength,
		RequireDigit:           c.PasswordRequireDigit,
		RequireLowercase:       c.PasswordRequireLowercase,
		RequireUppercase:       c.PasswordRequireUppercase,
		RequireNonAlphanumeric: c.PasswordRequireNonAlphanumeric,
		RequiredUniqueChars:    c.PasswordRequiredUniqueChars,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
