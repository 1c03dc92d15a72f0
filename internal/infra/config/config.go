package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Session   SessionSettings   `mapstructure:"session"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	MFA       MFASettings       `mapstructure:"mfa"`
	Bcrypt    BcryptSettings    `mapstructure:"bcrypt"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection backing rate-limit counters.
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the security event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings configures token signing and per-purpose lifetimes.
type JWTSettings struct {
	Secret             string        `mapstructure:"secret"`
	Issuer             string        `mapstructure:"issuer"`
	Audience           string        `mapstructure:"audience"`
	AccessTokenTTL     time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshRememberTTL time.Duration `mapstructure:"refresh_remember_ttl"`
	EmailTokenTTL      time.Duration `mapstructure:"email_token_ttl"`
	ResetTokenTTL      time.Duration `mapstructure:"reset_token_ttl"`
}

// SessionSettings configures session lifetimes and the concurrent-session cap.
type SessionSettings struct {
	MaxPerUser  int           `mapstructure:"max_per_user"`
	TTL         time.Duration `mapstructure:"ttl"`
	RememberTTL time.Duration `mapstructure:"remember_ttl"`
}

// RateLimitSettings configures admission-control tiers per endpoint.
type RateLimitSettings struct {
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	LoginWindow              time.Duration `mapstructure:"login_window"`
	RegisterMaxAttempts      int           `mapstructure:"register_max_attempts"`
	RegisterWindow           time.Duration `mapstructure:"register_window"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
	PasswordResetWindow      time.Duration `mapstructure:"password_reset_window"`
	AnonymousMaxRequests     int           `mapstructure:"anonymous_max_requests"`
	AnonymousWindow          time.Duration `mapstructure:"anonymous_window"`
	AuthenticatedMaxRequests int           `mapstructure:"authenticated_max_requests"`
	AuthenticatedWindow      time.Duration `mapstructure:"authenticated_window"`
}

// MFASettings configures TOTP and backup-code parameters.
type MFASettings struct {
	Issuer          string `mapstructure:"issuer"`
	BackupCodeCount int    `mapstructure:"backup_code_count"`
	TOTPDigits      int    `mapstructure:"totp_digits"`
	TOTPPeriodSec   int    `mapstructure:"totp_period_sec"`
	TOTPSkew        int    `mapstructure:"totp_skew"`
}

// BcryptSettings configures the password hashing work factor.
type BcryptSettings struct {
	Cost int `mapstructure:"cost"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IDC")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.issuer",
		"jwt.audience",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.refresh_remember_ttl",
		"jwt.email_token_ttl",
		"jwt.reset_token_ttl",
		"session.max_per_user",
		"session.ttl",
		"session.remember_ttl",
		"rate_limit.login_max_attempts",
		"rate_limit.login_window",
		"rate_limit.register_max_attempts",
		"rate_limit.register_window",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.password_reset_window",
		"rate_limit.anonymous_max_requests",
		"rate_limit.anonymous_window",
		"rate_limit.authenticated_max_requests",
		"rate_limit.authenticated_window",
		"mfa.issuer",
		"mfa.backup_code_count",
		"mfa.totp_digits",
		"mfa.totp_period_sec",
		"mfa.totp_skew",
		"bcrypt.cost",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-core")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity_password")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "idc:ratelimit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "identity")

	v.SetDefault("jwt.issuer", "identity-core")
	v.SetDefault("jwt.audience", "readzone")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")
	v.SetDefault("jwt.refresh_remember_ttl", "720h")
	v.SetDefault("jwt.email_token_ttl", "24h")
	v.SetDefault("jwt.reset_token_ttl", "1h")

	v.SetDefault("session.max_per_user", 10)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.remember_ttl", "720h")

	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.login_window", "5m")
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.register_window", "1h")
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.password_reset_window", "1h")
	v.SetDefault("rate_limit.anonymous_max_requests", 100)
	v.SetDefault("rate_limit.anonymous_window", "1m")
	v.SetDefault("rate_limit.authenticated_max_requests", 1000)
	v.SetDefault("rate_limit.authenticated_window", "1m")

	v.SetDefault("mfa.issuer", "ReadZone")
	v.SetDefault("mfa.backup_code_count", 10)
	v.SetDefault("mfa.totp_digits", 6)
	v.SetDefault("mfa.totp_period_sec", 30)
	v.SetDefault("mfa.totp_skew", 1)

	v.SetDefault("bcrypt.cost", 12)

}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IDC_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
