package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const minBcryptRounds = 10

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	SentryDSN string `env:"SENTRY_DSN"`

	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	// Empty means the peer address is the client address.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CredentialStore selects the user store backend: memory, mongo or postgres.
	CredentialStore string `env:"CREDENTIAL_STORE, default=memory"`

	JWT       JWTConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig

	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
}

type JWTConfig struct {
	AccessSecret  string        `env:"JWT_ACCESS_SECRET,      required"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET,     required"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_EXPIRES_IN,  default=15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_EXPIRES_IN, default=168h"`
}

type SecurityConfig struct {
	BcryptRounds     int `env:"BCRYPT_ROUNDS,      default=12"`
	MaxLoginAttempts int `env:"MAX_LOGIN_ATTEMPTS, default=5"`
	// LockoutMinutes is how long an account stays locked after MaxLoginAttempts failures.
	LockoutMinutes   int `env:"LOCKOUT_TIME,       default=15"`
	MaxRefreshTokens int `env:"MAX_REFRESH_TOKENS, default=10"`
	// HashWorkers sizes the bcrypt worker pool; 0 means one per CPU.
	HashWorkers int `env:"HASH_WORKERS, default=0"`
}

type RateLimitConfig struct {
	LoginWindow         time.Duration `env:"LOGIN_RATE_LIMIT_WINDOW,          default=15m"`
	LoginMax            int           `env:"LOGIN_RATE_LIMIT_MAX,             default=50"`
	LoginSkipSuccessful bool          `env:"LOGIN_RATE_LIMIT_SKIP_SUCCESSFUL, default=true"`
	// Backend holds the login counters: memory or redis.
	Backend string `env:"RATE_LIMIT_BACKEND, default=memory"`

	GeneralMax    int           `env:"GENERAL_RATE_LIMIT_MAX,    default=100"`
	GeneralWindow time.Duration `env:"GENERAL_RATE_LIMIT_WINDOW, default=15m"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=scout_auth"`
}

type PostgresConfig struct {
	URL string `env:"DATABASE_URL, default=postgres://localhost:5432/scout_auth"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// TrustedProxyNets parses TrustedProxies.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, cidr := range c.TrustedProxies {
		_, n, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// Validate rejects settings the service must not start with.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_EXPIRES_IN must be positive"))
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		errs = append(errs, errors.New("JWT_REFRESH_EXPIRES_IN must exceed JWT_ACCESS_EXPIRES_IN"))
	}
	if c.Security.BcryptRounds < minBcryptRounds {
		errs = append(errs, fmt.Errorf("BCRYPT_ROUNDS must be at least %d", minBcryptRounds))
	}
	if c.Security.MaxLoginAttempts <= 0 || c.Security.LockoutMinutes <= 0 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS and LOCKOUT_TIME must be positive"))
	}
	if c.Security.MaxRefreshTokens <= 0 {
		errs = append(errs, errors.New("MAX_REFRESH_TOKENS must be positive"))
	}
	if c.RateLimit.LoginWindow <= 0 || c.RateLimit.LoginMax <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_LIMIT_WINDOW and LOGIN_RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimit.GeneralWindow <= 0 || c.RateLimit.GeneralMax <= 0 {
		errs = append(errs, errors.New("GENERAL_RATE_LIMIT_WINDOW and GENERAL_RATE_LIMIT_MAX must be positive"))
	}

	if _, err := c.TrustedProxyNets(); err != nil {
		errs = append(errs, err)
	}

	switch c.CredentialStore {
	case "memory", "mongo", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown CREDENTIAL_STORE %q", c.CredentialStore))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}

	return errors.Join(errs...)
}
