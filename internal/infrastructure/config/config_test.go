package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func baseEnv() map[string]string {
	return map[string]string{
		"JWT_ACCESS_SECRET":  "a-secret",
		"JWT_REFRESH_SECRET": "r-secret",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(baseEnv()))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Port != "8080" || cfg.CredentialStore != "memory" || !cfg.IsDevelopment() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 168*time.Hour {
		t.Fatalf("unexpected token ttls %v / %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Security.BcryptRounds != 12 || cfg.Security.MaxLoginAttempts != 5 || cfg.Security.LockoutMinutes != 15 {
		t.Fatalf("unexpected security defaults %+v", cfg.Security)
	}
	if cfg.RateLimit.LoginMax != 50 || cfg.RateLimit.GeneralMax != 100 || !cfg.RateLimit.LoginSkipSuccessful {
		t.Fatalf("unexpected rate limit defaults %+v", cfg.RateLimit)
	}
	if cfg.Mongo.Database != "scout_auth" {
		t.Fatalf("unexpected mongo database %q", cfg.Mongo.Database)
	}
}

func TestLoadFrom_MissingSecret(t *testing.T) {
	env := baseEnv()
	delete(env, "JWT_REFRESH_SECRET")

	if _, err := LoadFrom(context.Background(), envconfig.MapLookuper(env)); err == nil {
		t.Fatalf("expected error for missing refresh secret")
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"same secrets", "JWT_REFRESH_SECRET", "a-secret", "must differ"},
		{"low bcrypt cost", "BCRYPT_ROUNDS", "8", "BCRYPT_ROUNDS"},
		{"bad proxy cidr", "TRUSTED_PROXIES", "10.0.0.0/8,not-a-cidr", "TRUSTED_PROXIES"},
		{"refresh shorter than access", "JWT_REFRESH_EXPIRES_IN", "10m", "JWT_REFRESH_EXPIRES_IN"},
		{"unknown store", "CREDENTIAL_STORE", "sqlite", "CREDENTIAL_STORE"},
		{"unknown limiter backend", "RATE_LIMIT_BACKEND", "memcached", "RATE_LIMIT_BACKEND"},
		{"zero login max", "LOGIN_RATE_LIMIT_MAX", "0", "LOGIN_RATE_LIMIT_MAX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			env[tt.key] = tt.val
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFrom_TrustedProxies(t *testing.T) {
	env := baseEnv()
	env["TRUSTED_PROXIES"] = "10.0.0.0/8, 192.0.2.1/32"

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	nets, err := cfg.TrustedProxyNets()
	if err != nil {
		t.Fatalf("TrustedProxyNets: %v", err)
	}
	if len(nets) != 2 || nets[0].String() != "10.0.0.0/8" || nets[1].String() != "192.0.2.1/32" {
		t.Fatalf("unexpected nets %v", nets)
	}
}
