package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/scoutnetworking/scout-auth/internal/api"
	"github.com/scoutnetworking/scout-auth/internal/api/handler"
	"github.com/scoutnetworking/scout-auth/internal/api/middleware"
	"github.com/scoutnetworking/scout-auth/internal/core/domain"
	"github.com/scoutnetworking/scout-auth/internal/core/ports"
	"github.com/scoutnetworking/scout-auth/internal/core/service"
	"github.com/scoutnetworking/scout-auth/internal/infrastructure/config"
	"github.com/scoutnetworking/scout-auth/internal/infrastructure/db/memory"
	mongostore "github.com/scoutnetworking/scout-auth/internal/infrastructure/db/mongo"
	"github.com/scoutnetworking/scout-auth/internal/infrastructure/db/postgres"
	redisstore "github.com/scoutnetworking/scout-auth/internal/infrastructure/db/redis"
	"github.com/scoutnetworking/scout-auth/internal/infrastructure/queue"
	"github.com/scoutnetworking/scout-auth/pkg/logger"
)

const (
	serviceName     = "scout-auth"
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
		Env:     cfg.Env,
	})

	if err := run(ctx, cfg); err != nil {
		log := logger.Get()
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			AttachStacktrace: true,
		}); err != nil {
			log.Error().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	checks := make(map[string]handler.Pinger)

	store, closeStore, err := openCredentialStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	checks["credential_store"] = store

	windows, closeWindows, err := openWindowStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeWindows()

	pool := queue.NewHashPool(cfg.Security.HashWorkers, log)
	pool.Start(ctx)

	hasher, err := service.NewBcryptHasher(cfg.Security.BcryptRounds, pool)
	if err != nil {
		return err
	}
	tokens, err := service.NewTokenIssuer(service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}
	limiter, err := service.NewRateLimiter(windows, service.RateLimitConfig{
		Window:         cfg.RateLimit.LoginWindow,
		Max:            cfg.RateLimit.LoginMax,
		SkipSuccessful: cfg.RateLimit.LoginSkipSuccessful,
	}, log)
	if err != nil {
		return err
	}

	trustedProxies, err := cfg.TrustedProxyNets()
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		store,
		hasher,
		tokens,
		limiter,
		domain.NewLockoutPolicy(cfg.Security.MaxLoginAttempts, cfg.Security.LockoutMinutes),
		cfg.Security.MaxRefreshTokens,
		log,
	)

	e := api.NewRouter(api.Deps{
		Auth:       authService,
		Log:        log,
		Checks:     checks,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
		GeneralRateLimit: middleware.GeneralRateLimit{
			Max:    cfg.RateLimit.GeneralMax,
			Window: cfg.RateLimit.GeneralWindow,
		},
		TrustedProxies: trustedProxies,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("credential_store", cfg.CredentialStore).
			Str("rate_limit_backend", cfg.RateLimit.Backend).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

type credentialStore interface {
	ports.CredentialStore
	handler.Pinger
}

func openCredentialStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (credentialStore, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.CredentialStore {
	case "mongo":
		client, db, err := mongostore.Connect(connectCtx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  serviceName,
			Timeout:  connectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewCredentialStore(db)
		if err := store.EnsureIndexes(connectCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil

	case "postgres":
		pool, err := postgres.Connect(connectCtx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewCredentialStore(pool), pool.Close, nil

	default:
		log.Warn().Msg("using in-memory credential store; users are lost on restart")
		return memory.NewCredentialStore(), func() {}, nil
	}
}

func openWindowStore(ctx context.Context, cfg *config.Config, checks map[string]handler.Pinger) (ports.WindowStore, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		return memory.NewWindowStore(0), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	rdb, err := redisstore.Connect(connectCtx, redisstore.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	store := redisstore.NewWindowStore(rdb)
	checks["redis"] = store
	return store, func() { _ = rdb.Close() }, nil
}
