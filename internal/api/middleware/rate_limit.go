package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// GeneralRateLimit configures the per-IP limiter applied to every route.
type GeneralRateLimit struct {
	Max    int
	Window time.Duration
}

// RateLimit allows each client address Max requests per Window, refilled
// continuously. Probes and the metrics endpoint are exempt.
func RateLimit(cfg GeneralRateLimit) echo.MiddlewareFunc {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	perRequest := cfg.Window / time.Duration(cfg.Max)

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/health", "/health/ready", "/metrics":
				return true
			}
			return false
		},
		Store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Every(perRequest),
			Burst:     cfg.Max,
			ExpiresIn: cfg.Window,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return &domain.RateLimitedError{RetryAfter: perRequest}
		},
	})
}
