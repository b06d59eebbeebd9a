package api

import (
	"net"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/scoutnetworking/scout-auth/internal/api/handler"
	"github.com/scoutnetworking/scout-auth/internal/api/middleware"
	"github.com/scoutnetworking/scout-auth/internal/core/domain"
	"github.com/scoutnetworking/scout-auth/internal/core/ports"
)

// Deps carries everything NewRouter wires into the HTTP surface.
type Deps struct {
	Auth   ports.AuthService
	Log    zerolog.Logger
	Checks map[string]handler.Pinger

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	GeneralRateLimit middleware.GeneralRateLimit

	// TrustedProxies are the peers whose X-Forwarded-For is honoured when
	// resolving the client address. Empty trusts no header.
	TrustedProxies []*net.IPNet
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(d.TrustedProxies)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: d.Registerer,
	}))
	e.Use(middleware.RateLimit(d.GeneralRateLimit))

	authHandler := handler.NewAuthHandler(d.Auth)
	authMiddleware := middleware.Auth(d.Auth)

	// --- Auth routes ---
	g := e.Group("/auth")
	g.POST("/register", authHandler.Register)
	g.POST("/login", authHandler.Login)
	g.POST("/refresh", authHandler.Refresh)
	g.POST("/logout", authHandler.Logout, authMiddleware)
	g.GET("/me", authHandler.Me, authMiddleware)
	g.POST("/users/:id/unlock", authHandler.Unlock, authMiddleware, middleware.RBAC(domain.RoleAdmin))

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler(d.Checks)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: d.Gatherer,
	}))

	return e
}

// ipExtractor resolves c.RealIP() for the rate limiters. Without trusted
// proxies the TCP peer is the client; with them, the right-most untrusted
// X-Forwarded-For hop is.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
