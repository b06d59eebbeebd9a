package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/scoutnetworking/scout-auth/internal/api/handler"
	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// Authenticator resolves a bearer access token to a live user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// Auth requires a valid bearer access token and injects the user into context.
// Token failures reach the error handler, which answers a uniform 401; a
// locked account is answered with 423.
func Auth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			user, err := auth.Authenticate(c.Request().Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				return err
			}

			c.Set(handler.CtxUser, user)
			c.Set(handler.CtxUserID, user.ID)
			c.Set(handler.CtxRole, user.Role)

			return next(c)
		}
	}
}
