package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// Context keys set by the Auth middleware.
const (
	CtxUser   = "user"
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// ctxUser returns the user injected by the Auth middleware. Its absence means
// the route was mounted without authentication, which is answered as 401.
func ctxUser(c echo.Context) (*domain.User, error) {
	u, _ := c.Get(CtxUser).(*domain.User)
	if u == nil || u.ID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return u, nil
}
