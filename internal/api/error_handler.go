package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	// RetryAfter is set on 423 and 429, in whole seconds.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs and reports unexpected errors without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := resolveError(err, log, c)
		if resp.RetryAfter > 0 {
			c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(resp.RetryAfter))
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var locked *domain.LockedError
	if errors.As(err, &locked) {
		return http.StatusLocked, errorResponse{
			Error:      "account temporarily locked",
			RetryAfter: retrySeconds(locked.Remaining),
		}
	}
	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		return http.StatusTooManyRequests, errorResponse{
			Error:      "too many requests",
			RetryAfter: retrySeconds(limited.RetryAfter),
		}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "invalid credentials"}
	case domain.IsTokenError(err):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "access forbidden"}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: "user not found"}
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, errorResponse{Error: "user already exists"}
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrHashingFailure):
		report(err, log, c, "dependency failure")
		return http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"}
	}

	// Unexpected error: log the real cause, return a generic message.
	report(err, log, c, "unhandled error")
	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func report(err error, log zerolog.Logger, c echo.Context, msg string) {
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg(msg)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("method", c.Request().Method)
		scope.SetTag("route", c.Path())
		scope.SetRequest(c.Request())
		sentry.CaptureException(err)
	})
}

// retrySeconds rounds up so a client never retries early; the minimum is one second.
func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
