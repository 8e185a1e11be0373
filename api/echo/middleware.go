package echo

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	apierrors "github.com/centsible/centsible/errors"
	"github.com/centsible/centsible/internal/metrics"
	"github.com/centsible/centsible/internal/ratelimit"
)

const userIDContextKey = "authUserID"

// RequireAccessToken validates the bearer access token and stores the
// authenticated user ID on the request context. Pure validation boundary:
// any failure is a 401, nothing else leaks.
func (a *AuthAPI) RequireAccessToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, apierrors.NewUnauthenticated("missing bearer token"))
		}
		userID, ok := a.auth.VerifyAccessToken(token)
		if !ok {
			return c.JSON(http.StatusUnauthorized, apierrors.NewUnauthenticated("invalid or expired access token"))
		}
		c.Set(userIDContextKey, userID)
		return next(c)
	}
}

// RateLimit enforces the per-address sliding window for one scope.
func (a *AuthAPI) RateLimit(scope ratelimit.Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := a.limiter.Allow(c.Request().Context(), scope, c.RealIP())
			if !decision.Allowed {
				metrics.RateLimitedTotal.Inc()
				retryAfter := int(decision.RetryAfter.Seconds())
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return c.JSON(http.StatusTooManyRequests, apierrors.NewRateLimited(retryAfter))
			}
			return next(c)
		}
	}
}

// LockoutCheck rejects login attempts from a locked-out address. It runs
// before the rate limiter so a locked address is turned away cheaply and
// does not consume window budget.
func (a *AuthAPI) LockoutCheck(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		decision := a.lockout.Check(c.Request().Context(), c.RealIP())
		if !decision.Allowed {
			metrics.LockoutTotal.Inc()
			retryAfter := int(decision.RetryAfter.Seconds())
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return c.JSON(http.StatusTooManyRequests, apierrors.NewRateLimited(retryAfter))
		}
		return next(c)
	}
}

// UserIDFromContext returns the user ID set by RequireAccessToken, or the
// empty string when the request is unauthenticated.
func UserIDFromContext(c echo.Context) string {
	if v, ok := c.Get(userIDContextKey).(string); ok {
		return v
	}
	return ""
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
