package echo

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/centsible/centsible/domain"
	apierrors "github.com/centsible/centsible/errors"
	"github.com/centsible/centsible/internal/ratelimit"
	"github.com/centsible/centsible/services"
)

const refreshCookieName = "refreshToken"

// AuthAPI exposes the session endpoint group over HTTP.
type AuthAPI struct {
	auth    *services.AuthService
	limiter *ratelimit.Limiter
	lockout *ratelimit.LockoutGuard

	// secureCookies toggles the Secure flag on the refresh cookie;
	// enabled in production.
	secureCookies bool
	sessionTTL    time.Duration
}

// NewAuthAPI initializes the auth endpoint group.
func NewAuthAPI(
	auth *services.AuthService,
	limiter *ratelimit.Limiter,
	lockout *ratelimit.LockoutGuard,
	secureCookies bool,
	sessionTTL time.Duration,
) *AuthAPI {
	return &AuthAPI{
		auth:          auth,
		limiter:       limiter,
		lockout:       lockout,
		secureCookies: secureCookies,
		sessionTTL:    sessionTTL,
	}
}

// RegisterRoutes registers the session endpoint group.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/signup", a.SignupHandler, a.RateLimit(ratelimit.ScopeSignup))
	e.POST("/auth/login", a.LoginHandler, a.LockoutCheck, a.RateLimit(ratelimit.ScopeLogin))
	e.POST("/auth/refresh", a.RefreshHandler, a.RateLimit(ratelimit.ScopeRefresh))
	e.POST("/auth/logout", a.LogoutHandler, a.RequireAccessToken)
	e.GET("/auth/verify", a.VerifyHandler)
	e.POST("/auth/keepalive", a.KeepaliveHandler, a.RequireAccessToken, a.RateLimit(ratelimit.ScopeKeepalive))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	User             userSummary `json:"user"`
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	SessionExpiresAt time.Time   `json:"sessionExpiresAt"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"userId,omitempty"`
}

type keepaliveResponse struct {
	Extended bool `json:"extended"`
}

// SignupHandler creates an account and returns the first credential pair.
func (a *AuthAPI) SignupHandler(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierrors.NewValidationError("malformed request body"))
	}
	if msg, ok := validateCredentials(req.Email, req.Password); !ok {
		return c.JSON(http.StatusBadRequest, apierrors.NewValidationError(msg))
	}

	result, err := a.auth.Signup(c.Request().Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		if err == domain.ErrEmailTaken {
			return c.JSON(http.StatusBadRequest, apierrors.NewConflict("email already registered"))
		}
		log.Error().Err(err).Msg("Signup failed")
		return c.JSON(http.StatusInternalServerError, apierrors.NewServerError())
	}

	a.setRefreshCookie(c, result.RefreshToken)
	return c.JSON(http.StatusCreated, toAuthResponse(result))
}

// LoginHandler verifies credentials and opens a new session. Any failure
// yields the same generic message to resist account enumeration.
func (a *AuthAPI) LoginHandler(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierrors.NewValidationError("malformed request body"))
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, apierrors.NewValidationError("email and password are required"))
	}

	addr := c.RealIP()
	result, err := a.auth.Login(c.Request().Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		if err == services.ErrInvalidCredentials {
			a.lockout.RecordFailure(c.Request().Context(), addr)
			return c.JSON(http.StatusUnauthorized, apierrors.NewUnauthenticated("invalid email or password"))
		}
		log.Error().Err(err).Msg("Login failed")
		return c.JSON(http.StatusInternalServerError, apierrors.NewServerError())
	}

	a.lockout.Clear(c.Request().Context(), addr)
	a.setRefreshCookie(c, result.RefreshToken)
	return c.JSON(http.StatusOK, toAuthResponse(result))
}

// RefreshHandler rotates the presented refresh token. The token is read
// from the body first, cookie as fallback: the installed-app runtime cannot
// rely on its cookie jar surviving.
func (a *AuthAPI) RefreshHandler(c echo.Context) error {
	token := a.refreshTokenFrom(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, apierrors.NewUnauthenticated("missing refresh token"))
	}

	result, err := a.auth.Refresh(c.Request().Context(), token, requestMeta(c))
	if err != nil {
		if err == services.ErrInvalidRefreshToken {
			return c.JSON(http.StatusUnauthorized, apierrors.NewUnauthenticated("invalid or expired refresh token"))
		}
		log.Error().Err(err).Msg("Refresh failed")
		return c.JSON(http.StatusInternalServerError, apierrors.NewServerError())
	}

	a.setRefreshCookie(c, result.RefreshToken)
	return c.JSON(http.StatusOK, toAuthResponse(result))
}

// LogoutHandler revokes the caller's session. Always 204: logging out an
// already-dead session is not an error worth surfacing.
func (a *AuthAPI) LogoutHandler(c echo.Context) error {
	userID := UserIDFromContext(c)
	a.auth.Logout(c.Request().Context(), userID, a.refreshTokenFrom(c), requestMeta(c))
	a.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// VerifyHandler is the stateless liveness check: signature and expiry only,
// no session store lookup. Invalid tokens get a 200 with valid=false so the
// client can use it as a cheap probe.
func (a *AuthAPI) VerifyHandler(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return c.JSON(http.StatusOK, verifyResponse{Valid: false})
	}
	userID, ok := a.auth.VerifyAccessToken(token)
	if !ok {
		return c.JSON(http.StatusOK, verifyResponse{Valid: false})
	}
	return c.JSON(http.StatusOK, verifyResponse{Valid: true, UserID: userID})
}

// KeepaliveHandler marks the session active and extends its expiry when the
// remaining life is under the configured threshold.
func (a *AuthAPI) KeepaliveHandler(c echo.Context) error {
	userID := UserIDFromContext(c)

	extended, err := a.auth.Keepalive(c.Request().Context(), userID, a.refreshTokenFrom(c), requestMeta(c))
	if err != nil {
		log.Error().Err(err).Msg("Keepalive failed")
		return c.JSON(http.StatusInternalServerError, apierrors.NewServerError())
	}
	return c.JSON(http.StatusOK, keepaliveResponse{Extended: extended})
}

// refreshTokenFrom reads the refresh token from the JSON body, falling back
// to the cookie.
func (a *AuthAPI) refreshTokenFrom(c echo.Context) string {
	var req refreshRequest
	if err := c.Bind(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// setRefreshCookie delivers the refresh token via an httpOnly cookie in
// addition to the response body. SameSite is Lax rather than Strict so the
// cookie survives cross-context navigation in the installed-app runtime.
func (a *AuthAPI) setRefreshCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(a.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthAPI) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func toAuthResponse(result *services.AuthResult) authResponse {
	return authResponse{
		User:             userSummary{ID: result.User.ID, Email: result.User.Email},
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		SessionExpiresAt: result.SessionExpiresAt,
	}
}

func requestMeta(c echo.Context) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func validateCredentials(email, password string) (string, bool) {
	if email == "" || !strings.Contains(email, "@") {
		return "a valid email is required", false
	}
	if len(password) < 8 {
		return "password must be at least 8 characters", false
	}
	if len(password) > 72 {
		// bcrypt input cap
		return "password must be at most 72 characters", false
	}
	return "", true
}
