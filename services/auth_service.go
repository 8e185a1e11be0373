package services

import (
	"context"
	"errors"
	"time"

	"github.com/centsible/centsible/domain"
	"github.com/centsible/centsible/internal/audit"
	"github.com/centsible/centsible/internal/auth"
	"github.com/centsible/centsible/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidCredentials is returned on any login failure. It never
	// distinguishes "user not found" from "wrong password"; that split
	// exists only in the audit trail.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidRefreshToken is returned for any rejected refresh exchange:
	// unknown token, revoked session or expired session, all alike.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// RequestMeta carries the client attributes recorded with audit events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// AuthResult is the outcome of signup, login and refresh: the owning user
// plus a fresh credential pair.
type AuthResult struct {
	User             *domain.User
	AccessToken      string
	RefreshToken     string
	SessionExpiresAt time.Time
}

// AuthService orchestrates credential issuance, rotation and revocation.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	tokens   *TokenService
	hasher   PasswordHasher
	auditor  *audit.Emitter

	// keepaliveExtendThreshold: a keepalive only extends the session when
	// its remaining life drops below this.
	keepaliveExtendThreshold time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	tokens *TokenService,
	hasher PasswordHasher,
	auditor *audit.Emitter,
	keepaliveExtendThreshold time.Duration,
) *AuthService {
	return &AuthService{
		users:                    users,
		sessions:                 sessions,
		tokens:                   tokens,
		hasher:                   hasher,
		auditor:                  auditor,
		keepaliveExtendThreshold: keepaliveExtendThreshold,
	}
}

// Signup creates an account and its first session.
func (s *AuthService) Signup(ctx context.Context, email, password string, meta RequestMeta) (*AuthResult, error) {
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		log.Error().Err(err).Msg("Signup: failed to hash password")
		return nil, err
	}

	user := &domain.User{Email: email, PasswordHash: passwordHash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.auditor.Log(ctx, domain.AuditUserUnknown, domain.AuditActionSignupFailed, "user", "",
			map[string]any{"email": email, "reason": err.Error()}, meta.IPAddress, meta.UserAgent)
		return nil, err
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		s.auditor.Log(ctx, user.ID, domain.AuditActionSignupFailed, "user", user.ID,
			map[string]any{"reason": "session issuance failed"}, meta.IPAddress, meta.UserAgent)
		return nil, err
	}

	metrics.SignupTotal.Inc()
	s.auditor.Log(ctx, user.ID, domain.AuditActionSignup, "user", user.ID, nil,
		meta.IPAddress, meta.UserAgent)
	return result, nil
}

// Login verifies credentials and creates a new session. Both "no such user"
// and "wrong password" surface as ErrInvalidCredentials; the audit details
// keep the distinction for forensics and never include the password.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			log.Error().Err(err).Msg("Login: user lookup failed")
			return nil, err
		}
		metrics.LoginFailureTotal.Inc()
		s.auditor.Log(ctx, domain.AuditUserUnknown, domain.AuditActionLoginFailed, "user", "",
			map[string]any{"email": email, "reason": "user not found"}, meta.IPAddress, meta.UserAgent)
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		metrics.LoginFailureTotal.Inc()
		s.auditor.Log(ctx, user.ID, domain.AuditActionLoginFailed, "user", user.ID,
			map[string]any{"reason": "incorrect password"}, meta.IPAddress, meta.UserAgent)
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	metrics.LoginSuccessTotal.Inc()
	s.auditor.Log(ctx, user.ID, domain.AuditActionLogin, "user", user.ID, nil,
		meta.IPAddress, meta.UserAgent)
	return result, nil
}

// Refresh exchanges a refresh token for a rotated credential pair. The
// presented token is permanently invalid afterwards; only one of several
// racing exchanges of the same token can win.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*AuthResult, error) {
	oldHash := auth.HashRefreshToken(refreshToken)

	session, err := s.sessions.GetSessionByTokenHash(ctx, oldHash)
	if err != nil {
		metrics.TokenRefreshFailTotal.Inc()
		switch {
		case errors.Is(err, domain.ErrSessionRevoked):
			// An already-revoked token presented again is the reuse signal
			// for theft. Logged distinctly; not auto-remediated.
			metrics.TokenReuseTotal.Inc()
			log.Warn().Str("userID", session.UserID).Msg("Refresh: revoked token presented again (possible theft)")
			s.auditor.Log(ctx, session.UserID, domain.AuditActionTokenReuseDetected, "session", session.ID,
				map[string]any{"reason": "revoked token presented"}, meta.IPAddress, meta.UserAgent)
			return nil, ErrInvalidRefreshToken
		case errors.Is(err, domain.ErrSessionExpired):
			s.auditor.Log(ctx, session.UserID, domain.AuditActionTokenRefreshFailed, "session", session.ID,
				map[string]any{"reason": "session expired"}, meta.IPAddress, meta.UserAgent)
			return nil, ErrInvalidRefreshToken
		case errors.Is(err, domain.ErrSessionNotFound):
			s.auditor.Log(ctx, domain.AuditUserUnknown, domain.AuditActionTokenRefreshFailed, "session", "",
				map[string]any{"reason": "unknown token"}, meta.IPAddress, meta.UserAgent)
			return nil, ErrInvalidRefreshToken
		default:
			log.Error().Err(err).Msg("Refresh: session lookup failed")
			return nil, err
		}
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		log.Error().Err(err).Str("userID", session.UserID).Msg("Refresh: user lookup failed")
		return nil, err
	}

	newRefreshToken, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	replacement := &domain.Session{
		UserID:           user.ID,
		RefreshTokenHash: auth.HashRefreshToken(newRefreshToken),
		ExpiresAt:        s.tokens.SessionExpiry(),
	}

	if err := s.sessions.RotateSession(ctx, oldHash, replacement); err != nil {
		metrics.TokenRefreshFailTotal.Inc()
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Lost a rotation race: a concurrent refresh already consumed
			// the token.
			s.auditor.Log(ctx, user.ID, domain.AuditActionTokenRefreshFailed, "session", session.ID,
				map[string]any{"reason": "rotation race lost"}, meta.IPAddress, meta.UserAgent)
			return nil, ErrInvalidRefreshToken
		}
		log.Error().Err(err).Msg("Refresh: session rotation failed")
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	metrics.TokenRefreshTotal.Inc()
	s.auditor.Log(ctx, user.ID, domain.AuditActionTokenRefresh, "session", replacement.ID, nil,
		meta.IPAddress, meta.UserAgent)
	return &AuthResult{
		User:             user,
		AccessToken:      accessToken,
		RefreshToken:     newRefreshToken,
		SessionExpiresAt: replacement.ExpiresAt,
	}, nil
}

// Logout revokes the session tied to the presented refresh token, when one
// is presented. The event is always audited under userID (from the access
// token); a missing or already-dead session is not an error.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string, meta RequestMeta) {
	if refreshToken != "" {
		hash := auth.HashRefreshToken(refreshToken)
		if err := s.sessions.RevokeSession(ctx, hash); err != nil {
			if !errors.Is(err, domain.ErrSessionNotFound) {
				log.Error().Err(err).Msg("Logout: session revocation failed")
			}
		} else {
			metrics.OpenSessionsGauge.Dec()
		}
	}
	s.auditor.Log(ctx, userID, domain.AuditActionLogout, "user", userID, nil,
		meta.IPAddress, meta.UserAgent)
}

// Keepalive marks the session active server-side. When the session's
// remaining life is below the extension threshold the expiry is pushed out
// to a full session lifetime; otherwise only updated_at is bumped.
func (s *AuthService) Keepalive(ctx context.Context, userID, refreshToken string, meta RequestMeta) (extended bool, err error) {
	if refreshToken == "" {
		return false, nil
	}
	hash := auth.HashRefreshToken(refreshToken)

	session, err := s.sessions.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) ||
			errors.Is(err, domain.ErrSessionRevoked) ||
			errors.Is(err, domain.ErrSessionExpired) {
			return false, nil
		}
		return false, err
	}

	var newExpiry *time.Time
	if time.Until(session.ExpiresAt) < s.keepaliveExtendThreshold {
		e := s.tokens.SessionExpiry()
		newExpiry = &e
	}
	if err := s.sessions.TouchSession(ctx, hash, newExpiry); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	s.auditor.Log(ctx, userID, domain.AuditActionSessionKeepalive, "session", session.ID,
		map[string]any{"extended": newExpiry != nil}, meta.IPAddress, meta.UserAgent)
	return newExpiry != nil, nil
}

// VerifyAccessToken checks an access token without touching the session
// store. Stateless: a token stays valid until its own expiry even after
// logout.
func (s *AuthService) VerifyAccessToken(token string) (string, bool) {
	return s.tokens.VerifyAccessToken(token)
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	refreshToken, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		UserID:           user.ID,
		RefreshTokenHash: auth.HashRefreshToken(refreshToken),
		ExpiresAt:        s.tokens.SessionExpiry(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		log.Error().Err(err).Str("userID", user.ID).Msg("Failed to store session")
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	metrics.OpenSessionsGauge.Inc()
	return &AuthResult{
		User:             user,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}
