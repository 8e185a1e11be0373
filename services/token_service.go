package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenType = "access"

// refreshTokenBytes is the entropy of an opaque refresh token. 32 bytes
// (256 bits) from crypto/rand is what lets the at-rest digest be a fast
// deterministic hash instead of an adaptive one.
const refreshTokenBytes = 32

// TokenService mints and validates the two credential kinds: short-lived
// signed access tokens and long-lived opaque refresh tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	sessionTTL time.Duration
}

// NewTokenService creates a TokenService. The signing secret is process-wide
// configuration; config loading enforces its presence in production.
func NewTokenService(secret, issuer string, accessTTL, sessionTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		sessionTTL: sessionTTL,
	}
}

// IssueAccessToken mints a signed HS256 token for userID with the fixed
// short lifetime.
func (s *TokenService) IssueAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": userID,
		"typ": accessTokenType,
		"jti": uuid.NewString(),
		"iat": jwt.NewNumericDate(now).Unix(),
		"exp": jwt.NewNumericDate(now.Add(s.accessTTL)).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates signature (HS256 only), expiry and token type.
// It is a pure validation boundary: any failure yields ok == false, nothing
// propagates to the caller.
func (s *TokenService) VerifyAccessToken(raw string) (userID string, ok bool) {
	token, err := jwt.Parse(raw,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", false
	}

	claims, isMap := token.Claims.(jwt.MapClaims)
	if !isMap {
		return "", false
	}
	if typ, _ := claims["typ"].(string); typ != accessTokenType {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", false
	}
	return sub, true
}

// IssueRefreshToken mints an opaque URL-safe random token. It carries no
// claims; the server finds its session via the stored digest.
func (s *TokenService) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes for refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SessionExpiry returns the expiry for a new refresh session: now plus the
// long lifetime tuned for installed-app retention.
func (s *TokenService) SessionExpiry() time.Time {
	return time.Now().UTC().Add(s.sessionTTL)
}

// AccessTokenTTL exposes the configured access-token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

// SessionTTL exposes the configured session lifetime.
func (s *TokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}
