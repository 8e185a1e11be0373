package domain

import "time"

// Session represents one issued refresh-token lineage. Sessions are never
// hard-deleted: revocation sets RevokedAt and expiry invalidates implicitly,
// so the collection doubles as an audit trail.
type Session struct {
	ID               string     `bson:"_id,omitempty"`
	UserID           string     `bson:"user_id"`
	RefreshTokenHash string     `bson:"refresh_token_hash"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
	ExpiresAt        time.Time  `bson:"expires_at"`
	RevokedAt        *time.Time `bson:"revoked_at,omitempty"`
}

// Active reports whether the session can still be exchanged: not revoked and
// not past its expiry.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
