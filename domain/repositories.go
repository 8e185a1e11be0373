package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when creating a user with an email that
	// already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrSessionNotFound is returned when no session matches the presented
	// refresh-token hash, or when a rotation race was lost.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned when the session exists but has been
	// revoked. Callers must present it to clients identically to
	// ErrSessionNotFound; the distinction exists for reuse-detection audit.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired is returned when the session exists but its expiry
	// has passed. Externally indistinguishable from ErrSessionNotFound.
	ErrSessionExpired = errors.New("session expired")
)

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// SessionRepository persists refresh-token sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	// GetSessionByTokenHash looks up a session by its refresh-token hash.
	// Returns ErrSessionNotFound on a miss, ErrSessionRevoked for a revoked
	// record and ErrSessionExpired for an expired one. For the latter two
	// the record is returned alongside the error so callers can attribute
	// the event to its user for auditing.
	GetSessionByTokenHash(ctx context.Context, hash string) (*Session, error)
	// RotateSession atomically revokes the active session identified by
	// oldHash and creates replacement in its place. When the session is no
	// longer active (a concurrent rotation won, or it was revoked or
	// expired), no write happens and the lookup error is returned.
	RotateSession(ctx context.Context, oldHash string, replacement *Session) error
	// RevokeSession marks the session identified by hash as revoked.
	RevokeSession(ctx context.Context, hash string) error
	// TouchSession bumps UpdatedAt and, when newExpiry is non-nil, extends
	// ExpiresAt for the active session with the given hash.
	TouchSession(ctx context.Context, hash string, newExpiry *time.Time) error
}

// AuditLogRepository appends audit entries. There are deliberately no update
// or delete operations.
type AuditLogRepository interface {
	AppendEntry(ctx context.Context, entry *AuditLogEntry) error
}
