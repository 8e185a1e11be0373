package domain

import "time"

// Audit actions recorded by the auth subsystem.
const (
	AuditActionSignup             = "SIGNUP"
	AuditActionSignupFailed       = "SIGNUP_FAILED"
	AuditActionLogin              = "LOGIN"
	AuditActionLoginFailed        = "LOGIN_FAILED"
	AuditActionTokenRefresh       = "TOKEN_REFRESH"
	AuditActionTokenRefreshFailed = "TOKEN_REFRESH_FAILED"
	AuditActionTokenReuseDetected = "TOKEN_REUSE_DETECTED"
	AuditActionLogout             = "LOGOUT"
	AuditActionSessionKeepalive   = "SESSION_KEEPALIVE"
)

// AuditUserUnknown is the sentinel user ID for events emitted before a
// request is tied to an account (e.g. a failed login for a missing email).
const AuditUserUnknown = "unknown"

// AuditLogEntry is an append-only record of a security-relevant event.
// Entries are never mutated or deleted by this subsystem.
type AuditLogEntry struct {
	ID           string         `bson:"_id,omitempty"`
	UserID       string         `bson:"user_id"`
	Action       string         `bson:"action"`
	ResourceType string         `bson:"resource_type,omitempty"`
	ResourceID   string         `bson:"resource_id,omitempty"`
	Details      map[string]any `bson:"details,omitempty"`
	IPAddress    string         `bson:"ip_address,omitempty"`
	UserAgent    string         `bson:"user_agent,omitempty"`
	Timestamp    time.Time      `bson:"timestamp"`
}
