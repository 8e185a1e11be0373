package mongodb

const (
	UsersCollection    = "users"     // For user accounts
	SessionsCollection = "sessions"  // For refresh-token sessions
	AuditLogCollection = "audit_log" // Append-only security event trail
)
