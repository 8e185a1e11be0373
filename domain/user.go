package domain

import "time"

// User represents an account in the system. The ID is immutable once created;
// email is stored normalized (lower-case, trimmed) and is unique.
type User struct {
	ID           string    `bson:"_id,omitempty"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}
