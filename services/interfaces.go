package services

// PasswordHasher abstracts the one-way hashing of user passwords.
// Implementations must salt per call and verify in constant time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}
