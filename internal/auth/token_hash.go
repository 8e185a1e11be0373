package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken derives the at-rest digest of a refresh token. Refresh
// tokens carry 256 bits of entropy from crypto/rand, so a fast deterministic
// digest is sufficient here and keeps session lookup a unique-index equality
// match. An adaptive hash would break indexed lookup.
func HashRefreshToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	hashedBytes := hasher.Sum(nil)
	return hex.EncodeToString(hashedBytes)
}
