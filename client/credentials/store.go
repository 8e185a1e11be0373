// Package credentials persists the client's credential pair across two
// heterogeneous local stores with different durability and eviction
// characteristics, reconciling divergence on read. On a mobile-hostile
// runtime either store can be silently wiped by the OS; redundancy is what
// keeps the pair alive.
package credentials

import "errors"

// Well-known keys for the credential pair. Everything else stored through
// the dual store is considered non-essential and may be pruned under quota
// pressure.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

var (
	// ErrNotFound is returned when a key is absent from a store.
	ErrNotFound = errors.New("credential not found")
	// ErrQuotaExceeded is returned when a store cannot accept the write for
	// capacity reasons. The dual store reacts by pruning non-essential keys
	// and retrying once.
	ErrQuotaExceeded = errors.New("store quota exceeded")
)

// Store is one local key-value credential store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	// Keys lists the stored keys, used for quota pruning.
	Keys() ([]string, error)
	// Ping reports whether the store is currently reachable.
	Ping() error
}
