package credentials

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// DualStore keeps every credential in two independent stores and reconciles
// them on read. The durable store is authoritative when both hold a value;
// the other store is backfilled whenever one of them has lost or diverged
// from the authoritative copy.
type DualStore struct {
	mu      sync.Mutex
	durable Store // authoritative on conflict
	flat    Store
}

// StoreHealth is a point-in-time reachability report for both stores.
type StoreHealth struct {
	DurableOK bool `json:"durable_ok"`
	FlatOK    bool `json:"flat_ok"`
}

// NewDualStore pairs a durable (authoritative) store with a flat one.
func NewDualStore(durable, flat Store) *DualStore {
	return &DualStore{durable: durable, flat: flat}
}

// Get reads key from both stores and reconciles:
//   - both present: the durable value wins; the flat store is rewritten if
//     it diverged.
//   - durable missing, flat present: the flat value is backfilled into the
//     durable store and returned.
//   - both missing: ErrNotFound.
//
// Backfill failures are logged but never fail the read; a value that exists
// in one store is a value the caller gets.
func (d *DualStore) Get(key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	durableVal, durableErr := d.durable.Get(key)
	flatVal, flatErr := d.flat.Get(key)

	switch {
	case durableErr == nil:
		if flatErr != nil || flatVal != durableVal {
			if err := d.flat.Set(key, durableVal); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to backfill flat credential store")
			}
		}
		return durableVal, nil
	case errors.Is(durableErr, ErrNotFound) && flatErr == nil:
		if err := d.durable.Set(key, flatVal); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to backfill durable credential store")
		}
		return flatVal, nil
	case errors.Is(durableErr, ErrNotFound) && errors.Is(flatErr, ErrNotFound):
		return "", ErrNotFound
	case errors.Is(durableErr, ErrNotFound):
		// Durable store is empty and the flat store failed outright.
		return "", flatErr
	default:
		// Durable store failed outright; fall back to whatever the flat
		// store says, including its ErrNotFound.
		if flatErr == nil {
			return flatVal, nil
		}
		return "", durableErr
	}
}

// Set writes key to both stores. A quota failure triggers one prune of
// non-essential keys followed by a single retry. The write succeeds if at
// least one store accepted it; redundancy is best-effort, presence is not.
func (d *DualStore) Set(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	durableErr := d.setWithPrune(d.durable, key, value)
	flatErr := d.setWithPrune(d.flat, key, value)

	if durableErr != nil && flatErr != nil {
		return durableErr
	}
	if durableErr != nil {
		log.Warn().Err(durableErr).Str("key", key).Msg("durable credential store write failed, flat copy only")
	}
	if flatErr != nil {
		log.Warn().Err(flatErr).Str("key", key).Msg("flat credential store write failed, durable copy only")
	}
	return nil
}

// Delete removes key from both stores. Both deletions are attempted even if
// the first fails; a half-deleted credential would resurrect on the next
// reconciling read.
func (d *DualStore) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	durableErr := d.durable.Delete(key)
	flatErr := d.flat.Delete(key)
	if durableErr != nil {
		return durableErr
	}
	return flatErr
}

// Keys returns the union of both stores' keys.
func (d *DualStore) Keys() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := map[string]bool{}
	var keys []string
	for _, s := range []Store{d.durable, d.flat} {
		ks, err := s.Keys()
		if err != nil {
			continue
		}
		for _, k := range ks {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// Ping reports healthy if at least one store is reachable.
func (d *DualStore) Ping() error {
	h := d.Health()
	if h.DurableOK || h.FlatOK {
		return nil
	}
	return errors.New("both credential stores unreachable")
}

// Health pings both stores.
func (d *DualStore) Health() StoreHealth {
	return StoreHealth{
		DurableOK: d.durable.Ping() == nil,
		FlatOK:    d.flat.Ping() == nil,
	}
}

// setWithPrune writes to one store, pruning non-essential keys and retrying
// once if the store reports a quota failure.
func (d *DualStore) setWithPrune(s Store, key, value string) error {
	err := s.Set(key, value)
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	pruned := d.pruneNonEssential(s)
	log.Warn().Str("key", key).Int("pruned", pruned).Msg("credential store quota exceeded, pruned non-essential keys")
	return s.Set(key, value)
}

// pruneNonEssential deletes everything except the credential pair from s and
// returns how many keys were removed.
func (d *DualStore) pruneNonEssential(s Store) int {
	keys, err := s.Keys()
	if err != nil {
		return 0
	}
	pruned := 0
	for _, k := range keys {
		if k == KeyAccessToken || k == KeyRefreshToken {
			continue
		}
		if err := s.Delete(k); err == nil {
			pruned++
		}
	}
	return pruned
}

var _ Store = (*DualStore)(nil)
