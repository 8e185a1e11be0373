package credentials

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with switchable failure modes.
type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	failSet  error
	failAll  error
	setCalls int
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return "", m.failAll
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failAll != nil {
		return m.failAll
	}
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	delete(m.data, key)
	return nil
}

func (m *memStore) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStore) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failAll
}

func TestDualStoreSetWritesBoth(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	ds := NewDualStore(durable, flat)

	require.NoError(t, ds.Set(KeyRefreshToken, "rt-1"))

	assert.Equal(t, "rt-1", durable.data[KeyRefreshToken])
	assert.Equal(t, "rt-1", flat.data[KeyRefreshToken])
}

func TestDualStoreGetPrefersDurableAndRepairsFlat(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	durable.data[KeyAccessToken] = "fresh"
	flat.data[KeyAccessToken] = "stale"
	ds := NewDualStore(durable, flat)

	v, err := ds.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, "fresh", flat.data[KeyAccessToken], "flat store should be rewritten with the authoritative value")
}

func TestDualStoreGetBackfillsDurableFromFlat(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	flat.data[KeyRefreshToken] = "survivor"
	ds := NewDualStore(durable, flat)

	v, err := ds.Get(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "survivor", v)
	assert.Equal(t, "survivor", durable.data[KeyRefreshToken], "durable store should be backfilled")
}

func TestDualStoreGetBothMissing(t *testing.T) {
	ds := NewDualStore(newMemStore(), newMemStore())

	_, err := ds.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDualStoreGetFallsBackWhenDurableFails(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	durable.failAll = errors.New("disk gone")
	flat.data[KeyAccessToken] = "still-here"
	ds := NewDualStore(durable, flat)

	v, err := ds.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "still-here", v)
}

func TestDualStoreSetSucceedsWithOneStoreDown(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	flat.failAll = errors.New("store unavailable")
	ds := NewDualStore(durable, flat)

	require.NoError(t, ds.Set(KeyRefreshToken, "rt-2"))
	assert.Equal(t, "rt-2", durable.data[KeyRefreshToken])
}

func TestDualStoreSetFailsWhenBothStoresDown(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	durable.failAll = errors.New("durable down")
	flat.failAll = errors.New("flat down")
	ds := NewDualStore(durable, flat)

	assert.Error(t, ds.Set(KeyRefreshToken, "rt"))
}

func TestDualStoreQuotaPruneAndRetry(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	flat.data["cachedProfile"] = "big-blob"
	flat.data[KeyAccessToken] = "at"
	flat.failSet = ErrQuotaExceeded
	ds := NewDualStore(durable, flat)

	// First Set fails with quota, prune removes cachedProfile, retry runs.
	// The retry still fails here because failSet is sticky, but the durable
	// copy succeeded so the write is accepted.
	require.NoError(t, ds.Set(KeyRefreshToken, "rt"))

	_, hasProfile := flat.data["cachedProfile"]
	assert.False(t, hasProfile, "non-essential key should be pruned")
	assert.Contains(t, flat.data, KeyAccessToken, "credential pair keys must never be pruned")
	assert.Equal(t, "rt", durable.data[KeyRefreshToken])
}

func TestDualStoreQuotaRetrySucceedsAfterPrune(t *testing.T) {
	durable := newMemStore()
	flatDir := t.TempDir()
	flat, err := NewFileStore(filepath.Join(flatDir, "creds.json"), 200)
	require.NoError(t, err)

	// Fill the flat store close to its quota with junk.
	require.NoError(t, flat.Set("cachedProfile", "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"))

	ds := NewDualStore(durable, flat)
	longToken := "tttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttttt"
	require.NoError(t, ds.Set(KeyRefreshToken, longToken))

	v, err := flat.Get(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, longToken, v)
	_, err = flat.Get("cachedProfile")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDualStoreDeleteRemovesFromBoth(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	durable.data[KeyAccessToken] = "at"
	flat.data[KeyAccessToken] = "at"
	ds := NewDualStore(durable, flat)

	require.NoError(t, ds.Delete(KeyAccessToken))

	_, err := ds.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound, "deleted credential must not resurrect from either store")
}

func TestDualStoreHealth(t *testing.T) {
	durable, flat := newMemStore(), newMemStore()
	ds := NewDualStore(durable, flat)
	assert.Equal(t, StoreHealth{DurableOK: true, FlatOK: true}, ds.Health())
	require.NoError(t, ds.Ping())

	flat.failAll = errors.New("flat down")
	assert.Equal(t, StoreHealth{DurableOK: true, FlatOK: false}, ds.Health())
	require.NoError(t, ds.Ping())

	durable.failAll = errors.New("durable down")
	assert.Error(t, ds.Ping())
}

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(KeyAccessToken, "at-1"))
	v, err := store.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "at-1", v)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyAccessToken}, keys)

	require.NoError(t, store.Delete(KeyAccessToken))
	_, err = store.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Ping())
}

func TestFileStoreQuota(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "creds.json"), 64)
	require.NoError(t, err)

	require.NoError(t, store.Set("k", "small"))

	err = store.Set("big", string(make([]byte, 128)))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// The failed write must not have clobbered existing data.
	v, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "small", v)
}
