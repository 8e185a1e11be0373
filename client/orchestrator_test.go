package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/centsible/client/credentials"
)

// memCredStore is a minimal in-memory credentials.Store for orchestrator
// tests.
type memCredStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCredStore() *memCredStore {
	return &memCredStore{data: map[string]string{}}
}

func (m *memCredStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", credentials.ErrNotFound
	}
	return v, nil
}

func (m *memCredStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCredStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCredStore) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memCredStore) Ping() error { return nil }

func (m *memCredStore) snapshot(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func newOrchestrator(t *testing.T, serverURL string, creds credentials.Store, cfg OrchestratorConfig) *RefreshOrchestrator {
	t.Helper()
	api := NewClient(Config{BaseURL: serverURL, Timeout: 2 * time.Second})
	return NewRefreshOrchestrator(api, creds, cfg)
}

func TestRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		json.NewEncoder(w).Encode(AuthResponse{AccessToken: "at-new", RefreshToken: "rt-new"})
	}))
	defer server.Close()

	creds := newMemCredStore()
	require.NoError(t, creds.Set(credentials.KeyRefreshToken, "rt-old"))
	o := newOrchestrator(t, server.URL, creds, OrchestratorConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Refresh(context.Background(), true))
		}()
	}
	// Let every goroutine reach the single-flight guard while the one real
	// network call is parked in the handler.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent refreshes must collapse into one network call")
	rt, _ := creds.snapshot(credentials.KeyRefreshToken)
	assert.Equal(t, "rt-new", rt)
}

func TestRefreshDebounce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(AuthResponse{AccessToken: "at", RefreshToken: "rt-next"})
	}))
	defer server.Close()

	creds := newMemCredStore()
	require.NoError(t, creds.Set(credentials.KeyRefreshToken, "rt-0"))
	o := newOrchestrator(t, server.URL, creds, OrchestratorConfig{DebounceWindow: time.Hour})

	require.NoError(t, o.Refresh(context.Background(), false))
	require.NoError(t, o.Refresh(context.Background(), false))
	assert.Equal(t, int32(1), calls.Load(), "second call inside the debounce window must be skipped")

	require.NoError(t, o.Refresh(context.Background(), true))
	assert.Equal(t, int32(2), calls.Load(), "forced call must bypass the debounce window")
}

func TestRefreshUnauthorizedClearsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := newMemCredStore()
	require.NoError(t, creds.Set(credentials.KeyAccessToken, "at"))
	require.NoError(t, creds.Set(credentials.KeyRefreshToken, "rt"))

	var routed atomic.Bool
	o := newOrchestrator(t, server.URL, creds, OrchestratorConfig{
		OnUnauthenticated: func() { routed.Store(true) },
	})

	err := o.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, hasAT := creds.snapshot(credentials.KeyAccessToken)
	_, hasRT := creds.snapshot(credentials.KeyRefreshToken)
	assert.False(t, hasAT, "401 must clear the stored access token")
	assert.False(t, hasRT, "401 must clear the stored refresh token")
	assert.True(t, routed.Load(), "OnUnauthenticated must fire after credentials are cleared")
}

func TestRefreshTransportErrorKeepsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // connection refused from here on

	creds := newMemCredStore()
	require.NoError(t, creds.Set(credentials.KeyAccessToken, "at"))
	require.NoError(t, creds.Set(credentials.KeyRefreshToken, "rt"))
	o := newOrchestrator(t, url, creds, OrchestratorConfig{})

	err := o.Refresh(context.Background(), true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)

	at, hasAT := creds.snapshot(credentials.KeyAccessToken)
	rt, hasRT := creds.snapshot(credentials.KeyRefreshToken)
	assert.True(t, hasAT && hasRT, "a transport failure must not clear stored tokens")
	assert.Equal(t, "at", at)
	assert.Equal(t, "rt", rt)
}

func TestRefreshWithoutStoredTokenIsUnauthenticated(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	o := newOrchestrator(t, server.URL, newMemCredStore(), OrchestratorConfig{})

	err := o.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, int32(0), calls.Load(), "no network call without a stored refresh token")
}

func TestForegroundAfterLongBackgroundForcesRefresh(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		json.NewEncoder(w).Encode(AuthResponse{AccessToken: "at-new", RefreshToken: "rt-new"})
	})
	mux.HandleFunc("POST /auth/keepalive", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(KeepaliveResponse{Extended: false})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := newMemCredStore()
	require.NoError(t, creds.Set(credentials.KeyAccessToken, "at"))
	require.NoError(t, creds.Set(credentials.KeyRefreshToken, "rt"))
	o := newOrchestrator(t, server.URL, creds, OrchestratorConfig{
		BackgroundForceAfter: 10 * time.Millisecond,
	})

	o.handle(context.Background(), triggerBackground)
	time.Sleep(20 * time.Millisecond)
	o.handle(context.Background(), triggerForeground)

	assert.Equal(t, int32(1), refreshes.Load(), "long background must force a refresh on resume")
}

func TestForegroundAfterShortBackgroundSkipsRefreshWhenTokenAlive(t *testing.T) {
	var refreshes, verifies, keepalives atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		json.NewEncoder(w).Encode(AuthResponse{AccessToken: "at-new", RefreshToken: "rt-new"})
	})
	mux.HandleFunc("GET /auth/verify", func(w http.ResponseWriter, r *http.Request) {
		verifies.Add(1)
		json.NewEncoder(w).Encode(VerifyResponse{Valid: true, UserID: "u1"})
	})
	mux.HandleFunc("POST /auth/keepalive", func(w http.ResponseWriter, r *http.Request) {
		keepalives.Add(1)
		json.NewEncoder(w).Encode(KeepaliveResponse{Extended: false})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := newMemCredStore()
	require.NoError(t, creds.Set(credentials.KeyAccessToken, "at"))
	require.NoError(t, creds.Set(credentials.KeyRefreshToken, "rt"))
	o := newOrchestrator(t, server.URL, creds, OrchestratorConfig{
		BackgroundForceAfter: time.Hour,
	})

	o.handle(context.Background(), triggerBackground)
	o.handle(context.Background(), triggerForeground)

	assert.Equal(t, int32(0), refreshes.Load(), "live access token must not be rotated needlessly")
	assert.Equal(t, int32(1), verifies.Load(), "short background resume does a cheap liveness check")
	assert.Equal(t, int32(1), keepalives.Load(), "foreground resume pings keepalive")
}
