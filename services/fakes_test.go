package services

import (
	"context"
	"sync"
	"time"

	"github.com/centsible/centsible/domain"
	"github.com/google/uuid"
)

// In-memory repository fakes mirroring the MongoDB implementations' error
// contracts, including the session-returned-with-sentinel behavior of
// GetSessionByTokenHash.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session // by refresh token hash
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*domain.Session{}}
}

func (r *fakeSessionRepo) CreateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.RefreshTokenHash] = session
	return nil
}

func (r *fakeSessionRepo) GetSessionByTokenHash(_ context.Context, hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(hash)
}

func (r *fakeSessionRepo) lookupLocked(hash string) (*domain.Session, error) {
	session, ok := r.sessions[hash]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.RevokedAt != nil {
		return session, domain.ErrSessionRevoked
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		return session, domain.ErrSessionExpired
	}
	return session, nil
}

func (r *fakeSessionRepo) RotateSession(_ context.Context, oldHash string, replacement *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, err := r.lookupLocked(oldHash)
	if err != nil {
		return domain.ErrSessionNotFound
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	old.UpdatedAt = now
	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	r.sessions[replacement.RefreshTokenHash] = replacement
	return nil
}

func (r *fakeSessionRepo) RevokeSession(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, err := r.lookupLocked(hash)
	if err != nil {
		return domain.ErrSessionNotFound
	}
	now := time.Now().UTC()
	session.RevokedAt = &now
	session.UpdatedAt = now
	return nil
}

func (r *fakeSessionRepo) TouchSession(_ context.Context, hash string, newExpiry *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, err := r.lookupLocked(hash)
	if err != nil {
		return domain.ErrSessionNotFound
	}
	session.UpdatedAt = time.Now().UTC()
	if newExpiry != nil {
		session.ExpiresAt = *newExpiry
	}
	return nil
}

type recordingAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLogEntry
}

func (r *recordingAuditRepo) AppendEntry(_ context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingAuditRepo) lastByAction(action string) *domain.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Action == action {
			return r.entries[i]
		}
	}
	return nil
}
