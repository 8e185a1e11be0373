package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/centsible/centsible/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SessionRepository implements domain.SessionRepository on MongoDB.
//
// Sessions are soft-deleted: revocation sets revoked_at and expiry is an
// implicit invalidation on lookup. There is deliberately no TTL index, so
// the collection keeps serving as an audit trail.
type SessionRepository struct {
	client   *mongo.Client
	sessions *mongo.Collection
}

// NewSessionRepository creates a new SessionRepository and ensures its
// indexes, including the unique index on refresh_token_hash that gives O(1)
// token-to-session lookup.
func NewSessionRepository(ctx context.Context, db *mongo.Database) (domain.SessionRepository, error) {
	repo := &SessionRepository{
		client:   db.Client(),
		sessions: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "refresh_token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}

	if _, err := repo.sessions.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for sessions collection (might already exist)")
	} else {
		log.Info().Msg("Indexes for sessions collection ensured.")
	}

	return repo, nil
}

// CreateSession stores a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	prepareSession(session)

	_, err := r.sessions.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.New("session with this refresh token hash already exists")
		}
		log.Error().Err(err).Msg("Error storing session in MongoDB")
		return err
	}
	return nil
}

// GetSessionByTokenHash retrieves a session by its refresh-token hash. For a
// revoked or expired record the session is returned alongside the sentinel
// error so callers can audit the owning user without exposing the
// distinction externally.
func (r *SessionRepository) GetSessionByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	var session domain.Session
	err := r.sessions.FindOne(ctx, bson.M{"refresh_token_hash": hash}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		log.Error().Err(err).Msg("Error getting session by token hash from MongoDB")
		return nil, err
	}
	if session.RevokedAt != nil {
		return &session, domain.ErrSessionRevoked
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		return &session, domain.ErrSessionExpired
	}
	return &session, nil
}

// RotateSession revokes the active session identified by oldHash and inserts
// its replacement in a single transaction. The revoke is conditional on the
// session still being active, so of two racing refresh calls exactly one
// wins; the loser gets domain.ErrSessionNotFound.
func (r *SessionRepository) RotateSession(ctx context.Context, oldHash string, replacement *domain.Session) error {
	prepareSession(replacement)

	sess, err := r.client.StartSession()
	if err != nil {
		log.Error().Err(err).Msg("Error starting MongoDB session for rotation")
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, r.rotateOnce(txCtx, oldHash, replacement)
	})
	if err != nil && isTxnUnsupported(err) {
		// Standalone mongod has no transactions. The conditional revoke
		// still guarantees a single rotation winner; only the crash window
		// between revoke and insert is unprotected.
		log.Warn().Msg("MongoDB transactions unavailable, rotating without one")
		return r.rotateOnce(ctx, oldHash, replacement)
	}
	return err
}

func (r *SessionRepository) rotateOnce(ctx context.Context, oldHash string, replacement *domain.Session) error {
	now := time.Now().UTC()
	filter := bson.M{
		"refresh_token_hash": oldHash,
		"revoked_at":         nil,
		"expires_at":         bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"revoked_at": now, "updated_at": now}}

	res := r.sessions.FindOneAndUpdate(ctx, filter, update)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrSessionNotFound
		}
		log.Error().Err(err).Msg("Error revoking session during rotation")
		return err
	}

	if _, err := r.sessions.InsertOne(ctx, replacement); err != nil {
		log.Error().Err(err).Msg("Error inserting replacement session during rotation")
		return err
	}
	return nil
}

// RevokeSession marks the session identified by hash as revoked.
func (r *SessionRepository) RevokeSession(ctx context.Context, hash string) error {
	now := time.Now().UTC()
	res, err := r.sessions.UpdateOne(ctx,
		bson.M{"refresh_token_hash": hash, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": now, "updated_at": now}},
	)
	if err != nil {
		log.Error().Err(err).Msg("Error revoking session in MongoDB")
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// TouchSession bumps updated_at for the active session with the given hash
// and, when newExpiry is non-nil, extends expires_at.
func (r *SessionRepository) TouchSession(ctx context.Context, hash string, newExpiry *time.Time) error {
	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	if newExpiry != nil {
		set["expires_at"] = newExpiry.UTC()
	}

	res, err := r.sessions.UpdateOne(ctx,
		bson.M{
			"refresh_token_hash": hash,
			"revoked_at":         nil,
			"expires_at":         bson.M{"$gt": now},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		log.Error().Err(err).Msg("Error touching session in MongoDB")
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func prepareSession(session *domain.Session) {
	if session.ID == "" {
		session.ID = NewDocumentID()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
}

func isTxnUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction numbers are only allowed") ||
		strings.Contains(msg, "IllegalOperation")
}
