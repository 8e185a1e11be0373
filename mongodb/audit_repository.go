package mongodb

import (
	"context"
	"time"

	"github.com/centsible/centsible/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// AuditLogRepository implements domain.AuditLogRepository on MongoDB.
// The repository is append-only: no update or delete methods exist.
type AuditLogRepository struct {
	entries *mongo.Collection
}

// NewAuditLogRepository creates a new AuditLogRepository and ensures its
// query indexes.
func NewAuditLogRepository(ctx context.Context, db *mongo.Database) (domain.AuditLogRepository, error) {
	repo := &AuditLogRepository{
		entries: db.Collection(AuditLogCollection),
	}

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := repo.entries.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for audit_log collection (might already exist)")
	}

	return repo, nil
}

// AppendEntry inserts one audit entry.
func (r *AuditLogRepository) AppendEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := r.entries.InsertOne(ctx, entry)
	return err
}
