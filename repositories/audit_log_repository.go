package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/atelio-app/atelio_backend/config"
	"github.com/atelio-app/atelio_backend/models"
)

// AuditLogStore is the append-only audit trail contract. Entries are
// only ever inserted.
type AuditLogStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// AuditLogRepository implements AuditLogStore on MongoDB.
type AuditLogRepository struct {
	collection *mongo.Collection
}

// NewAuditLogRepository creates an audit log repository bound to the
// audit_logs collection.
func NewAuditLogRepository(db *mongo.Client) *AuditLogRepository {
	return &AuditLogRepository{
		collection: config.GetCollection(db, "audit_logs"),
	}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = primitive.NewObjectID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	return err
}
