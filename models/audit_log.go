package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditLog is an immutable record of a worker-applied side effect.
// Entries are written once and never updated or deleted; they exist
// for post-hoc reconciliation only.
type AuditLog struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	EntityType string             `json:"entityType" bson:"entityType"`
	EntityID   primitive.ObjectID `json:"entityId" bson:"entityId"`
	Action     string             `json:"action" bson:"action"`
	ActorID    primitive.ObjectID `json:"actorId" bson:"actorId"`
	Details    interface{}        `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}

// Audit actions recorded by the payment worker
const (
	AuditPaymentSuccess = "Payment Success"
	AuditPaymentFailed  = "Payment Failed"
)
