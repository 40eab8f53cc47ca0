package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atelio-app/atelio_backend/config"
	"github.com/atelio-app/atelio_backend/models"
)

// CommissionChange describes the write half of a state transition.
// Only non-nil fields are applied.
type CommissionChange struct {
	Status               *string
	PaymentStatus        *string
	AppendRenegotiation  *models.Renegotiation
	ResolveRenegotiation bool
}

// CommissionStore is the persistence contract the service and workers
// depend on. Lookups return (nil, nil) when no document matches; absence
// is a value, not an error.
type CommissionStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Commission, error)
	// FindDuplicate reports an existing non-cancelled commission with the
	// same client, artist and description.
	FindDuplicate(ctx context.Context, clientID, artistID primitive.ObjectID, description string) (*models.Commission, error)
	FindByClient(ctx context.Context, clientID primitive.ObjectID) ([]models.Commission, error)
	FindByArtist(ctx context.Context, artistID primitive.ObjectID) ([]models.Commission, error)
	FindAll(ctx context.Context) ([]models.Commission, error)
	Create(ctx context.Context, commission *models.Commission) error
	// ApplyTransition atomically applies change to the commission only if
	// its status still equals requiredStatus at commit time. Returns the
	// updated document, or (nil, nil) when the commission is absent or the
	// precondition no longer holds. This conditional write is what closes
	// the read-then-write race between concurrent actors.
	ApplyTransition(ctx context.Context, id primitive.ObjectID, requiredStatus string, change CommissionChange) (*models.Commission, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// CommissionRepository implements CommissionStore on MongoDB.
type CommissionRepository struct {
	collection *mongo.Collection
}

// NewCommissionRepository creates a commission repository bound to the
// commissions collection.
func NewCommissionRepository(db *mongo.Client) *CommissionRepository {
	return &CommissionRepository{
		collection: config.GetCollection(db, "commissions"),
	}
}

func (r *CommissionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Commission, error) {
	var commission models.Commission
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&commission)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *CommissionRepository) FindDuplicate(ctx context.Context, clientID, artistID primitive.ObjectID, description string) (*models.Commission, error) {
	filter := bson.M{
		"clientId":    clientID,
		"artistId":    artistID,
		"description": description,
		"status":      bson.M{"$ne": models.StatusCancelled},
	}
	var commission models.Commission
	err := r.collection.FindOne(ctx, filter).Decode(&commission)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *CommissionRepository) FindByClient(ctx context.Context, clientID primitive.ObjectID) ([]models.Commission, error) {
	return r.findMany(ctx, bson.M{"clientId": clientID})
}

func (r *CommissionRepository) FindByArtist(ctx context.Context, artistID primitive.ObjectID) ([]models.Commission, error) {
	return r.findMany(ctx, bson.M{"artistId": artistID})
}

func (r *CommissionRepository) FindAll(ctx context.Context) ([]models.Commission, error) {
	return r.findMany(ctx, bson.M{})
}

func (r *CommissionRepository) findMany(ctx context.Context, filter bson.M) ([]models.Commission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	commissions := []models.Commission{}
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *CommissionRepository) Create(ctx context.Context, commission *models.Commission) error {
	now := time.Now()
	commission.ID = primitive.NewObjectID()
	commission.Status = models.StatusPendingApproval
	commission.PaymentStatus = models.PaymentPending
	if commission.Renegotiations == nil {
		commission.Renegotiations = []models.Renegotiation{}
	}
	commission.CreatedAt = now
	commission.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, commission)
	return err
}

func (r *CommissionRepository) ApplyTransition(ctx context.Context, id primitive.ObjectID, requiredStatus string, change CommissionChange) (*models.Commission, error) {
	filter := bson.M{"_id": id, "status": requiredStatus}

	set := bson.M{"updatedAt": time.Now()}
	if change.Status != nil {
		set["status"] = *change.Status
	}
	if change.PaymentStatus != nil {
		set["paymentStatus"] = *change.PaymentStatus
	}

	update := bson.M{"$set": set}
	if change.AppendRenegotiation != nil {
		update["$push"] = bson.M{"renegotiations": *change.AppendRenegotiation}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if change.ResolveRenegotiation {
		set["renegotiations.$[pending].resolved"] = true
		set["renegotiations.$[pending].resolvedAt"] = time.Now()
		opts.SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"pending.resolved": false}},
		})
	}

	var updated models.Commission
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		// Absent, or the status moved under us. Callers re-fetch to tell
		// the two apart.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *CommissionRepository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}
