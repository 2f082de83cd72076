package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tansinh/switchboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PriorityRepository manages the priority identity list. Membership removal
// is a soft update so the audit trail (added_by, created_at) survives.
type PriorityRepository struct {
	collection *mongo.Collection
}

// NewPriorityRepository creates a new priority repository
func NewPriorityRepository(db *MongoDB) *PriorityRepository {
	return &PriorityRepository{
		collection: db.GetCollection(CollectionPriorityIdentities),
	}
}

// Add grants priority status to an identity. Re-adding a soft-deleted entry
// reactivates it, so the operation is an idempotent upsert.
func (r *PriorityRepository) Add(ctx context.Context, identity, addedBy string) (*model.PriorityEntry, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	identity = normalizeIdentity(identity)
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	update := bson.M{
		"$set": bson.M{
			"is_active": true,
			"added_by":  addedBy,
		},
		"$setOnInsert": bson.M{
			"identity":   identity,
			"created_at": time.Now().UTC(),
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var entry model.PriorityEntry
	err := r.collection.FindOneAndUpdate(ctxTimeout,
		bson.M{"identity": identity}, update, opts).Decode(&entry)
	if err != nil {
		return nil, fmt.Errorf("failed to add priority identity: %w", err)
	}

	return &entry, nil
}

// Remove soft-deletes a priority identity. Returns false if no entry existed.
func (r *PriorityRepository) Remove(ctx context.Context, identity string) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"identity": normalizeIdentity(identity)},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove priority identity: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// IsPriority reports whether an identity currently belongs to the priority
// class. An empty identity is never priority.
func (r *PriorityRepository) IsPriority(ctx context.Context, identity string) (bool, error) {
	identity = normalizeIdentity(identity)
	if identity == "" {
		return false, nil
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := r.collection.CountDocuments(ctxTimeout,
		bson.M{"identity": identity, "is_active": true})
	if err != nil {
		return false, fmt.Errorf("failed to check priority identity: %w", err)
	}

	return count > 0, nil
}

// List returns all priority entries, newest first, including soft-deleted
// ones so admins can see history.
func (r *PriorityRepository) List(ctx context.Context) ([]model.PriorityEntry, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctxTimeout, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list priority identities: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var entries []model.PriorityEntry
	if err := cursor.All(ctxTimeout, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode priority identities: %w", err)
	}

	return entries, nil
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
