package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tansinh/switchboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordingRepository manages recording work items: created by the call-event
// webhook, consumed by the ingestion pipeline.
type RecordingRepository struct {
	collection *mongo.Collection
}

// NewRecordingRepository creates a new recording repository
func NewRecordingRepository(db *MongoDB) *RecordingRepository {
	return &RecordingRepository{
		collection: db.GetCollection(CollectionCallRecordings),
	}
}

// CreateIfNew inserts a work item unless another item for the same phone
// number exists within the dedup window around its call date. Returns false
// when the event was treated as a duplicate and skipped.
func (r *RecordingRepository) CreateIfNew(ctx context.Context, item *model.WorkItem, window time.Duration) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"phone_number": item.PhoneNumber,
		"call_date": bson.M{
			"$gte": item.CallDate.Add(-window),
			"$lte": item.CallDate.Add(window),
		},
	}

	count, err := r.collection.CountDocuments(ctxTimeout, filter)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate work item: %w", err)
	}
	if count > 0 {
		slog.Info("Duplicate call event skipped",
			"phone_number", item.PhoneNumber,
			"call_date", item.CallDate,
		)
		return false, nil
	}

	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctxTimeout, item); err != nil {
		return false, fmt.Errorf("failed to create work item: %w", err)
	}

	return true, nil
}

// ResetStuck forces items stuck in processing since before olderThan back to
// failed, healing crashes that never reached a terminal state.
func (r *RecordingRepository) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.collection.UpdateMany(ctxTimeout,
		bson.M{
			"status":     model.StatusProcessing,
			"updated_at": bson.M{"$lt": olderThan},
		},
		bson.M{"$set": bson.M{"status": model.StatusFailed}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck work items: %w", err)
	}

	return result.ModifiedCount, nil
}

// FindEligible returns up to limit pending items, oldest first: not yet
// archived, with a source URL, never attempted or failed, and under the
// retry ceiling.
func (r *RecordingRepository) FindEligible(ctx context.Context, maxRetries, limit int) ([]model.WorkItem, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"durable_url": bson.M{"$in": bson.A{nil, ""}},
		"source_url":  bson.M{"$nin": bson.A{nil, ""}},
		"status":      bson.M{"$in": bson.A{nil, "", model.StatusFailed}},
		"retry_count": bson.M{"$lt": maxRetries},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctxTimeout, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find eligible work items: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var items []model.WorkItem
	if err := cursor.All(ctxTimeout, &items); err != nil {
		return nil, fmt.Errorf("failed to decode work items: %w", err)
	}

	return items, nil
}

// MarkProcessing stamps an item as in flight.
func (r *RecordingRepository) MarkProcessing(ctx context.Context, id primitive.ObjectID) error {
	return r.setStatus(ctx, id, bson.M{
		"status":     model.StatusProcessing,
		"updated_at": time.Now().UTC(),
	})
}

// MarkCompleted records the durable location of an archived recording.
func (r *RecordingRepository) MarkCompleted(ctx context.Context, id primitive.ObjectID, durableURL string) error {
	return r.setStatus(ctx, id, bson.M{
		"durable_url": durableURL,
		"status":      model.StatusCompleted,
		"updated_at":  time.Now().UTC(),
	})
}

// MarkFailed records a failed attempt. Once retryCount reaches the configured
// maximum the item simply falls out of the eligible query.
func (r *RecordingRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, retryCount int) error {
	return r.setStatus(ctx, id, bson.M{
		"status":      model.StatusFailed,
		"retry_count": retryCount,
		"updated_at":  time.Now().UTC(),
	})
}

func (r *RecordingRepository) setStatus(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update work item %s: %w", id.Hex(), err)
	}

	return nil
}
