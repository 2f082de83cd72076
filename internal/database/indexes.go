package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	if err := createSlotIndexes(ctx, db); err != nil {
		return err
	}
	if err := createPriorityIndexes(ctx, db); err != nil {
		return err
	}
	if err := createLockIndexes(ctx, db); err != nil {
		return err
	}
	if err := createRecordingIndexes(ctx, db); err != nil {
		return err
	}
	if err := createDeviceTokenIndexes(ctx, db); err != nil {
		return err
	}

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}

func createSlotIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionCredentialSlots)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slot_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_slot_number_unique"),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetName("idx_session_id"),
		},
	}

	return createMany(ctx, collection, indexes, "credential_slots")
}

func createPriorityIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionPriorityIdentities)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identity", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_identity_unique"),
		},
		{
			Keys: bson.D{
				{Key: "identity", Value: 1},
				{Key: "is_active", Value: 1},
			},
			Options: options.Index().SetName("idx_identity_is_active"),
		},
	}

	return createMany(ctx, collection, indexes, "priority_identities")
}

func createLockIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionProcessingLocks)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "lock_name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_lock_name_unique"),
		},
	}

	return createMany(ctx, collection, indexes, "processing_locks")
}

func createRecordingIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionCallRecordings)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "phone_number", Value: 1},
				{Key: "call_date", Value: 1},
			},
			Options: options.Index().SetName("idx_phone_call_date"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "retry_count", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_status_retry_created_at"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_created_at"),
		},
	}

	return createMany(ctx, collection, indexes, "call_recordings")
}

func createDeviceTokenIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionDeviceTokens)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_token_unique"),
		},
	}

	return createMany(ctx, collection, indexes, "device_tokens")
}

func createMany(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel, name string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return err
	}

	slog.Info("Created indexes", "collection", name)
	return nil
}
