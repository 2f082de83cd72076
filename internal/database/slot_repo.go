package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tansinh/switchboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SlotRepository manages the credential slot rows. Ownership transfers go
// through Claim, which is conditioned on the previously observed session so a
// stale snapshot can never silently overwrite a concurrent assignment.
type SlotRepository struct {
	collection *mongo.Collection
}

// NewSlotRepository creates a new slot repository
func NewSlotRepository(db *MongoDB) *SlotRepository {
	return &SlotRepository{
		collection: db.GetCollection(CollectionCredentialSlots),
	}
}

// EnsureSlots provisions one row per configured slot number. Existing rows
// are left untouched, so re-running at every startup is safe.
func (r *SlotRepository) EnsureSlots(ctx context.Context, slotNumbers []int) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, n := range slotNumbers {
		_, err := r.collection.UpdateOne(ctxTimeout,
			bson.M{"slot_number": n},
			bson.M{"$setOnInsert": bson.M{"slot_number": n, "is_priority": false}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to provision slot %d: %w", n, err)
		}
	}

	slog.Info("Provisioned credential slots", "count", len(slotNumbers))
	return nil
}

// List returns the rows for the given slot numbers in ascending order.
func (r *SlotRepository) List(ctx context.Context, slotNumbers []int) ([]model.Slot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "slot_number", Value: 1}})
	cursor, err := r.collection.Find(ctxTimeout,
		bson.M{"slot_number": bson.M{"$in": slotNumbers}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var slots []model.Slot
	if err := cursor.All(ctxTimeout, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}

	return slots, nil
}

// Get returns a single slot row, or nil if it does not exist.
func (r *SlotRepository) Get(ctx context.Context, slotNumber int) (*model.Slot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var slot model.Slot
	err := r.collection.FindOne(ctxTimeout, bson.M{"slot_number": slotNumber}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get slot %d: %w", slotNumber, err)
	}

	return &slot, nil
}

// FindBySession returns the slot currently assigned to a session, or nil.
func (r *SlotRepository) FindBySession(ctx context.Context, sessionID string) (*model.Slot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var slot model.Slot
	err := r.collection.FindOne(ctxTimeout, bson.M{"session_id": sessionID}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find slot by session: %w", err)
	}

	return &slot, nil
}

// Claim assigns the slot to sessionID, conditioned on the slot still being
// owned by expectedSessionID (empty for an unowned slot). Returns false when
// the condition no longer holds, meaning another instance got there first.
func (r *SlotRepository) Claim(ctx context.Context, slotNumber int, expectedSessionID, sessionID, holderIdentity string, isPriority bool, now time.Time) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"slot_number": slotNumber}
	if expectedSessionID == "" {
		filter["session_id"] = bson.M{"$in": bson.A{nil, ""}}
	} else {
		filter["session_id"] = expectedSessionID
	}

	update := bson.M{
		"$set": bson.M{
			"session_id":      sessionID,
			"holder_identity": holderIdentity,
			"last_heartbeat":  now.UTC(),
			"is_priority":     isPriority,
		},
	}

	result, err := r.collection.UpdateOne(ctxTimeout, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to claim slot %d: %w", slotNumber, err)
	}

	return result.MatchedCount > 0, nil
}

// Renew refreshes the heartbeat and priority flag on the slot owned by
// sessionID and returns the updated row, or nil if the session no longer
// owns a slot (preempted or expired).
func (r *SlotRepository) Renew(ctx context.Context, sessionID, holderIdentity string, isPriority bool, now time.Time) (*model.Slot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"last_heartbeat": now.UTC(),
		"is_priority":    isPriority,
	}
	if holderIdentity != "" {
		set["holder_identity"] = holderIdentity
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot model.Slot
	err := r.collection.FindOneAndUpdate(ctxTimeout,
		bson.M{"session_id": sessionID}, bson.M{"$set": set}, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to renew slot heartbeat: %w", err)
	}

	return &slot, nil
}

// Release clears ownership of the slot held by sessionID. A session without a
// slot is a no-op.
func (r *SlotRepository) Release(ctx context.Context, sessionID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"session_id": sessionID},
		bson.M{"$set": clearedOwnership()},
	)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}

	return nil
}

// Clear wipes ownership fields on a slot regardless of holder. Used when a
// slot's credential was removed from configuration.
func (r *SlotRepository) Clear(ctx context.Context, slotNumber int) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"slot_number": slotNumber},
		bson.M{"$set": clearedOwnership()},
	)
	if err != nil {
		return fmt.Errorf("failed to clear slot %d: %w", slotNumber, err)
	}

	return nil
}

func clearedOwnership() bson.M {
	return bson.M{
		"session_id":      "",
		"holder_identity": "",
		"last_heartbeat":  nil,
		"is_priority":     false,
	}
}
