package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tansinh/switchboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LeaseRepository implements the lease store primitive: a named row granting
// exclusive, time-bounded ownership, mutated only through atomic conditional
// writes. A write that matches nothing is returned as a negative result, not
// an error, and callers proceed with their documented fallback.
type LeaseRepository struct {
	collection *mongo.Collection
}

// NewLeaseRepository creates a new lease repository
func NewLeaseRepository(db *MongoDB) *LeaseRepository {
	return &LeaseRepository{
		collection: db.GetCollection(CollectionProcessingLocks),
	}
}

// TryAcquire attempts to take the named lease for holderID. It grants only if
// the row has no holder or the previous holder's term has expired, in a single
// FindOneAndUpdate so two concurrent callers can never both win.
func (r *LeaseRepository) TryAcquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	filter := bson.M{
		"lock_name": name,
		"$or": []bson.M{
			{"holder_id": bson.M{"$in": bson.A{nil, ""}}},
			{"expires_at": bson.M{"$lt": now}},
		},
	}

	update := bson.M{
		"$set": bson.M{
			"lock_name":   name,
			"holder_id":   holderID,
			"acquired_at": now,
			"expires_at":  expiresAt,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var result model.Lease
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, update, opts).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		// The upsert races the unique lock_name index when the lease is
		// held: the filter matches nothing and the insert collides.
		// That is the same negative outcome as ErrNoDocuments.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	if result.HolderID != holderID {
		return false, nil
	}

	slog.Debug("Acquired lease",
		"lock_name", name,
		"holder_id", holderID,
		"expires_at", expiresAt,
	)

	return true, nil
}

// Renew extends the lease term, conditioned on holderID still owning it.
// Returns false if the lease was lost in the meantime.
func (r *LeaseRepository) Renew(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expiresAt := time.Now().UTC().Add(ttl)

	result, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"lock_name": name, "holder_id": holderID},
		bson.M{"$set": bson.M{"expires_at": expiresAt}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// Release clears the lease, conditioned on holderID owning it. Releasing a
// lease that was already lost or released is a no-op, not an error.
func (r *LeaseRepository) Release(ctx context.Context, name, holderID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"lock_name": name, "holder_id": holderID},
		bson.M{"$set": bson.M{"holder_id": "", "acquired_at": nil, "expires_at": nil}},
	)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	if result.MatchedCount > 0 {
		slog.Debug("Released lease", "lock_name", name, "holder_id", holderID)
	}

	return nil
}

// ClearExpired clears holder fields on the named lease if its term has
// passed. TryAcquire re-checks expiry anyway; this just keeps the row legible
// for status displays after a holder crashed.
func (r *LeaseRepository) ClearExpired(ctx context.Context, name string) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"lock_name": name, "expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"holder_id": "", "acquired_at": nil, "expires_at": nil}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired lease: %w", err)
	}

	return result.ModifiedCount, nil
}
