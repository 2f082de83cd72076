package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tansinh/switchboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TokenRepository reads registered push-notification device tokens.
// Registration itself happens in the web console, outside this core.
type TokenRepository struct {
	collection *mongo.Collection
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *MongoDB) *TokenRepository {
	return &TokenRepository{
		collection: db.GetCollection(CollectionDeviceTokens),
	}
}

// List returns all registered device tokens.
func (r *TokenRepository) List(ctx context.Context) ([]model.DeviceToken, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := r.collection.Find(ctxTimeout, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var tokens []model.DeviceToken
	if err := cursor.All(ctxTimeout, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode device tokens: %w", err)
	}

	return tokens, nil
}
