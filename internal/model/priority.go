package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PriorityEntry grants preemption rights to one identity (an email-like
// account name). Removal is a soft update, never a row delete, so membership
// is always queried as identity + is_active.
type PriorityEntry struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Identity  string             `json:"identity" bson:"identity"`
	IsActive  bool               `json:"is_active" bson:"is_active"`
	AddedBy   string             `json:"added_by,omitempty" bson:"added_by,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
