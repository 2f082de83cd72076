package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkItemStatus is the processing state of a recording work item.
// An empty status means pending (never attempted).
type WorkItemStatus string

const (
	StatusProcessing WorkItemStatus = "processing"
	StatusCompleted  WorkItemStatus = "completed"
	StatusFailed     WorkItemStatus = "failed"
)

// WorkItem is one unit of deferred work: fetch a call recording from the slow
// telephony upstream and archive it in durable storage. Items are created by
// the call-event webhook and consumed by the ingestion pipeline.
type WorkItem struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PhoneNumber string             `json:"phone_number" bson:"phone_number"`
	Hotline     string             `json:"hotline,omitempty" bson:"hotline,omitempty"`
	CallType    string             `json:"call_type,omitempty" bson:"call_type,omitempty"` // "IN" | "OUT"
	DurationSec int                `json:"duration_sec,omitempty" bson:"duration_sec,omitempty"`
	Disposition string             `json:"disposition,omitempty" bson:"disposition,omitempty"`
	SourceURL   string             `json:"source_url,omitempty" bson:"source_url,omitempty"`
	DurableURL  string             `json:"durable_url,omitempty" bson:"durable_url,omitempty"`
	Status      WorkItemStatus     `json:"status,omitempty" bson:"status,omitempty"`
	RetryCount  int                `json:"retry_count" bson:"retry_count"`
	CallDate    time.Time          `json:"call_date" bson:"call_date"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// Eligible reports whether the item should be picked up by a pipeline run:
// not yet archived, has a source to fetch, in a non-terminal state, and under
// the retry ceiling.
func (w *WorkItem) Eligible(maxRetries int) bool {
	if w.DurableURL != "" || w.SourceURL == "" {
		return false
	}
	if w.Status != "" && w.Status != StatusFailed {
		return false
	}
	return w.RetryCount < maxRetries
}
