package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/tansinh/switchboard/internal/model"
)

// EventStore persists call events as recording work items.
type EventStore interface {
	CreateIfNew(ctx context.Context, item *model.WorkItem, window time.Duration) (bool, error)
}

// Pusher fans a notification out to registered devices.
type Pusher interface {
	SendToAll(ctx context.Context, title, body string, data map[string]string)
}

// Result summarizes one webhook delivery.
type Result struct {
	Received   int `json:"received"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

// Service turns parsed call events into work items. Providers redeliver
// webhooks, so creation is deduplicated against recent events for the same
// number.
type Service struct {
	store       EventStore
	pusher      Pusher
	dedupWindow time.Duration

	now func() time.Time
}

// NewService creates an ingestion service. pusher may be nil when push
// notifications are disabled.
func NewService(store EventStore, pusher Pusher, dedupWindow time.Duration) *Service {
	return &Service{
		store:       store,
		pusher:      pusher,
		dedupWindow: dedupWindow,
		now:         time.Now,
	}
}

// Ingest stores the given call events. A storage failure on one event does
// not stop the rest; the webhook endpoint acknowledges regardless, since the
// provider interprets anything but success as an invitation to retry forever.
func (s *Service) Ingest(ctx context.Context, events []model.CallEvent) Result {
	result := Result{Received: len(events)}

	for _, event := range events {
		item := s.workItem(event)
		created, err := s.store.CreateIfNew(ctx, item, s.dedupWindow)
		if err != nil {
			slog.Error("Failed to store call event",
				"phone_number", event.PhoneNumber,
				"direction", event.Direction,
				"error", err,
			)
			continue
		}
		if !created {
			result.Duplicates++
			continue
		}
		result.Created++

		if event.Direction == model.DirectionIn {
			s.notifyIncoming(event)
		}
	}

	slog.Info("Call events ingested",
		"received", result.Received,
		"created", result.Created,
		"duplicates", result.Duplicates,
	)
	return result
}

func (s *Service) workItem(event model.CallEvent) *model.WorkItem {
	now := s.now().UTC()
	callDate := event.Timestamp
	if callDate.IsZero() {
		callDate = now
	}
	return &model.WorkItem{
		PhoneNumber: event.PhoneNumber,
		Hotline:     event.Hotline,
		CallType:    event.Direction,
		DurationSec: event.DurationSec,
		Disposition: event.Disposition,
		SourceURL:   event.SourceRecordingURL,
		CallDate:    callDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// notifyIncoming alerts registered devices about an inbound call. Delivery is
// fire and forget on its own context; the webhook response never waits on the
// push gateway.
func (s *Service) notifyIncoming(event model.CallEvent) {
	if s.pusher == nil {
		return
	}
	phone := event.PhoneNumber
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.pusher.SendToAll(pushCtx, "Incoming call", "From: "+phone, map[string]string{
			"phone": phone,
			"type":  "incoming_call",
		})
	}()
}
