package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tansinh/switchboard/internal/ingest"
	"github.com/tansinh/switchboard/internal/model"
)

type stubIngestor struct {
	events []model.CallEvent
	result ingest.Result
}

func (s *stubIngestor) Ingest(ctx context.Context, events []model.CallEvent) ingest.Result {
	s.events = append(s.events, events...)
	return s.result
}

func TestWebhookGetReportsActive(t *testing.T) {
	h := NewWebhookHandler(&stubIngestor{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/call-events", nil)
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "active" {
		t.Errorf("response = %v", resp)
	}
}

func TestWebhookPostIngestsEvents(t *testing.T) {
	ingestor := &stubIngestor{result: ingest.Result{Received: 1, Created: 1}}
	h := NewWebhookHandler(ingestor)

	body := `{"data": [{"type_call": "IN", "caller": [{"phone": "0901234567"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/call-events",
		strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.events) != 1 || ingestor.events[0].PhoneNumber != "0901234567" {
		t.Errorf("ingested events = %+v", ingestor.events)
	}
}

func TestWebhookAcknowledgesMalformedBody(t *testing.T) {
	ingestor := &stubIngestor{}
	h := NewWebhookHandler(ingestor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/call-events",
		strings.NewReader("definitely not json"))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	// The provider retries anything but 200 forever.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even for garbage", rec.Code)
	}
	if len(ingestor.events) != 0 {
		t.Errorf("nothing should be ingested, got %+v", ingestor.events)
	}
}

func TestWebhookAcknowledgesEmptyPayload(t *testing.T) {
	ingestor := &stubIngestor{}
	h := NewWebhookHandler(ingestor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/call-events",
		strings.NewReader(`{"event": "PING"}`))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.events) != 0 {
		t.Errorf("ping should not ingest anything, got %+v", ingestor.events)
	}
}
