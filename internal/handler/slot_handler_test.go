package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tansinh/switchboard/internal/allocator"
	"github.com/tansinh/switchboard/internal/model"
)

type stubSlotService struct {
	grant    allocator.Grant
	released []string
	statuses []model.SlotStatus
	err      error
}

func (s *stubSlotService) Request(ctx context.Context, sessionID, identity string) (allocator.Grant, error) {
	return s.grant, s.err
}

func (s *stubSlotService) Heartbeat(ctx context.Context, sessionID, identity string) (allocator.Grant, error) {
	return s.grant, s.err
}

func (s *stubSlotService) Release(ctx context.Context, sessionID string) error {
	s.released = append(s.released, sessionID)
	return s.err
}

func (s *stubSlotService) Status(ctx context.Context) ([]model.SlotStatus, error) {
	return s.statuses, s.err
}

func TestSlotRequestReturnsGrant(t *testing.T) {
	svc := &stubSlotService{grant: allocator.Grant{
		Granted:    true,
		Slot:       2,
		Credential: "tok2",
		Message:    "slot assigned",
	}}
	h := NewSlotHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/slots/request",
		strings.NewReader(`{"session_id": "s1", "holder_identity": "alice"}`))
	rec := httptest.NewRecorder()
	h.Request(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var grant allocator.Grant
	if err := json.NewDecoder(rec.Body).Decode(&grant); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !grant.Granted || grant.Slot != 2 || grant.Credential != "tok2" {
		t.Errorf("grant = %+v", grant)
	}
}

func TestSlotRequestRequiresSessionID(t *testing.T) {
	h := NewSlotHandler(&stubSlotService{})

	for name, body := range map[string]string{
		"missing session": `{"holder_identity": "alice"}`,
		"invalid json":    `{not json`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/slots/request",
				strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.Request(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSlotReleaseAcknowledges(t *testing.T) {
	svc := &stubSlotService{}
	h := NewSlotHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/slots/release",
		strings.NewReader(`{"session_id": "s9"}`))
	rec := httptest.NewRecorder()
	h.Release(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.released) != 1 || svc.released[0] != "s9" {
		t.Errorf("released = %v", svc.released)
	}
}

func TestSlotStatusListsSlots(t *testing.T) {
	svc := &stubSlotService{statuses: []model.SlotStatus{
		{Slot: 1, HolderIdentity: "alice", IsLive: true},
		{Slot: 2},
	}}
	h := NewSlotHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Slots []model.SlotStatus `json:"slots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 2 || resp.Slots[0].HolderIdentity != "alice" {
		t.Errorf("slots = %+v", resp.Slots)
	}
}
