package ingest

import (
	"testing"
	"time"

	"github.com/tansinh/switchboard/internal/model"
)

func TestParseCallEventsHistoryArray(t *testing.T) {
	body := []byte(`{
		"data": [
			{
				"type_call": "OUT",
				"callee": [{"phone": "0901234567"}],
				"hotline_number": "19001000",
				"time_call": 42,
				"disposition": "ANSWERED",
				"record_file": "https://cdn.provider.vn/recordings/abc123.mp3",
				"date_create": "2026-03-01T09:30:00Z"
			},
			{
				"direction": "inbound",
				"caller": [{"phone": "0907654321"}],
				"hotline": "19001000"
			}
		]
	}`)

	events, err := ParseCallEvents(body)
	if err != nil {
		t.Fatalf("ParseCallEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	out := events[0]
	if out.Direction != model.DirectionOut {
		t.Errorf("direction = %q, want OUT", out.Direction)
	}
	if out.PhoneNumber != "0901234567" {
		t.Errorf("phone = %q, want callee's number", out.PhoneNumber)
	}
	if out.SourceRecordingURL != "https://cdn.provider.vn/recordings/abc123.mp3" {
		t.Errorf("recording URL = %q", out.SourceRecordingURL)
	}
	if out.Hotline != "19001000" || out.DurationSec != 42 || out.Disposition != "ANSWERED" {
		t.Errorf("metadata = %+v", out)
	}
	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if !out.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, want)
	}

	in := events[1]
	if in.Direction != model.DirectionIn {
		t.Errorf("direction = %q, want IN", in.Direction)
	}
	if in.PhoneNumber != "0907654321" {
		t.Errorf("phone = %q, want caller's number", in.PhoneNumber)
	}
	if in.SourceRecordingURL != "" {
		t.Errorf("recording URL should be empty, got %q", in.SourceRecordingURL)
	}
}

func TestParseCallEventsSingleObject(t *testing.T) {
	body := []byte(`{
		"data": {
			"type": "incoming",
			"caller": [{"phone": "0911111111"}],
			"record_file": ["https://cdn.provider.vn/recordings/one.mp3"]
		}
	}`)

	events, err := ParseCallEvents(body)
	if err != nil {
		t.Fatalf("ParseCallEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Direction != model.DirectionIn || events[0].PhoneNumber != "0911111111" {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].SourceRecordingURL != "https://cdn.provider.vn/recordings/one.mp3" {
		t.Errorf("recording URL = %q", events[0].SourceRecordingURL)
	}
}

func TestParseCallEventsDirectionInference(t *testing.T) {
	// No direction field at all: a populated callee implies outbound.
	body := []byte(`{"data": [{"callee": [{"phone": "0922222222"}]}]}`)
	events, err := ParseCallEvents(body)
	if err != nil {
		t.Fatalf("ParseCallEvents() error = %v", err)
	}
	if events[0].Direction != model.DirectionOut {
		t.Errorf("direction = %q, want inferred OUT", events[0].Direction)
	}
	if events[0].PhoneNumber != "0922222222" {
		t.Errorf("phone = %q", events[0].PhoneNumber)
	}
}

func TestParseCallEventsRejectsInvalidRecordingURLs(t *testing.T) {
	urls := []string{
		"short.mp3",
		"ftp://cdn.provider.vn/recordings/file.mp3",
		"https://nodots/recordingfile",
		"https://example.com/recordings/fake.mp3",
		"https://cdn.test.test/recordings/fake.mp3",
		"https://cdn.provider.vn/placeholder/file.mp3",
	}
	for _, url := range urls {
		body := []byte(`{"data": [{"phone": "09", "record_file": "` + url + `"}]}`)
		events, err := ParseCallEvents(body)
		if err != nil {
			t.Fatalf("ParseCallEvents(%q) error = %v", url, err)
		}
		if events[0].SourceRecordingURL != "" {
			t.Errorf("URL %q should be rejected, got %q", url, events[0].SourceRecordingURL)
		}
	}
}

func TestParseCallEventsFirstValidURLWins(t *testing.T) {
	body := []byte(`{"data": [{
		"phone": "0933333333",
		"record_file": ["bad", "https://cdn.provider.vn/recordings/real.mp3"]
	}]}`)
	events, err := ParseCallEvents(body)
	if err != nil {
		t.Fatalf("ParseCallEvents() error = %v", err)
	}
	if events[0].SourceRecordingURL != "https://cdn.provider.vn/recordings/real.mp3" {
		t.Errorf("recording URL = %q", events[0].SourceRecordingURL)
	}
}

func TestParseCallEventsNoData(t *testing.T) {
	for _, body := range []string{`{}`, `{"event": "PING"}`, `{"data": 7}`} {
		events, err := ParseCallEvents([]byte(body))
		if err != nil {
			t.Fatalf("ParseCallEvents(%s) error = %v", body, err)
		}
		if len(events) != 0 {
			t.Errorf("ParseCallEvents(%s) = %d events, want 0", body, len(events))
		}
	}
}

func TestParseCallEventsMalformedBody(t *testing.T) {
	if _, err := ParseCallEvents([]byte("not json at all")); err == nil {
		t.Error("ParseCallEvents() should reject a non-JSON body")
	}
}

func TestParseCallEventsStringDuration(t *testing.T) {
	body := []byte(`{"data": [{"phone": "0944444444", "duration_call": "73"}]}`)
	events, err := ParseCallEvents(body)
	if err != nil {
		t.Fatalf("ParseCallEvents() error = %v", err)
	}
	if events[0].DurationSec != 73 {
		t.Errorf("duration = %d, want 73", events[0].DurationSec)
	}
}
