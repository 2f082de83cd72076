package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"
	"github.com/tansinh/switchboard/internal/model"
)

// ParseCallEvents normalizes a provider webhook body into call events. The
// provider is loose about shape: history exports put call records in a data
// array, live events send a single data object, and field names drift between
// payload versions. Probing by path keeps the variants in one place.
func ParseCallEvents(body []byte) ([]model.CallEvent, error) {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	records := callRecords(payload)
	if len(records) == 0 {
		return nil, nil
	}

	events := make([]model.CallEvent, 0, len(records))
	for _, record := range records {
		events = append(events, parseRecord(record))
	}
	return events, nil
}

// callRecords extracts the per-call records from the payload envelope.
func callRecords(payload interface{}) []interface{} {
	data, err := jsonpath.JsonPathLookup(payload, "$.data")
	if err != nil {
		return nil
	}
	switch v := data.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		return []interface{}{v}
	default:
		return nil
	}
}

func parseRecord(record interface{}) model.CallEvent {
	direction := detectDirection(record)

	return model.CallEvent{
		PhoneNumber:        detectPhoneNumber(record, direction),
		SourceRecordingURL: recordingURL(record),
		Direction:          direction,
		Timestamp:          callTimestamp(record),
		Hotline:            lookupString(record, "$.hotline_number", "$.hotline"),
		DurationSec:        lookupInt(record, "$.time_call", "$.duration_call", "$.duration"),
		Disposition:        lookupString(record, "$.disposition"),
	}
}

// detectDirection resolves the call direction across the field names the
// provider has used, falling back to structure: a populated callee means an
// outbound call, a populated caller an inbound one.
func detectDirection(record interface{}) string {
	raw := lookupString(record, "$.type_call", "$.direction", "$.call_direction", "$.type")
	if raw != "" {
		normalized := strings.ToUpper(strings.TrimSpace(raw))
		if strings.Contains(normalized, "OUT") || normalized == "O" {
			return model.DirectionOut
		}
		if strings.Contains(normalized, "IN") || normalized == "I" {
			return model.DirectionIn
		}
	}

	if lookupString(record, "$.callee[0].phone") != "" {
		return model.DirectionOut
	}
	if lookupString(record, "$.caller[0].phone") != "" {
		return model.DirectionIn
	}
	return model.DirectionOut
}

// detectPhoneNumber picks the external party's number: the callee for
// outbound calls, the caller for inbound.
func detectPhoneNumber(record interface{}, direction string) string {
	var paths []string
	if direction == model.DirectionOut {
		paths = []string{"$.callee[0].phone", "$.caller[0].phone", "$.phone"}
	} else {
		paths = []string{"$.caller[0].phone", "$.callee[0].phone", "$.phone"}
	}
	if phone := lookupString(record, paths...); phone != "" {
		return phone
	}
	return "unknown"
}

// recordingURL returns the first valid recording URL, or empty. The provider
// sometimes sends record_file as a string and sometimes as an array, and has
// been seen sending placeholders.
func recordingURL(record interface{}) string {
	raw, err := jsonpath.JsonPathLookup(record, "$.record_file")
	if err != nil {
		return ""
	}

	var candidates []string
	switch v := raw.(type) {
	case string:
		candidates = []string{v}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	for _, candidate := range candidates {
		if validRecordingURL(candidate) {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

func validRecordingURL(raw string) bool {
	url := strings.TrimSpace(raw)
	if len(url) < 20 {
		return false
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}
	afterProtocol := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if !strings.Contains(afterProtocol, ".") {
		return false
	}
	lower := strings.ToLower(url)
	if strings.Contains(lower, "example.com") ||
		strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "test.test") {
		return false
	}
	return true
}

func callTimestamp(record interface{}) time.Time {
	raw := lookupString(record, "$.date_create", "$.call_date", "$.created_at")
	if raw != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
		// Unix seconds show up in some history exports.
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
	}
	if secs := lookupInt(record, "$.date_create", "$.timestamp"); secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	return time.Now().UTC()
}

// lookupString returns the first non-empty string found at the given paths.
func lookupString(record interface{}, paths ...string) string {
	for _, path := range paths {
		value, err := jsonpath.JsonPathLookup(record, path)
		if err != nil {
			continue
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// lookupInt returns the first numeric value found at the given paths. Numbers
// arrive both as JSON numbers and as quoted strings.
func lookupInt(record interface{}, paths ...string) int {
	for _, path := range paths {
		value, err := jsonpath.JsonPathLookup(record, path)
		if err != nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}
