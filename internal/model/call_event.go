package model

import "time"

// Call directions as normalized at the webhook boundary.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// CallEvent is the normalized "a call just happened" tuple delivered by the
// telephony provider's webhook. Upstream field-name variability is resolved
// at ingress; nothing past this boundary sees the raw payload.
type CallEvent struct {
	PhoneNumber        string    `json:"phone_number"`
	SourceRecordingURL string    `json:"source_recording_url,omitempty"`
	Direction          string    `json:"direction"`
	Timestamp          time.Time `json:"timestamp"`
	Hotline            string    `json:"hotline,omitempty"`
	DurationSec        int       `json:"duration_sec,omitempty"`
	Disposition        string    `json:"disposition,omitempty"`
}

// DeviceToken is one registered push-notification target.
type DeviceToken struct {
	Token    string `json:"token" bson:"token"`
	Identity string `json:"identity,omitempty" bson:"identity,omitempty"`
}
