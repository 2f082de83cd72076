package model

import "time"

// Slot is one allocatable telephony credential from the fixed pool.
// One row exists per configured credential; rows are provisioned once and
// only ever mutated on request/heartbeat/release/preemption, never deleted.
type Slot struct {
	SlotNumber     int        `json:"slot_number" bson:"slot_number"`
	SessionID      string     `json:"session_id,omitempty" bson:"session_id,omitempty"`
	HolderIdentity string     `json:"holder_identity,omitempty" bson:"holder_identity,omitempty"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty" bson:"last_heartbeat,omitempty"`
	IsPriority     bool       `json:"is_priority" bson:"is_priority"`
}

// Live reports whether the slot is currently owned by a session with a fresh
// heartbeat. A slot that is not live is reclaimable.
func (s *Slot) Live(now time.Time, timeout time.Duration) bool {
	if s.SessionID == "" {
		return false
	}
	return IsLive(s.LastHeartbeat, now, timeout)
}

// SlotStatus is the read-only view of a slot returned by status queries.
type SlotStatus struct {
	Slot           int        `json:"slot"`
	HolderIdentity string     `json:"holder_identity,omitempty"`
	IsLive         bool       `json:"is_live"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
	IsPriority     bool       `json:"is_priority"`
}
