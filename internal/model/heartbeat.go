package model

import "time"

// HeartbeatTimeout is the age past which a slot session is considered dead
// and its slot reclaimable by any requester.
const HeartbeatTimeout = 30 * time.Second

// IsLive reports whether a lease renewed at lastHeartbeat is still alive at now.
// A nil or zero heartbeat means the holder never checked in, which counts as
// dead, not as recently alive.
func IsLive(lastHeartbeat *time.Time, now time.Time, timeout time.Duration) bool {
	if lastHeartbeat == nil || lastHeartbeat.IsZero() {
		return false
	}
	return now.Sub(*lastHeartbeat) < timeout
}
