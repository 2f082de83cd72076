package model

import "time"

// Lease is a time-bounded, exclusively-held record of ownership over a named
// resource. It is mutated only via atomic conditional writes: a write that
// matches nothing is a normal "not granted" result, not an error.
type Lease struct {
	LockName   string     `json:"lock_name" bson:"lock_name"`
	HolderID   string     `json:"holder_id,omitempty" bson:"holder_id,omitempty"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty" bson:"acquired_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

// Available reports whether the lease can be taken: no holder, or the
// previous holder's term has expired.
func (l *Lease) Available(now time.Time) bool {
	if l.HolderID == "" {
		return true
	}
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
