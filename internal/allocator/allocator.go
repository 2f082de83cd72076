package allocator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tansinh/switchboard/internal/config"
	"github.com/tansinh/switchboard/internal/model"
)

// SlotStore is the slot-row persistence the allocator coordinates through.
// Every mutating decision is re-validated at write time: Claim is conditioned
// on the previously observed session, so a stale snapshot can lose the race
// but never corrupt an assignment.
type SlotStore interface {
	List(ctx context.Context, slotNumbers []int) ([]model.Slot, error)
	Get(ctx context.Context, slotNumber int) (*model.Slot, error)
	FindBySession(ctx context.Context, sessionID string) (*model.Slot, error)
	Claim(ctx context.Context, slotNumber int, expectedSessionID, sessionID, holderIdentity string, isPriority bool, now time.Time) (bool, error)
	Renew(ctx context.Context, sessionID, holderIdentity string, isPriority bool, now time.Time) (*model.Slot, error)
	Release(ctx context.Context, sessionID string) error
	Clear(ctx context.Context, slotNumber int) error
}

// PriorityStore answers priority-class membership queries.
type PriorityStore interface {
	IsPriority(ctx context.Context, identity string) (bool, error)
}

// Grant is the typed outcome of a slot request or heartbeat. Contention never
// surfaces as an error; a denied request still resolves to a usable
// credential unless the pool is entirely unconfigured.
type Grant struct {
	Granted       bool   `json:"granted"`
	Slot          int    `json:"slot"`
	Credential    string `json:"credential,omitempty"`
	IsPriority    bool   `json:"is_priority"`
	OutboundOnly  bool   `json:"outbound_only,omitempty"`
	Downgraded    bool   `json:"downgraded,omitempty"`
	NoSlot        bool   `json:"no_slot,omitempty"`
	NotConfigured bool   `json:"not_configured,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Allocator distributes the fixed pool of telephony credential slots among
// concurrent, uncoordinated sessions. All coordination goes through the
// store's conditional writes; nothing is cached in-process across calls.
type Allocator struct {
	slots      SlotStore
	priorities PriorityStore
	pool       *config.CredentialPool

	heartbeatTimeout time.Duration
	writeRetries     int
	writeBackoff     time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// allocationPasses bounds how many times a losing racer re-runs the full
// allocation scan before settling for the degraded credential.
const allocationPasses = 3

// New creates an allocator over the given stores and credential pool.
func New(slots SlotStore, priorities PriorityStore, pool *config.CredentialPool, heartbeatTimeout time.Duration, writeRetries int, writeBackoff time.Duration) *Allocator {
	if writeRetries < 1 {
		writeRetries = 1
	}
	return &Allocator{
		slots:            slots,
		priorities:       priorities,
		pool:             pool,
		heartbeatTimeout: heartbeatTimeout,
		writeRetries:     writeRetries,
		writeBackoff:     writeBackoff,
		now:              time.Now,
		sleep:            time.Sleep,
	}
}

// Request assigns a slot to the session, renewing an existing assignment when
// one survives. When the pool is saturated a priority requester may preempt
// the stalest non-priority holder; a non-priority requester falls back to the
// shared outbound-only credential.
func (a *Allocator) Request(ctx context.Context, sessionID, identity string) (Grant, error) {
	if a.pool.Empty() {
		return Grant{NotConfigured: true, Message: "no telephony credentials configured"}, nil
	}

	isPriority, err := a.priorities.IsPriority(ctx, identity)
	if err != nil {
		return Grant{}, err
	}

	now := a.now()

	// Renewal path: the session may already own a slot.
	existing, err := a.slots.FindBySession(ctx, sessionID)
	if err != nil {
		return Grant{}, err
	}
	if existing != nil {
		if _, configured := a.pool.Credential(existing.SlotNumber); configured {
			if grant, ok, err := a.renewExisting(ctx, sessionID, identity, isPriority, now); err != nil {
				return Grant{}, err
			} else if ok {
				return grant, nil
			}
			// Renewal raced away; allocate from scratch.
		} else {
			// The admin removed this slot's credential. Clear the row
			// and treat the session as unowned.
			slog.Info("Clearing slot with unconfigured credential",
				"slot", existing.SlotNumber,
				"session_id", sessionID,
			)
			if err := a.slots.Clear(ctx, existing.SlotNumber); err != nil {
				return Grant{}, err
			}
		}
	}

	for pass := 0; pass < allocationPasses; pass++ {
		grant, done, err := a.allocate(ctx, sessionID, identity, isPriority)
		if err != nil {
			return Grant{}, err
		}
		if done {
			return grant, nil
		}
		// Conditional write matched nothing: another session landed on the
		// candidate first. Re-scan from a fresh snapshot.
		slog.Debug("Allocation pass lost race, rescanning",
			"session_id", sessionID,
			"pass", pass+1,
		)
	}

	// Contention exhausted every pass. Hand out the degraded credential so
	// the requester is never left without a way to place calls.
	return a.degraded(isPriority, "slot contention, using shared outbound-only credential"), nil
}

// allocate performs one full scan-and-claim pass. done is false when the
// chosen candidate was stolen between snapshot and write.
func (a *Allocator) allocate(ctx context.Context, sessionID, identity string, isPriority bool) (Grant, bool, error) {
	now := a.now()

	all, err := a.slots.List(ctx, a.pool.SlotNumbers())
	if err != nil {
		return Grant{}, false, err
	}
	if len(all) == 0 {
		return Grant{NotConfigured: true, Message: "no credential slots provisioned"}, true, nil
	}

	// First reclaimable slot wins: empty, never heartbeated, or expired.
	// Ascending slot order keeps the scan deterministic.
	for _, s := range all {
		if !s.Live(now, a.heartbeatTimeout) {
			return a.claim(ctx, s.SlotNumber, s.SessionID, sessionID, identity, isPriority)
		}
	}

	// Every configured slot is live.
	if !isPriority {
		return a.degraded(false, "all slots busy, outbound calls only"), true, nil
	}

	return a.preempt(ctx, all, sessionID, identity, now)
}

// preempt kicks the stalest live non-priority holder for a priority
// requester. The candidate is re-read immediately before the write; if it
// changed hands or became priority in the interim, the next-oldest candidate
// is tried instead.
func (a *Allocator) preempt(ctx context.Context, all []model.Slot, sessionID, identity string, now time.Time) (Grant, bool, error) {
	var kickable []model.Slot
	for _, s := range all {
		if s.Live(now, a.heartbeatTimeout) && !s.IsPriority {
			kickable = append(kickable, s)
		}
	}
	sort.Slice(kickable, func(i, j int) bool {
		return kickable[i].LastHeartbeat.Before(*kickable[j].LastHeartbeat)
	})

	for _, candidate := range kickable {
		fresh, err := a.slots.Get(ctx, candidate.SlotNumber)
		if err != nil {
			return Grant{}, false, err
		}
		if fresh == nil || fresh.IsPriority || fresh.SessionID == "" {
			slog.Debug("Preemption candidate changed, trying next",
				"slot", candidate.SlotNumber,
			)
			continue
		}

		slog.Info("Priority requester preempting non-priority session",
			"slot", fresh.SlotNumber,
			"kicked_session", fresh.SessionID,
			"kicked_identity", fresh.HolderIdentity,
			"requester", identity,
		)
		return a.claim(ctx, fresh.SlotNumber, fresh.SessionID, sessionID, identity, true)
	}

	// No live non-priority holder. A dead slot here would contradict the
	// reclaim scan, but take it rather than reject on a stale snapshot.
	for _, s := range all {
		if !s.Live(now, a.heartbeatTimeout) {
			return a.claim(ctx, s.SlotNumber, s.SessionID, sessionID, identity, true)
		}
	}

	// All slots live and priority-held. Explicit rejection, no tie-break
	// between priority requesters.
	return Grant{
		NoSlot:     true,
		IsPriority: true,
		Message:    "all slots are in use by priority sessions",
	}, true, nil
}

// claim writes the assignment with bounded retry against transient store
// failures. A conditional miss (raced) is reported as done=false so the
// caller re-runs the allocation procedure.
func (a *Allocator) claim(ctx context.Context, slotNumber int, expectedSessionID, sessionID, identity string, isPriority bool) (Grant, bool, error) {
	credential, _ := a.pool.Credential(slotNumber)

	var lastErr error
	for attempt := 1; attempt <= a.writeRetries; attempt++ {
		ok, err := a.slots.Claim(ctx, slotNumber, expectedSessionID, sessionID, identity, isPriority, a.now())
		if err != nil {
			lastErr = err
			slog.Warn("Slot claim write failed",
				"slot", slotNumber,
				"attempt", attempt,
				"error", err,
			)
			if attempt < a.writeRetries {
				a.sleep(a.writeBackoff)
			}
			continue
		}
		if !ok {
			return Grant{}, false, nil
		}
		return Grant{
			Granted:    true,
			Slot:       slotNumber,
			Credential: credential,
			IsPriority: isPriority,
			Message:    "slot assigned",
		}, true, nil
	}

	return Grant{}, false, lastErr
}

// renewExisting refreshes an existing assignment. ok is false when the
// session lost its slot between lookup and renewal.
func (a *Allocator) renewExisting(ctx context.Context, sessionID, identity string, isPriority bool, now time.Time) (Grant, bool, error) {
	var renewed *model.Slot
	var lastErr error
	for attempt := 1; attempt <= a.writeRetries; attempt++ {
		slot, err := a.slots.Renew(ctx, sessionID, identity, isPriority, now)
		if err != nil {
			lastErr = err
			slog.Warn("Heartbeat renewal write failed",
				"session_id", sessionID,
				"attempt", attempt,
				"error", err,
			)
			if attempt < a.writeRetries {
				a.sleep(a.writeBackoff)
			}
			continue
		}
		renewed = slot
		lastErr = nil
		break
	}
	if lastErr != nil {
		return Grant{}, false, lastErr
	}
	if renewed == nil {
		return Grant{}, false, nil
	}

	credential, _ := a.pool.Credential(renewed.SlotNumber)
	return Grant{
		Granted:    true,
		Slot:       renewed.SlotNumber,
		Credential: credential,
		IsPriority: isPriority,
		Message:    "existing session renewed",
	}, true, nil
}

// Heartbeat renews the session's slot and refreshes its priority flag, which
// can change between heartbeats. A session whose slot was preempted or
// expired is downgraded to the shared outbound-only credential instead of
// being cut off.
func (a *Allocator) Heartbeat(ctx context.Context, sessionID, identity string) (Grant, error) {
	if a.pool.Empty() {
		return Grant{NotConfigured: true, Message: "no telephony credentials configured"}, nil
	}

	isPriority, err := a.priorities.IsPriority(ctx, identity)
	if err != nil {
		return Grant{}, err
	}

	slot, err := a.slots.Renew(ctx, sessionID, identity, isPriority, a.now())
	if err != nil {
		return Grant{}, err
	}
	if slot == nil {
		slog.Info("Session lost its slot, downgrading to outbound-only",
			"session_id", sessionID,
		)
		g := a.degraded(isPriority, "slot was reassigned, outbound calls only")
		g.Downgraded = true
		return g, nil
	}

	return Grant{
		Granted:    true,
		Slot:       slot.SlotNumber,
		IsPriority: isPriority,
		Message:    "heartbeat received",
	}, nil
}

// Release clears the session's slot. Releasing a session without a slot is a
// no-op, so callers may retry freely.
func (a *Allocator) Release(ctx context.Context, sessionID string) error {
	return a.slots.Release(ctx, sessionID)
}

// Status returns the read-only per-slot view for the configured pool.
func (a *Allocator) Status(ctx context.Context) ([]model.SlotStatus, error) {
	all, err := a.slots.List(ctx, a.pool.SlotNumbers())
	if err != nil {
		return nil, err
	}

	now := a.now()
	statuses := make([]model.SlotStatus, 0, len(all))
	for _, s := range all {
		statuses = append(statuses, model.SlotStatus{
			Slot:           s.SlotNumber,
			HolderIdentity: s.HolderIdentity,
			IsLive:         s.Live(now, a.heartbeatTimeout),
			LastHeartbeat:  s.LastHeartbeat,
			IsPriority:     s.IsPriority,
		})
	}

	return statuses, nil
}

// degraded builds the shared outbound-only grant: slot 0, first configured
// credential, no inbound identity.
func (a *Allocator) degraded(isPriority bool, message string) Grant {
	return Grant{
		Granted:      true,
		Slot:         0,
		Credential:   a.pool.Fallback(),
		IsPriority:   isPriority,
		OutboundOnly: true,
		Message:      message,
	}
}
