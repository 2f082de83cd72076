package allocator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tansinh/switchboard/internal/config"
	"github.com/tansinh/switchboard/internal/model"
)

// fakeSlotStore mirrors the conditional-write semantics of the real store:
// claims succeed only when the slot's session still matches the expectation
// the caller observed.
type fakeSlotStore struct {
	mu    sync.Mutex
	slots map[int]*model.Slot
}

func newFakeSlotStore(slotNumbers ...int) *fakeSlotStore {
	s := &fakeSlotStore{slots: make(map[int]*model.Slot)}
	for _, n := range slotNumbers {
		s.slots[n] = &model.Slot{SlotNumber: n}
	}
	return s
}

func (s *fakeSlotStore) List(ctx context.Context, slotNumbers []int) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Slot
	for _, n := range slotNumbers {
		if slot, ok := s.slots[n]; ok {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (s *fakeSlotStore) Get(ctx context.Context, slotNumber int) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotNumber]
	if !ok {
		return nil, nil
	}
	copied := *slot
	return &copied, nil
}

func (s *fakeSlotStore) FindBySession(ctx context.Context, sessionID string) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.SessionID == sessionID && sessionID != "" {
			copied := *slot
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeSlotStore) Claim(ctx context.Context, slotNumber int, expectedSessionID, sessionID, holderIdentity string, isPriority bool, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotNumber]
	if !ok || slot.SessionID != expectedSessionID {
		return false, nil
	}
	hb := now
	slot.SessionID = sessionID
	slot.HolderIdentity = holderIdentity
	slot.IsPriority = isPriority
	slot.LastHeartbeat = &hb
	return true, nil
}

func (s *fakeSlotStore) Renew(ctx context.Context, sessionID, holderIdentity string, isPriority bool, now time.Time) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.SessionID == sessionID {
			hb := now
			slot.HolderIdentity = holderIdentity
			slot.IsPriority = isPriority
			slot.LastHeartbeat = &hb
			copied := *slot
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeSlotStore) Release(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.SessionID == sessionID {
			s.clearLocked(slot)
		}
	}
	return nil
}

func (s *fakeSlotStore) Clear(ctx context.Context, slotNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[slotNumber]; ok {
		s.clearLocked(slot)
	}
	return nil
}

func (s *fakeSlotStore) clearLocked(slot *model.Slot) {
	slot.SessionID = ""
	slot.HolderIdentity = ""
	slot.IsPriority = false
	slot.LastHeartbeat = nil
}

func (s *fakeSlotStore) setHeartbeat(slotNumber int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := at
	s.slots[slotNumber].LastHeartbeat = &hb
}

type fakePriorityStore struct {
	mu         sync.Mutex
	identities map[string]bool
}

func (p *fakePriorityStore) IsPriority(ctx context.Context, identity string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identities[identity], nil
}

func testPool(tokens ...string) *config.CredentialPool {
	padded := make([]string, config.MaxSlots)
	copy(padded, tokens)
	cfg := &config.Config{TelephonyTokens: padded}
	return cfg.CredentialPool()
}

func newTestAllocator(store *fakeSlotStore, priorities *fakePriorityStore, pool *config.CredentialPool) (*Allocator, *time.Time) {
	if priorities == nil {
		priorities = &fakePriorityStore{identities: map[string]bool{}}
	}
	a := New(store, priorities, pool, 30*time.Second, 3, 0)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	a.sleep = func(time.Duration) {}
	return a, &clock
}

func TestRequestNotConfigured(t *testing.T) {
	store := newFakeSlotStore()
	a, _ := newTestAllocator(store, nil, testPool())

	grant, err := a.Request(context.Background(), "s1", "alice")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !grant.NotConfigured || grant.Granted {
		t.Errorf("expected not-configured rejection, got %+v", grant)
	}
}

func TestRequestAssignsSlotsInOrder(t *testing.T) {
	store := newFakeSlotStore(1, 2, 3)
	a, _ := newTestAllocator(store, nil, testPool("tok1", "tok2", "tok3"))
	ctx := context.Background()

	for i, want := range []struct {
		slot       int
		credential string
	}{{1, "tok1"}, {2, "tok2"}, {3, "tok3"}} {
		session := fmt.Sprintf("session-%d", i+1)
		grant, err := a.Request(ctx, session, "user")
		if err != nil {
			t.Fatalf("Request(%s) error = %v", session, err)
		}
		if !grant.Granted || grant.Slot != want.slot || grant.Credential != want.credential {
			t.Errorf("Request(%s) = %+v, want slot %d credential %q",
				session, grant, want.slot, want.credential)
		}
		if grant.OutboundOnly {
			t.Errorf("Request(%s) should be a full grant", session)
		}
	}
}

func TestRequestRenewsExistingAssignment(t *testing.T) {
	store := newFakeSlotStore(1, 2)
	a, _ := newTestAllocator(store, nil, testPool("tok1", "tok2"))
	ctx := context.Background()

	first, err := a.Request(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	again, err := a.Request(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !again.Granted || again.Slot != first.Slot {
		t.Errorf("repeat request moved the session: first slot %d, then %+v", first.Slot, again)
	}

	// The renewal must not consume a second slot.
	other, err := a.Request(ctx, "s2", "bob")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if other.Slot == first.Slot {
		t.Errorf("second session got the same slot %d", other.Slot)
	}
}

func TestRequestReclaimsDeadSlot(t *testing.T) {
	store := newFakeSlotStore(1, 2)
	a, clock := newTestAllocator(store, nil, testPool("tok1", "tok2"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := a.Request(ctx, "s2", "bob"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	// s1 goes silent past the heartbeat timeout.
	*clock = clock.Add(31 * time.Second)
	store.setHeartbeat(2, *clock) // s2 keeps beating

	grant, err := a.Request(ctx, "s3", "carol")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !grant.Granted || grant.Slot != 1 || grant.OutboundOnly {
		t.Errorf("expected reclaim of slot 1, got %+v", grant)
	}

	// The evicted session discovers the loss on its next heartbeat.
	hb, err := a.Heartbeat(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if !hb.Downgraded || !hb.OutboundOnly {
		t.Errorf("evicted session should be downgraded, got %+v", hb)
	}
}

func TestRequestSaturatedNonPriorityGetsDegraded(t *testing.T) {
	store := newFakeSlotStore(1, 2)
	a, _ := newTestAllocator(store, nil, testPool("tok1", "tok2"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := a.Request(ctx, "s2", "bob"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	grant, err := a.Request(ctx, "s3", "carol")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !grant.Granted || !grant.OutboundOnly || grant.Slot != 0 {
		t.Errorf("expected degraded grant, got %+v", grant)
	}
	if grant.Credential != "tok1" {
		t.Errorf("degraded credential = %q, want first configured token", grant.Credential)
	}

	// The degraded grant must not have touched any slot.
	for n := 1; n <= 2; n++ {
		slot, _ := store.Get(ctx, n)
		if slot.SessionID == "s3" {
			t.Errorf("degraded grant stole slot %d", n)
		}
	}
}

func TestPriorityPreemptsOldestHeartbeat(t *testing.T) {
	store := newFakeSlotStore(1, 2)
	priorities := &fakePriorityStore{identities: map[string]bool{"boss": true}}
	a, clock := newTestAllocator(store, priorities, testPool("tok1", "tok2"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	*clock = clock.Add(10 * time.Second)
	if _, err := a.Request(ctx, "s2", "bob"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	*clock = clock.Add(5 * time.Second)

	// Both holders are live; s1 has the older heartbeat and gets kicked.
	grant, err := a.Request(ctx, "p1", "boss")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !grant.Granted || grant.Slot != 1 || !grant.IsPriority {
		t.Errorf("expected preemption of slot 1, got %+v", grant)
	}

	slot, _ := store.Get(ctx, 1)
	if slot.SessionID != "p1" {
		t.Errorf("slot 1 holder = %q, want p1", slot.SessionID)
	}
	other, _ := store.Get(ctx, 2)
	if other.SessionID != "s2" {
		t.Errorf("slot 2 should be untouched, holder = %q", other.SessionID)
	}
}

func TestPriorityRejectedWhenAllSlotsPriority(t *testing.T) {
	store := newFakeSlotStore(1, 2)
	priorities := &fakePriorityStore{identities: map[string]bool{
		"boss1": true, "boss2": true, "boss3": true,
	}}
	a, _ := newTestAllocator(store, priorities, testPool("tok1", "tok2"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "p1", "boss1"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := a.Request(ctx, "p2", "boss2"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	grant, err := a.Request(ctx, "p3", "boss3")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !grant.NoSlot || grant.Granted {
		t.Errorf("expected explicit rejection, got %+v", grant)
	}
}

func TestHeartbeatRenewsAndRefreshesPriority(t *testing.T) {
	store := newFakeSlotStore(1)
	priorities := &fakePriorityStore{identities: map[string]bool{}}
	a, clock := newTestAllocator(store, priorities, testPool("tok1"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	*clock = clock.Add(20 * time.Second)
	grant, err := a.Heartbeat(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if !grant.Granted || grant.Slot != 1 || grant.Downgraded {
		t.Errorf("expected renewal, got %+v", grant)
	}

	slot, _ := store.Get(ctx, 1)
	if !slot.LastHeartbeat.Equal(*clock) {
		t.Errorf("heartbeat not refreshed: %v", slot.LastHeartbeat)
	}

	// Promotion between heartbeats is picked up on the next one.
	priorities.identities["alice"] = true
	grant, err = a.Heartbeat(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if !grant.IsPriority {
		t.Errorf("heartbeat should reflect promotion, got %+v", grant)
	}
	slot, _ = store.Get(ctx, 1)
	if !slot.IsPriority {
		t.Error("slot row should carry the refreshed priority flag")
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	store := newFakeSlotStore(1)
	a, _ := newTestAllocator(store, nil, testPool("tok1"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if err := a.Release(ctx, "s1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	// Releasing again is a no-op.
	if err := a.Release(ctx, "s1"); err != nil {
		t.Fatalf("repeat Release() error = %v", err)
	}

	grant, err := a.Request(ctx, "s2", "bob")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !grant.Granted || grant.Slot != 1 {
		t.Errorf("released slot should be reassignable, got %+v", grant)
	}
}

func TestRequestClearsUnconfiguredSlot(t *testing.T) {
	// Session s1 holds slot 2, then the admin removes slot 2's credential.
	store := newFakeSlotStore(1, 2)
	a, _ := newTestAllocator(store, nil, testPool("tok1", "tok2"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "other", "bob"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	first, err := a.Request(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if first.Slot != 2 {
		t.Fatalf("setup: expected slot 2, got %d", first.Slot)
	}

	shrunk := testPool("tok1")
	a.pool = shrunk

	grant, err := a.Request(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	// Slot 1 is live under another session, so s1 lands on the degraded
	// credential, and the orphaned row must be cleared.
	if !grant.Granted || !grant.OutboundOnly {
		t.Errorf("expected degraded grant after credential removal, got %+v", grant)
	}
	slot, _ := store.Get(ctx, 2)
	if slot.SessionID != "" {
		t.Errorf("orphaned slot row not cleared: %+v", slot)
	}
}

func TestStatusReportsLiveness(t *testing.T) {
	store := newFakeSlotStore(1, 2)
	a, clock := newTestAllocator(store, nil, testPool("tok1", "tok2"))
	ctx := context.Background()

	if _, err := a.Request(ctx, "s1", "alice"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	*clock = clock.Add(31 * time.Second)

	statuses, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Status() returned %d slots, want 2", len(statuses))
	}
	if statuses[0].IsLive {
		t.Error("slot 1 should be reported dead after timeout")
	}
	if statuses[0].HolderIdentity != "alice" {
		t.Errorf("slot 1 holder = %q, want alice", statuses[0].HolderIdentity)
	}
	if statuses[1].IsLive || statuses[1].HolderIdentity != "" {
		t.Errorf("slot 2 should be empty, got %+v", statuses[1])
	}
}

func TestConcurrentRequestsGrantDistinctSlots(t *testing.T) {
	const sessions = 20
	store := newFakeSlotStore(1, 2, 3, 4, 5)
	a, _ := newTestAllocator(store, nil, testPool("t1", "t2", "t3", "t4", "t5"))
	ctx := context.Background()

	grants := make([]Grant, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := a.Request(ctx, fmt.Sprintf("s%d", i), "user")
			if err != nil {
				t.Errorf("Request() error = %v", err)
				return
			}
			grants[i] = g
		}(i)
	}
	wg.Wait()

	owners := make(map[int]string)
	for i, g := range grants {
		if !g.Granted {
			t.Errorf("session %d got no usable grant: %+v", i, g)
			continue
		}
		if g.Slot == 0 {
			continue // degraded, shared by design
		}
		if prev, taken := owners[g.Slot]; taken {
			t.Errorf("slot %d granted to both %s and s%d", g.Slot, prev, i)
		}
		owners[g.Slot] = fmt.Sprintf("s%d", i)
	}

	// Store state must agree with the grants.
	for n := 1; n <= 5; n++ {
		slot, _ := store.Get(ctx, n)
		if slot.SessionID == "" {
			t.Errorf("slot %d ended unassigned under full contention", n)
		}
	}
}
