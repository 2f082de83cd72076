package notify

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker guards the push gateway. Notifications are best effort, so when the
// gateway keeps failing we stop hammering it instead of slowing down
// call-event ingestion. After cooldown a single probe decides whether to
// close again.
type breaker struct {
	mu sync.Mutex

	state       breakerState
	failures    int
	successes   int
	openedAt    time.Time
	maxFailures int
	probeQuorum int
	cooldown    time.Duration
}

func newBreaker() *breaker {
	return &breaker{
		state:       breakerClosed,
		maxFailures: 5,
		probeQuorum: 2,
		cooldown:    60 * time.Second,
	}
}

// allow reports whether a send may be attempted right now.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
		b.failures = 0
		b.successes = 0
	}
	return true
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures = 0
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.probeQuorum {
			b.state = breakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case breakerClosed:
		if b.failures >= b.maxFailures {
			b.state = breakerOpen
			b.openedAt = time.Now()
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = time.Now()
		b.successes = 0
	}
}

func (b *breaker) stateName() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
