package tenantcache

import (
	"errors"
	"sync"
	"time"
)

var errUnavailable = errors.New("tenantcache: circuit open")

// breaker degrades the cache to a no-op path once consecutive failures
// cross a threshold, and retries after a cooldown rather than hammering a
// down Redis on every request. It doubles as the cache's counter sink:
// hits, misses, sets, failures, last error, and last successful ping.
type breaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	consecutiveFails int
	open             bool
	openedAt         time.Time

	hits, misses, sets, failures int64
	lastError                    string
	lastPing                     time.Time
}

func newBreaker(failureThreshold int, cooldown time.Duration) *breaker {
	return &breaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

// allow reports whether a call should proceed. A half-open trial is allowed
// once the cooldown elapses.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.openedAt) >= b.cooldown {
		return true // half-open trial
	}
	return false
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails = 0
	b.open = false
	b.lastPing = time.Now()
}

func (b *breaker) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.consecutiveFails++
	if err != nil {
		b.lastError = err.Error()
	}
	if b.consecutiveFails >= b.failureThreshold {
		b.open = true
		b.openedAt = time.Now()
	}
}

func (b *breaker) recordHit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits++
}

func (b *breaker) recordMiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.misses++
}

func (b *breaker) recordSet() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets++
}

// Status is a point-in-time snapshot of breaker and counter state.
type Status struct {
	Open              bool   `json:"open"`
	Hits              int64  `json:"hits"`
	Misses            int64  `json:"misses"`
	Sets              int64  `json:"sets"`
	Failures          int64  `json:"failures"`
	LastError         string `json:"last_error,omitempty"`
	LastPingUnix      int64  `json:"last_ping_unix,omitempty"`
	CooldownRemaining int64  `json:"cooldown_remaining_seconds"`
}

func (b *breaker) status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Open:      b.open,
		Hits:      b.hits,
		Misses:    b.misses,
		Sets:      b.sets,
		Failures:  b.failures,
		LastError: b.lastError,
	}
	if !b.lastPing.IsZero() {
		st.LastPingUnix = b.lastPing.Unix()
	}
	if b.open {
		if rem := b.cooldown - time.Since(b.openedAt); rem > 0 {
			st.CooldownRemaining = int64(rem.Seconds())
		}
	}
	return st
}
