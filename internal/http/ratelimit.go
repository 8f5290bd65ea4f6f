package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter rate-limits by key (webhook sender address). Idle keys
// are pruned so a long-running process does not accumulate one limiter
// per sender forever.
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows rpm requests per minute per key with the given
// burst. rpm <= 0 disables limiting.
func NewKeyedLimiter(rpm, burst int) *KeyedLimiter {
	if rpm <= 0 {
		return &KeyedLimiter{}
	}
	return &KeyedLimiter{
		limit:   rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *KeyedLimiter) Enabled() bool { return l.entries != nil }

// Allow reports whether a request for key may proceed now.
func (l *KeyedLimiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
		l.pruneLocked()
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// pruneLocked drops entries idle for over an hour. Called with mu held,
// on the entry-creation path only, so prune cost stays off the hot path.
func (l *KeyedLimiter) pruneLocked() {
	cutoff := time.Now().Add(-time.Hour)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
