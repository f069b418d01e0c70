package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Limiter = (*MemLimiter)(nil)

// MemLimiter is an in-memory sliding window limiter for tests and single-node
// deployments.
type MemLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// NewMemLimiter returns an empty MemLimiter.
func NewMemLimiter() *MemLimiter {
	return &MemLimiter{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow implements [Limiter].
func (l *MemLimiter) Allow(_ context.Context, key string, p Policy) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-p.Window)

	kept := l.entries[key][:0]
	for _, at := range l.entries[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	l.entries[key] = kept

	if len(kept) >= p.Limit {
		retryAfter := kept[0].Add(p.Window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	l.entries[key] = append(kept, now)
	return Decision{Allowed: true, Remaining: p.Limit - len(kept) - 1}, nil
}
