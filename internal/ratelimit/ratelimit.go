// Package ratelimit provides per-user sliding window request limits.
//
// Two implementations exist: [RedisLimiter] for multi-node deployments,
// backed by a Redis sorted set per key, and [MemLimiter] for tests and
// single-node use. Both count requests over a rolling window, so a burst at
// the end of one fixed interval cannot be doubled at the start of the next.
package ratelimit

import (
	"context"
	"time"
)

// Policy describes one limit: at most Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Default policies. Mutations cover session creation and the feedback
// workflow; polls cover the status endpoint.
var (
	PolicyMutation = Policy{Limit: 20, Window: 5 * time.Minute}
	PolicyPoll     = Policy{Limit: 120, Window: time.Minute}
)

// Decision is the outcome of a limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the window.
	Remaining int

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter checks a request against a policy. The key identifies who is being
// limited, typically "user:<id>:<route class>". Implementations must be safe
// for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string, p Policy) (Decision, error)
}
