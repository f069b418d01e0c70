// Package resilience guards calls to external model providers.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// stops hammering a provider once it fails repeatedly. [FallbackGroup] chains
// several providers of the same type behind per-provider breakers so a sick
// primary is skipped in favour of a healthy fallback. [Retry] wraps a single
// call with bounded exponential backoff.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call with [ErrBreakerOpen] until the cooldown
	// elapses.
	BreakerOpen

	// BreakerHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeQuota is how many probe calls the half-open state admits before
	// the breaker decides. Default: 3.
	ProbeQuota int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name       string
	threshold  int
	cooldown   time.Duration
	probeQuota int

	mu         sync.Mutex
	state      BreakerState
	failures   int
	lastFail   time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a closed [Breaker] from cfg, filling defaults for zero
// fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &Breaker{
		name:       cfg.Name,
		threshold:  cfg.Threshold,
		cooldown:   cfg.Cooldown,
		probeQuota: cfg.ProbeQuota,
	}
}

// Do runs fn if the breaker admits the call, then records the outcome.
// In the open state it returns [ErrBreakerOpen] without calling fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.observe(err, probe)
	return err
}

// admit decides whether a call may proceed. The returned bool marks the call
// as a half-open probe for later accounting.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFail) < b.cooldown {
			return false, ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker half-open, probing", "name", b.name)

	case BreakerHalfOpen:
		if b.probes >= b.probeQuota {
			return false, ErrBreakerOpen
		}
	}

	if b.state == BreakerHalfOpen {
		b.probes++
		return true, nil
	}
	return false, nil
}

// observe records the outcome of an admitted call.
func (b *Breaker) observe(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.lastFail = time.Now()
		if probe {
			b.probeFails++
			b.state = BreakerOpen
			b.failures = b.threshold
			slog.Warn("breaker re-opened after failed probe", "name", b.name)
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
			slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
		}
		return
	}

	if probe {
		if b.probes-b.probeFails >= b.probeQuota {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("breaker closed after successful probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current state. An open breaker whose cooldown
// has elapsed reports half-open; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.lastFail) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
	slog.Info("breaker reset", "name", b.name)
}
