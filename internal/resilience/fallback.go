package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each member of a
// [FallbackGroup]. The Name field is overwritten per member.
type FallbackConfig struct {
	Breaker BreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup chains a primary and any number of fallbacks of the same
// provider type. Members are tried in registration order; a member whose
// breaker is open is skipped without a call.
//
// FallbackGroup is safe for concurrent use once assembled. Register all
// members before the first Do.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as the first member.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends another member, tried after everything registered
// before it.
func (g *FallbackGroup[T]) AddFallback(name string, v T) {
	g.add(name, v)
}

func (g *FallbackGroup[T]) add(name string, v T) {
	bc := g.cfg.Breaker
	bc.Name = name
	g.members = append(g.members, member[T]{
		name:    name,
		value:   v,
		breaker: NewBreaker(bc),
	})
}

// Do tries fn against each member in order until one succeeds. If every
// member fails, the last error is wrapped in [ErrAllFailed].
func (g *FallbackGroup[T]) Do(fn func(T) error) error {
	var lastErr error
	for i := range g.members {
		m := &g.members[i]
		err := m.breaker.Do(func() error { return fn(m.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", m.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// DoWithResult tries fn against each member of g until one succeeds and
// returns its result. A package-level function because Go methods cannot take
// extra type parameters.
func DoWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Do(func() error {
			var inner error
			result, inner = fn(m.value)
			return inner
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", m.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
