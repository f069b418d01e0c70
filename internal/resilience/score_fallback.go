package resilience

import (
	"context"

	"github.com/oratioapp/oratio/pkg/provider/score"
)

// ScoreFallback implements [score.Provider] with failover across multiple
// grading backends. Each backend has its own breaker; when the primary fails
// or its breaker is open, the next healthy fallback grades the interview.
type ScoreFallback struct {
	group *FallbackGroup[score.Provider]
}

// Compile-time interface assertion.
var _ score.Provider = (*ScoreFallback)(nil)

// NewScoreFallback creates a [ScoreFallback] with primary as the preferred
// backend.
func NewScoreFallback(primary score.Provider, primaryName string, cfg FallbackConfig) *ScoreFallback {
	return &ScoreFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional grading backend.
func (f *ScoreFallback) AddFallback(name string, p score.Provider) {
	f.group.AddFallback(name, p)
}

// Score grades the interview with the first healthy backend.
func (f *ScoreFallback) Score(ctx context.Context, req score.Request) (*score.Card, error) {
	return DoWithResult(f.group, func(p score.Provider) (*score.Card, error) {
		return p.Score(ctx, req)
	})
}
