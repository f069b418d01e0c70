// Package mock provides a test double for the score package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/oratioapp/oratio/pkg/provider/score"
)

// Ensure Provider implements score.Provider at compile time.
var _ score.Provider = (*Provider)(nil)

// Provider is a mock implementation of score.Provider.
type Provider struct {
	mu sync.Mutex

	// Card is returned by Score when ScoreFunc is nil. If both are nil, a
	// minimal valid card is returned.
	Card *score.Card

	// ScoreErr, if non-nil, is returned as the error from Score.
	ScoreErr error

	// ScoreFunc, if set, handles Score calls entirely. Useful for scripting
	// per-call behaviour such as failing N times then succeeding.
	ScoreFunc func(ctx context.Context, req score.Request) (*score.Card, error)

	// ScoreCalls records every request passed to Score in order.
	ScoreCalls []score.Request
}

// Score records the call and returns the configured result.
func (p *Provider) Score(ctx context.Context, req score.Request) (*score.Card, error) {
	p.mu.Lock()
	p.ScoreCalls = append(p.ScoreCalls, req)
	fn := p.ScoreFunc
	card := p.Card
	errVal := p.ScoreErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if errVal != nil {
		return nil, errVal
	}
	if card != nil {
		return card, nil
	}
	return ValidCard(), nil
}

// CallCount returns how many times Score was called. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ScoreCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScoreCalls = nil
}

// ValidCard returns a minimal card that passes score.Card.Validate. Tests can
// mutate the copy freely.
func ValidCard() *score.Card {
	cats := make([]score.CategoryScore, 0, 5)
	for _, c := range score.Categories() {
		cats = append(cats, score.CategoryScore{Category: c, Score: 70, Comment: "solid"})
	}
	return &score.Card{
		Total:           72,
		Recommendation:  score.RecommendationHire,
		Categories:      cats,
		Strengths:       []string{"clear explanations"},
		Improvements:    []string{"quantify impact"},
		Coaching:        "Practice the STAR format for behavioural answers.",
		FinalAssessment: "A solid performance with room to grow.",
	}
}
