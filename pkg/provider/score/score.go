// Package score defines the Provider interface for interview feedback
// generation backends.
//
// A score provider takes the finished interview transcript and produces a
// structured scorecard: an overall score, a hiring recommendation, per-skill
// category breakdowns and written coaching. Implementations wrap an LLM
// backend; the package-level types pin down the output contract so every
// backend produces the same shape.
package score

import (
	"context"
	"fmt"
	"time"
)

// Recommendation is the hiring verdict on a scorecard.
type Recommendation string

// Valid recommendation values, from strongest to weakest.
const (
	RecommendationStrongHire   Recommendation = "strong_hire"
	RecommendationHire         Recommendation = "hire"
	RecommendationNoHire       Recommendation = "no_hire"
	RecommendationStrongNoHire Recommendation = "strong_no_hire"
)

// IsValid reports whether r is one of the defined recommendation values.
func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendationStrongHire, RecommendationHire,
		RecommendationNoHire, RecommendationStrongNoHire:
		return true
	}
	return false
}

// Category names one of the fixed skill dimensions every scorecard grades.
type Category string

// The five categories every scorecard must contain, in canonical order.
const (
	CategoryCommunication  Category = "communication"
	CategoryTechnical      Category = "technical"
	CategoryProblemSolving Category = "problem_solving"
	CategoryCulturalFit    Category = "cultural_fit"
	CategoryConfidence     Category = "confidence"
)

// Categories returns the canonical category list in grading order.
func Categories() []Category {
	return []Category{
		CategoryCommunication,
		CategoryTechnical,
		CategoryProblemSolving,
		CategoryCulturalFit,
		CategoryConfidence,
	}
}

// CategoryScore grades a single skill dimension.
type CategoryScore struct {
	Category Category `json:"category"`
	Score    int      `json:"score"` // 0..100
	Comment  string   `json:"comment"`
}

// Card is a complete interview scorecard.
type Card struct {
	// Total is the overall score, 0..100.
	Total int `json:"total_score"`

	// Recommendation is the hiring verdict.
	Recommendation Recommendation `json:"recommendation"`

	// Categories grades each of the five fixed skill dimensions.
	Categories []CategoryScore `json:"categories"`

	// Tags are short topical labels extracted from the interview.
	Tags []string `json:"tags,omitempty"`

	// Strengths lists what the candidate did well.
	Strengths []string `json:"strengths"`

	// Improvements lists concrete areas to work on.
	Improvements []string `json:"improvements"`

	// Coaching is actionable practice advice for the candidate.
	Coaching string `json:"coaching"`

	// FinalAssessment is the closing written summary.
	FinalAssessment string `json:"final_assessment"`
}

// Validate checks that the card honours the output contract: scores in
// bounds, a known recommendation, and exactly the five canonical categories.
func (c *Card) Validate() error {
	if c.Total < 0 || c.Total > 100 {
		return fmt.Errorf("score: total %d out of range [0, 100]", c.Total)
	}
	if !c.Recommendation.IsValid() {
		return fmt.Errorf("score: unknown recommendation %q", c.Recommendation)
	}

	want := Categories()
	if len(c.Categories) != len(want) {
		return fmt.Errorf("score: got %d categories, want %d", len(c.Categories), len(want))
	}
	seen := make(map[Category]bool, len(want))
	for _, cs := range c.Categories {
		if seen[cs.Category] {
			return fmt.Errorf("score: duplicate category %q", cs.Category)
		}
		seen[cs.Category] = true
		if cs.Score < 0 || cs.Score > 100 {
			return fmt.Errorf("score: category %q score %d out of range [0, 100]", cs.Category, cs.Score)
		}
	}
	for _, cat := range want {
		if !seen[cat] {
			return fmt.Errorf("score: missing category %q", cat)
		}
	}
	return nil
}

// Request carries everything a provider needs to grade one interview.
type Request struct {
	// Role is the position interviewed for, e.g. "Senior Backend Engineer".
	Role string

	// Seniority is the experience level, e.g. "senior". May be empty.
	Seniority string

	// Transcript is the full interview dialogue formatted as a flat script,
	// one "Speaker: text" line per utterance.
	Transcript string

	// Duration is how long the interview ran. Zero if unknown.
	Duration time.Duration
}

// Provider is the abstraction over any feedback generation backend.
//
// Implementations must be safe for concurrent use; Score may be called for
// multiple interviews at once.
type Provider interface {
	// Score grades the interview in req and returns a validated scorecard.
	// Implementations must return an error rather than an out-of-contract
	// card, so callers can retry.
	Score(ctx context.Context, req Request) (*Card, error)
}
