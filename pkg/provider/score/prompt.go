package score

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SystemPrompt is the grading instruction shared by all LLM-backed providers.
// Keeping it in one place guarantees every backend grades against the same
// rubric, so a fallback backend produces comparable cards.
const SystemPrompt = `You are an experienced hiring panel reviewer grading a mock job interview.
Grade strictly but fairly, based only on what the candidate actually said.

Produce a JSON scorecard with:
- total_score: overall performance, integer 0-100
- recommendation: one of "strong_hire", "hire", "no_hire", "strong_no_hire"
- categories: exactly five entries, in this order, each with "category",
  integer "score" 0-100 and a short "comment":
  communication, technical, problem_solving, cultural_fit, confidence
- tags: up to 8 short topical labels for skills discussed
- strengths: concrete things the candidate did well
- improvements: concrete areas to work on
- coaching: actionable practice advice, 2-4 sentences
- final_assessment: a closing written summary, 2-4 sentences

Respond with the JSON object only.`

// BuildUserPrompt formats a grading request as the user message for the model.
func BuildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Role: %s\n", req.Role)
	if req.Seniority != "" {
		fmt.Fprintf(&b, "Seniority: %s\n", req.Seniority)
	}
	if req.Duration > 0 {
		fmt.Fprintf(&b, "Interview duration: %s\n", req.Duration.Round(time.Second))
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(req.Transcript)

	return b.String()
}

// ParseCard decodes and validates a model response into a Card. It tolerates
// markdown code fences, which some backends wrap around JSON despite
// instructions.
func ParseCard(content string) (*Card, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var card Card
	if err := json.Unmarshal([]byte(content), &card); err != nil {
		return nil, fmt.Errorf("score: decode card: %w", err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}

// CardSchema is the JSON schema enforced by backends that support structured
// output.
func CardSchema() map[string]any {
	categoryEnum := make([]string, 0, 5)
	for _, c := range Categories() {
		categoryEnum = append(categoryEnum, string(c))
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"total_score", "recommendation", "categories", "tags",
			"strengths", "improvements", "coaching", "final_assessment",
		},
		"properties": map[string]any{
			"total_score": map[string]any{
				"type": "integer", "minimum": 0, "maximum": 100,
			},
			"recommendation": map[string]any{
				"type": "string",
				"enum": []string{"strong_hire", "hire", "no_hire", "strong_no_hire"},
			},
			"categories": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"category", "score", "comment"},
					"properties": map[string]any{
						"category": map[string]any{"type": "string", "enum": categoryEnum},
						"score":    map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
						"comment":  map[string]any{"type": "string"},
					},
				},
			},
			"tags":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"strengths":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"improvements":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"coaching":         map[string]any{"type": "string"},
			"final_assessment": map[string]any{"type": "string"},
		},
	}
}
