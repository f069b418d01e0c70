package score_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/oratioapp/oratio/pkg/provider/score"
	"github.com/oratioapp/oratio/pkg/provider/score/mock"
)

func TestRecommendation_IsValid(t *testing.T) {
	tests := []struct {
		rec  score.Recommendation
		want bool
	}{
		{score.RecommendationStrongHire, true},
		{score.RecommendationHire, true},
		{score.RecommendationNoHire, true},
		{score.RecommendationStrongNoHire, true},
		{score.Recommendation("maybe"), false},
		{score.Recommendation(""), false},
	}
	for _, tt := range tests {
		if got := tt.rec.IsValid(); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.rec, got, tt.want)
		}
	}
}

func TestCard_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*score.Card)
		wantErr bool
	}{
		{"valid", func(*score.Card) {}, false},
		{"total too high", func(c *score.Card) { c.Total = 101 }, true},
		{"total negative", func(c *score.Card) { c.Total = -1 }, true},
		{"bad recommendation", func(c *score.Card) { c.Recommendation = "perhaps" }, true},
		{"missing category", func(c *score.Card) { c.Categories = c.Categories[:4] }, true},
		{"duplicate category", func(c *score.Card) {
			c.Categories[4] = c.Categories[0]
		}, true},
		{"category score out of range", func(c *score.Card) {
			c.Categories[2].Score = 150
		}, true},
		{"total boundary low", func(c *score.Card) { c.Total = 0 }, false},
		{"total boundary high", func(c *score.Card) { c.Total = 100 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := mock.ValidCard()
			tt.mutate(card)
			err := card.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCard_PlainJSON(t *testing.T) {
	data, err := json.Marshal(mock.ValidCard())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	card, err := score.ParseCard(string(data))
	if err != nil {
		t.Fatalf("ParseCard: %v", err)
	}
	if card.Total != 72 {
		t.Errorf("total = %d, want 72", card.Total)
	}
	if card.Recommendation != score.RecommendationHire {
		t.Errorf("recommendation = %q, want hire", card.Recommendation)
	}
}

func TestParseCard_StripsCodeFences(t *testing.T) {
	data, _ := json.Marshal(mock.ValidCard())

	fenced := "```json\n" + string(data) + "\n```"
	card, err := score.ParseCard(fenced)
	if err != nil {
		t.Fatalf("ParseCard with fences: %v", err)
	}
	if card.Total != 72 {
		t.Errorf("total = %d, want 72", card.Total)
	}
}

func TestParseCard_RejectsOutOfContract(t *testing.T) {
	bad := mock.ValidCard()
	bad.Total = 400
	data, _ := json.Marshal(bad)

	if _, err := score.ParseCard(string(data)); err == nil {
		t.Fatal("out-of-range card should not parse")
	}
}

func TestParseCard_RejectsGarbage(t *testing.T) {
	if _, err := score.ParseCard("the candidate did great!"); err == nil {
		t.Fatal("prose response should not parse")
	}
}

func TestBuildUserPrompt_IncludesContext(t *testing.T) {
	req := score.Request{
		Role:       "Senior Backend Engineer",
		Seniority:  "senior",
		Duration:   23*time.Minute + 12*time.Second,
		Transcript: "Interviewer: Tell me about yourself.\nCandidate: I build Go services.",
	}
	prompt := score.BuildUserPrompt(req)

	for _, want := range []string{
		"Senior Backend Engineer",
		"senior",
		"23m12s",
		"Candidate: I build Go services.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildUserPrompt_OmitsEmptyFields(t *testing.T) {
	prompt := score.BuildUserPrompt(score.Request{Role: "PM", Transcript: "hi"})
	if strings.Contains(prompt, "Seniority") {
		t.Error("empty seniority should be omitted")
	}
	if strings.Contains(prompt, "duration") {
		t.Error("zero duration should be omitted")
	}
}

func TestCategories_CanonicalOrder(t *testing.T) {
	got := score.Categories()
	want := []score.Category{
		score.CategoryCommunication,
		score.CategoryTechnical,
		score.CategoryProblemSolving,
		score.CategoryCulturalFit,
		score.CategoryConfidence,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d categories, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("category[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
