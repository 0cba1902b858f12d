package app_test

import (
	"testing"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

func TestScoreTimeBonus(t *testing.T) {
	cfg := app.DefaultScoreConfig()
	question := domain.Question{Prompt: "2+2?", Options: []string{"3", "4"}, AnswerKey: "4"}

	cases := []struct {
		name       string
		submitted  string
		responseMs int
		budgetMs   int
		correct    bool
		points     int
	}{
		{"instant answer full bonus", "4", 0, 30000, true, 1500},
		{"half budget half bonus", "4", 15000, 30000, true, 1250},
		{"at deadline base only", "4", 30000, 30000, true, 1000},
		{"past deadline clamped to base", "4", 45000, 30000, true, 1000},
		{"negative response clamped to full bonus", "4", -100, 30000, true, 1500},
		{"wrong answer scores zero", "3", 0, 30000, false, 0},
		{"zero budget no bonus", "4", 0, 0, true, 1000},
	}

	for _, tc := range cases {
		correct, points := cfg.Score(question, tc.submitted, tc.responseMs, tc.budgetMs)
		if correct != tc.correct || points != tc.points {
			t.Errorf("%s: got correct=%v points=%d, want correct=%v points=%d",
				tc.name, correct, points, tc.correct, tc.points)
		}
	}
}

func TestScoreExactMatchOnly(t *testing.T) {
	cfg := app.DefaultScoreConfig()
	question := domain.Question{AnswerKey: "Paris"}

	if correct, _ := cfg.Score(question, "paris", 0, 30000); correct {
		t.Fatalf("answer comparison must be exact")
	}
	if correct, _ := cfg.Score(question, "", 0, 30000); correct {
		t.Fatalf("empty submission must not match")
	}
}
