package app

import (
	"math"

	"quiz-room-service/internal/domain"
)

// ScoreConfig holds the point constants for answer scoring.
type ScoreConfig struct {
	BasePoints  int
	BonusPoints int
}

// DefaultScoreConfig rewards speed without penalizing correctness over speed:
// a correct answer always earns at least BasePoints.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{BasePoints: 1000, BonusPoints: 500}
}

// Score checks submitted against the question's canonical answer key and
// computes time-decayed points. The time bonus factor scales linearly from 1
// (instant answer) to 0 (answer at the deadline) and is clamped to [0, 1].
func (c ScoreConfig) Score(question domain.Question, submitted string, responseTimeMs, timeBudgetMs int) (bool, int) {
	if submitted != question.AnswerKey {
		return false, 0
	}

	factor := 0.0
	if timeBudgetMs > 0 {
		factor = float64(timeBudgetMs-responseTimeMs) / float64(timeBudgetMs)
		if factor < 0 {
			factor = 0
		}
		if factor > 1 {
			factor = 1
		}
	}

	points := int(math.Round(float64(c.BasePoints) + factor*float64(c.BonusPoints)))
	return true, points
}
