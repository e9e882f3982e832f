package services

import (
	"fmt"
	"math"

	"alfredoptarigan/cv-matcher/internal/models"
)

// CombineScores blends the rail-adjusted category scores into the overall score:
//
//	overall = round((skills*ws + experience*we + qualifications*wq) / (ws + we + wq))
//
// clamped to [0, 100] and then to the rail ceiling. The returned adjustment is
// non-nil when the ceiling lowered the weighted value.
func CombineScores(outcome RailOutcome, weights CombinerWeights) (int, *models.RailAdjustment) {
	total := weights.Skills + weights.Experience + weights.Qualifications
	if total <= 0 {
		total = 1
	}

	s := outcome.Scores
	weighted := (float64(s.Skills)*weights.Skills +
		float64(s.Experience)*weights.Experience +
		float64(s.Qualifications)*weights.Qualifications) / total

	overall := clampScore(weighted)

	ceiling := outcome.OverallCeiling
	if ceiling < 0 || ceiling > 100 {
		ceiling = 100
	}
	if overall <= ceiling {
		return overall, nil
	}

	return ceiling, &models.RailAdjustment{
		Rail:   RailDomainMismatch,
		Field:  FieldOverall,
		From:   overall,
		To:     ceiling,
		Reason: fmt.Sprintf("domain mismatch caps overall at %d", ceiling),
	}
}

// weightedOverall is CombineScores without the ceiling, used to re-derive results.
func weightedOverall(s BaseScores, weights CombinerWeights) int {
	total := weights.Skills + weights.Experience + weights.Qualifications
	if total <= 0 {
		return 0
	}
	return int(math.Round((float64(s.Skills)*weights.Skills +
		float64(s.Experience)*weights.Experience +
		float64(s.Qualifications)*weights.Qualifications) / total))
}
