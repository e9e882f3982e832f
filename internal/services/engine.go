package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

const degradedSuffix = " (degraded)"

type MatchInput struct {
	Facts          *models.CVFacts
	Requirements   *models.RequirementSet
	ScoringVersion string
}

// MatchEngine runs the matching pipeline for facts that are already extracted:
// compare, assess transferability, score, apply rails, combine, explain.
type MatchEngine interface {
	Run(ctx context.Context, in MatchInput) (*models.MatchResult, error)
}

type EngineDeps struct {
	Canonicalizer   *Canonicalizer
	Comparator      RequirementComparator
	Transferability TransferabilityAssessor
	Explanation     ExplanationGenerator
	Profile         ScoringProfile
	Log             *zap.Logger
	Now             func() time.Time
}

type matchEngine struct {
	canon       *Canonicalizer
	comparator  RequirementComparator
	transfer    TransferabilityAssessor
	explanation ExplanationGenerator
	profile     ScoringProfile
	rails       *SafetyRails
	log         *zap.Logger
	now         func() time.Time
}

func NewMatchEngine(deps EngineDeps) MatchEngine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &matchEngine{
		canon:       deps.Canonicalizer,
		comparator:  deps.Comparator,
		transfer:    deps.Transferability,
		explanation: deps.Explanation,
		profile:     deps.Profile,
		rails:       NewSafetyRails(deps.Profile, logger.WithFields(log, zap.String(logger.FieldStage, StageScoring))),
		log:         log,
		now:         now,
	}
}

func (e *matchEngine) Run(ctx context.Context, in MatchInput) (*models.MatchResult, error) {
	if in.Facts == nil {
		return nil, newMatchError(ErrInvalidInput, StageComparison, fmt.Errorf("cv facts are required"))
	}
	if err := in.Requirements.Validate(); err != nil {
		return nil, newMatchError(ErrInvalidInput, StageComparison, err)
	}

	scorer, err := NewScorer(in.ScoringVersion, e.profile)
	if err != nil {
		return nil, newMatchError(ErrInvalidInput, StageScoring, err)
	}

	start := e.now()
	facts := e.canon.Facts(in.Facts)
	var warnings []string

	cmp := e.comparator.Compare(facts, in.Requirements)
	e.log.Debug("requirements compared",
		zap.Int("matched_must_have", len(cmp.MatchedMustHave)),
		zap.Int("missing_must_have", len(cmp.MissingMustHave)),
		zap.Int("matched_nice_to_have", len(cmp.MatchedNiceToHave)),
		zap.Int("missing_nice_to_have", len(cmp.MissingNiceToHave)),
	)

	transfer := []models.TransferabilityAssessment{}
	if scorer.UsesTransferability() && e.transfer != nil {
		transfer, err = e.transfer.Assess(ctx, TransferabilityInput{Facts: facts, Requirements: in.Requirements, Comparison: cmp})
		if err != nil {
			return nil, fmt.Errorf("failed to assess transferability: %w", err)
		}
		for _, t := range transfer {
			if t.Degraded {
				warnings = append(warnings, fmt.Sprintf("transferability for %q: %s", t.Requirement, t.Reasoning))
			}
		}
	}

	scores := scorer.Score(ScoreInput{Facts: facts, Requirements: in.Requirements, Comparison: cmp, Transferability: transfer})
	analysis := AnalyzeDomain(e.canon, cmp, e.profile.Domain)
	outcome := e.rails.Apply(scores, facts, cmp, analysis)

	overall, ceiling := CombineScores(outcome, e.profile.Weights)
	adjustments := outcome.Adjustments
	if ceiling != nil {
		e.rails.record(&outcome, ceiling.Rail, ceiling.Field, ceiling.From, ceiling.To, ceiling.Reason)
		adjustments = outcome.Adjustments
	}

	explanation := Explanation{}
	if e.explanation != nil {
		explanation, err = e.explanation.Explain(ctx, ExplanationInput{
			Facts:           facts,
			Requirements:    in.Requirements,
			Comparison:      cmp,
			Transferability: transfer,
			Scores:          outcome.Scores,
			Overall:         overall,
			SeniorYears:     e.profile.SeniorYears,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to explain match: %w", err)
		}
		if explanation.Warning != "" {
			warnings = append(warnings, explanation.Warning)
		}
	}

	result := &models.MatchResult{
		OverallScore:           overall,
		SkillsScore:            outcome.Scores.Skills,
		ExperienceScore:        outcome.Scores.Experience,
		QualificationsScore:    outcome.Scores.Qualifications,
		BaseSkillsScore:        scores.BaseSkills,
		MatchedMustHave:        nonNilMatches(cmp.MatchedMustHave),
		MissingMustHave:        nonNilMatches(cmp.MissingMustHave),
		MatchedNiceToHave:      nonNilMatches(cmp.MatchedNiceToHave),
		MissingNiceToHave:      nonNilMatches(cmp.MissingNiceToHave),
		ExperienceMatch:        cmp.ExperienceMatch,
		EducationMatch:         cmp.EducationMatch,
		ManagementMatch:        cmp.ManagementMatch,
		TransferabilityDetails: transfer,
		Strengths:              nonNilStrings(explanation.Strengths),
		Gaps:                   nonNilStrings(explanation.Gaps),
		Recommendations:        nonNilStrings(explanation.Recommendations),
		DomainFit:              analysis.Fit,
		DomainAnalysis:         analysis,
		RailAdjustments:        adjustments,
		ScoringMethod:          scorer.Method(),
		Warnings:               warnings,
		AnalyzedAt:             e.now().UTC(),
	}
	if len(warnings) > 0 {
		result.Degraded = true
		result.ScoringMethod += degradedSuffix
	}

	if err := validateResult(result, in.Requirements, outcome, e.profile.Weights); err != nil {
		return nil, newMatchError(ErrValidationFailure, StageScoring, err)
	}

	e.log.Info("match computed",
		zap.Int("overall_score", result.OverallScore),
		zap.String("domain_fit", string(result.DomainFit)),
		zap.String("scoring_method", result.ScoringMethod),
		zap.Duration("elapsed", e.now().Sub(start)),
	)

	return result, nil
}

// validateResult rejects a result whose scores cannot be re-derived from its
// components, or whose requirement lists do not partition the input.
func validateResult(r *models.MatchResult, reqs *models.RequirementSet, outcome RailOutcome, weights CombinerWeights) error {
	for name, score := range map[string]int{
		FieldOverall:        r.OverallScore,
		FieldSkills:         r.SkillsScore,
		FieldExperience:     r.ExperienceScore,
		FieldQualifications: r.QualificationsScore,
		"base_skills_score": r.BaseSkillsScore,
	} {
		if score < 0 || score > 100 {
			return fmt.Errorf("%s %d is outside [0, 100]", name, score)
		}
	}

	expected := clampScore(float64(weightedOverall(outcome.Scores, weights)))
	if ceiling := outcome.OverallCeiling; ceiling >= 0 && ceiling < expected {
		expected = ceiling
	}
	if r.OverallScore != expected {
		return fmt.Errorf("overall_score %d does not re-derive from components (expected %d)", r.OverallScore, expected)
	}

	if got := len(r.MatchedMustHave) + len(r.MissingMustHave); got != len(reqs.MustHave) {
		return fmt.Errorf("must-have partition covers %d of %d requirements", got, len(reqs.MustHave))
	}
	if got := len(r.MatchedNiceToHave) + len(r.MissingNiceToHave); got != len(reqs.NiceToHave) {
		return fmt.Errorf("nice-to-have partition covers %d of %d requirements", got, len(reqs.NiceToHave))
	}

	if r.ScoringMethod == "" {
		return fmt.Errorf("scoring_method is missing")
	}
	if r.DomainFit == "" {
		return fmt.Errorf("domain_fit is missing")
	}

	for _, t := range r.TransferabilityDetails {
		if t.Score < 0 || t.Score > 1 {
			return fmt.Errorf("transferability score %.2f for %q is outside [0, 1]", t.Score, t.Requirement)
		}
	}
	return nil
}

func nonNilMatches(list []models.RequirementMatch) []models.RequirementMatch {
	if list == nil {
		return []models.RequirementMatch{}
	}
	return list
}

func nonNilStrings(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
