package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

const (
	transferabilityAttempts    = 2
	transferabilityTemperature = 0.1
	transferabilityMaxTokens   = 400
	maxReasoningChars          = 1000
)

// SkillNeighbourFinder suggests canonical skills close to a requirement. It only
// enriches prompts; a nil finder or an error leaves the hint list empty.
type SkillNeighbourFinder interface {
	Nearest(ctx context.Context, text string, limit int) ([]string, error)
}

type TransferabilityInput struct {
	Facts        *models.CVFacts
	Requirements *models.RequirementSet
	Comparison   *models.ComparisonResult
}

// TransferabilityAssessor rates missing skill requirements. A failed rating
// never fails the match; only caller cancellation is returned as an error.
type TransferabilityAssessor interface {
	Assess(ctx context.Context, in TransferabilityInput) ([]models.TransferabilityAssessment, error)
}

type TransferabilityOptions struct {
	Concurrency      int
	Timeout          time.Duration
	AssessNiceToHave bool
	Neighbours       SkillNeighbourFinder
	NeighbourLimit   int
}

type transferabilityAssessor struct {
	reasoning ReasoningService
	prompts   *PromptBuilder
	profile   ScoringProfile
	opts      TransferabilityOptions
	log       *zap.Logger
}

func NewTransferabilityAssessor(reasoning ReasoningService, prompts *PromptBuilder, profile ScoringProfile, opts TransferabilityOptions, log *zap.Logger) TransferabilityAssessor {
	if prompts == nil {
		prompts = NewPromptBuilder()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.NeighbourLimit <= 0 {
		opts.NeighbourLimit = 3
	}
	return &transferabilityAssessor{
		reasoning: reasoning,
		prompts:   prompts,
		profile:   profile,
		opts:      opts,
		log:       logger.WithFields(log, zap.String(logger.FieldStage, StageTransferability)),
	}
}

func (a *transferabilityAssessor) targets(cmp *models.ComparisonResult) []models.RequirementMatch {
	var out []models.RequirementMatch
	for _, m := range cmp.MissingMustHave {
		if m.Kind == models.KindSkill {
			out = append(out, m)
		}
	}
	if a.opts.AssessNiceToHave {
		for _, m := range cmp.MissingNiceToHave {
			if m.Kind == models.KindSkill {
				out = append(out, m)
			}
		}
	}
	return out
}

// Assess issues one call per target concurrently, bounded by Concurrency. Each
// call writes only its own slot of the pre-sized result slice.
func (a *transferabilityAssessor) Assess(ctx context.Context, in TransferabilityInput) ([]models.TransferabilityAssessment, error) {
	targets := a.targets(in.Comparison)
	results := make([]models.TransferabilityAssessment, len(targets))
	if len(targets) == 0 {
		return results, nil
	}

	base := transferabilityPromptInput{
		CVSkills: in.Comparison.CVTechnologies,
		CVYears:  in.Facts.TotalYearsExperience,
		CVTitles: experienceTitles(in.Facts),
	}
	if in.Requirements != nil {
		base.JobTitle = in.Requirements.Title
		base.JobDomain = in.Requirements.Domain
	}

	g := new(errgroup.Group)
	g.SetLimit(a.opts.Concurrency)

	for i, target := range targets {
		g.Go(func() error {
			results[i] = a.assessOne(ctx, target, base)
			return nil
		})
	}
	// assessOne absorbs every failure, so Wait only reports a nil error.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transferability cancelled: %w", err)
	}

	return results, nil
}

func (a *transferabilityAssessor) assessOne(ctx context.Context, target models.RequirementMatch, base transferabilityPromptInput) models.TransferabilityAssessment {
	log := a.log.With(zap.String(logger.FieldRequirement, logger.TruncateForLog(target.Requirement, 80)))

	in := base
	in.Requirement = target.Requirement
	in.Priority = target.Priority
	in.ClosestSkills = a.neighbours(ctx, target.Requirement, log)
	system, prompt := a.prompts.BuildTransferabilityPrompt(in)

	var lastErr error
	attempts := 0
	for attempts < transferabilityAttempts && ctx.Err() == nil {
		attempts++

		assessment, learnable, err := a.call(ctx, system, prompt)
		if err == nil {
			assessment.Requirement = target.Requirement
			assessment.Priority = target.Priority
			assessment.Attempts = attempts
			a.applySeniorUplift(&assessment, learnable, base.CVYears)
			log.Debug("transferability assessed",
				zap.Float64("score", assessment.Score),
				zap.String("ramp_up", string(assessment.RampUp)),
				zap.Int("attempt", attempts),
			)
			return assessment
		}

		lastErr = err
		log.Warn("transferability call rejected", zap.Int("attempt", attempts), zap.Error(err))
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return models.TransferabilityAssessment{
		Requirement: target.Requirement,
		Priority:    target.Priority,
		Score:       0,
		Reasoning:   fmt.Sprintf("assessment unavailable (%s); scored conservatively", failureLabel(lastErr)),
		RampUp:      models.RampUpUnknown,
		Attempts:    attempts,
		Degraded:    true,
	}
}

func (a *transferabilityAssessor) call(ctx context.Context, system, prompt string) (models.TransferabilityAssessment, bool, error) {
	callCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	response, err := a.reasoning.Generate(callCtx, ReasoningRequest{
		Task:        TaskTransferability,
		System:      system,
		Prompt:      prompt,
		Temperature: transferabilityTemperature,
		MaxTokens:   transferabilityMaxTokens,
	})
	if err != nil {
		return models.TransferabilityAssessment{}, false, reasoningCallError(callCtx, err)
	}

	return decodeAssessment(response)
}

// decodeAssessment validates one model response and reports whether the skill
// is learnable. A missing or non-numeric score or an empty/oversized reasoning
// is rejected; an out-of-range score is clamped.
func decodeAssessment(response string) (models.TransferabilityAssessment, bool, error) {
	var raw map[string]any
	if err := parseJSONResponse(response, &raw); err != nil {
		return models.TransferabilityAssessment{}, false, err
	}

	value, ok := raw["score"]
	if !ok {
		value, ok = raw["transferability_score"]
	}
	if !ok {
		return models.TransferabilityAssessment{}, false, fmt.Errorf("%w: score missing", ErrMalformedModelOutput)
	}
	score, ok := coerceFloat(value)
	if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
		return models.TransferabilityAssessment{}, false, fmt.Errorf("%w: score %v is not a number", ErrMalformedModelOutput, value)
	}
	score = math.Min(math.Max(score, 0), 1)

	reasoning, _ := raw["reasoning"].(string)
	reasoning = strings.TrimSpace(reasoning)
	if reasoning == "" {
		return models.TransferabilityAssessment{}, false, fmt.Errorf("%w: reasoning missing", ErrMalformedModelOutput)
	}
	if utf8.RuneCountInString(reasoning) > maxReasoningChars {
		return models.TransferabilityAssessment{}, false, fmt.Errorf("%w: reasoning too long", ErrMalformedModelOutput)
	}

	rampRaw, _ := raw["ramp_up_estimate"].(string)
	if rampRaw == "" {
		rampRaw, _ = raw["ramp_up_time"].(string)
	}

	assessment := models.TransferabilityAssessment{
		Score:         score,
		Reasoning:     reasoning,
		RampUp:        parseRampUp(rampRaw),
		ClosestSkills: stringList(raw["closest_skills"]),
	}

	learnable, ok := raw["learnable"].(bool)
	if !ok {
		learnable = score >= 0.3
	}
	if assessment.RampUp == models.RampUpNotTransferable {
		learnable = false
	}

	return assessment, learnable, nil
}

// applySeniorUplift adds the bounded bonus for experienced candidates on learnable skills.
func (a *transferabilityAssessor) applySeniorUplift(t *models.TransferabilityAssessment, learnable bool, years int) {
	if !learnable || years < a.profile.SeniorYears || a.profile.SeniorUplift <= 0 || t.Score <= 0 || t.Score >= 1 {
		return
	}
	t.Score = math.Min(1, math.Round((t.Score+a.profile.SeniorUplift)*100)/100)
	t.SeniorUplift = true
}

func (a *transferabilityAssessor) neighbours(ctx context.Context, requirement string, log *zap.Logger) []string {
	if a.opts.Neighbours == nil {
		return nil
	}
	names, err := a.opts.Neighbours.Nearest(ctx, requirement, a.opts.NeighbourLimit)
	if err != nil {
		log.Debug("skill index lookup failed", zap.Error(err))
		return nil
	}
	return names
}

func parseRampUp(s string) models.RampUp {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range models.RampUps() {
		if s == string(r) {
			return r
		}
	}
	return models.RampUpUnknown
}

func experienceTitles(f *models.CVFacts) []string {
	titles := make([]string, 0, len(f.Experience))
	for _, exp := range f.Experience {
		if label := exp.Label(); label != "" {
			titles = append(titles, label)
		}
	}
	return titles
}

func failureLabel(err error) string {
	switch {
	case err == nil:
		return "unknown failure"
	case errors.Is(err, ErrTimeoutFailure), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformedModelOutput):
		return "malformed model output"
	case errors.Is(err, ErrReasoningUnavailable):
		return "reasoning service unavailable"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "reasoning service error"
}
