package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

const extractionMaxTokens = 8192

// FactExtractor turns raw CV text into CVFacts.
type FactExtractor interface {
	Extract(ctx context.Context, cvText string) (*models.CVFacts, error)
}

type factExtractor struct {
	reasoning ReasoningService
	prompts   *PromptBuilder
	timeout   time.Duration
	log       *zap.Logger
}

func NewFactExtractor(reasoning ReasoningService, prompts *PromptBuilder, timeout time.Duration, log *zap.Logger) FactExtractor {
	if prompts == nil {
		prompts = NewPromptBuilder()
	}
	return &factExtractor{
		reasoning: reasoning,
		prompts:   prompts,
		timeout:   timeout,
		log:       logger.WithFields(log, zap.String(logger.FieldStage, StageExtraction)),
	}
}

// Extract makes exactly one reasoning call. Any failure is fatal and returned as
// a *MatchError of kind ErrExtractionFailure or ErrTimeoutFailure.
func (e *factExtractor) Extract(ctx context.Context, cvText string) (*models.CVFacts, error) {
	if strings.TrimSpace(cvText) == "" {
		return nil, newMatchError(ErrInvalidInput, StageExtraction, errors.New("cv text is empty"))
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	system, prompt := e.prompts.BuildExtractionPrompt(cvText)
	e.log.Debug("extracting cv facts", zap.Int("cv_chars", len(cvText)))

	response, err := e.reasoning.Generate(callCtx, ReasoningRequest{
		Task:        TaskExtraction,
		System:      system,
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   extractionMaxTokens,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, newMatchError(ErrTimeoutFailure, StageExtraction, fmt.Errorf("%w: %w", ErrExtractionFailure, err))
		}
		return nil, newMatchError(ErrExtractionFailure, StageExtraction, err)
	}

	var facts models.CVFacts
	if err := parseJSONResponse(response, &facts); err != nil {
		e.log.Warn("unparseable extraction output", zap.String("preview", logger.TruncateForLog(response, 200)))
		return nil, newMatchError(ErrExtractionFailure, StageExtraction, err)
	}

	dropped := groundFacts(&facts, cvText)
	if dropped > 0 {
		e.log.Info("dropped unsupported extracted values", zap.Int("dropped", dropped))
	}

	return &facts, nil
}

// groundFacts removes values that do not appear in the source text and fixes
// derived numbers. It returns how many values were dropped.
func groundFacts(f *models.CVFacts, source string) int {
	text := strings.ToLower(source)
	dropped := 0

	keep := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if !strings.Contains(text, strings.ToLower(s)) {
				dropped++
				continue
			}
			out = append(out, s)
		}
		return out
	}

	f.Summary = strings.TrimSpace(f.Summary)
	f.Skills.Languages = keep(f.Skills.Languages)
	f.Skills.Frameworks = keep(f.Skills.Frameworks)
	f.Skills.Tools = keep(f.Skills.Tools)
	f.Skills.SoftSkills = keep(f.Skills.SoftSkills)
	f.Certifications = keep(f.Certifications)

	sumYears := 0
	for i := range f.Experience {
		exp := &f.Experience[i]
		exp.Technologies = keep(exp.Technologies)
		exp.Description = trimAll(exp.Description)
		if exp.Years < 0 {
			exp.Years = 0
		}
		sumYears += exp.Years
	}

	education := f.Education[:0]
	for _, ed := range f.Education {
		if ed.Degree != "" && !strings.Contains(text, strings.ToLower(strings.TrimSpace(ed.Degree))) {
			dropped++
			continue
		}
		if ed.Degree == "" && ed.Field == "" && ed.Institution == "" {
			continue
		}
		education = append(education, ed)
	}
	f.Education = education

	if f.TotalYearsExperience < 0 {
		f.TotalYearsExperience = 0
	}
	if f.TotalYearsExperience == 0 {
		f.TotalYearsExperience = sumYears
	}

	return dropped
}

func trimAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
