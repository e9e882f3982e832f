package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

const (
	MaxStrengths       = 5
	MaxGaps            = 5
	MaxRecommendations = 6

	explanationAttempts    = 2
	explanationTemperature = 0.3
)

var (
	degreeNounPattern = regexp.MustCompile(`\b(degrees?|bachelor'?s?|bs|b\.s|bsc|b\.sc|master'?s?|ms|m\.s|msc|m\.sc|phd|ph\.d|mba|diploma|doctorate)\b`)
	stopWords         = map[string]struct{}{
		"experience": {}, "with": {}, "and": {}, "years": {}, "knowledge": {}, "understanding": {},
		"strong": {}, "working": {}, "ability": {}, "skills": {}, "proficiency": {}, "familiarity": {},
		"hands-on": {}, "solid": {}, "least": {}, "their": {}, "using": {},
	}
)

type ExplanationInput struct {
	Facts           *models.CVFacts
	Requirements    *models.RequirementSet
	Comparison      *models.ComparisonResult
	Transferability []models.TransferabilityAssessment
	Scores          BaseScores
	Overall         int
	// SeniorYears is the tenure from which degree advice is withheld; zero means the default.
	SeniorYears int
}

func (in ExplanationInput) senior() bool {
	threshold := in.SeniorYears
	if threshold <= 0 {
		threshold = defaultSeniorYears
	}
	return in.Facts.TotalYearsExperience >= threshold
}

type Explanation struct {
	Strengths       []string
	Gaps            []string
	Recommendations []string
	Degraded        bool
	Warning         string
}

// ExplanationGenerator produces grounded strengths, gaps and recommendations.
// Model failures fall back to a deterministic explanation; only caller
// cancellation is returned as an error.
type ExplanationGenerator interface {
	Explain(ctx context.Context, in ExplanationInput) (Explanation, error)
}

type explanationGenerator struct {
	reasoning ReasoningService
	prompts   *PromptBuilder
	canon     *Canonicalizer
	timeout   time.Duration
	log       *zap.Logger
}

func NewExplanationGenerator(reasoning ReasoningService, prompts *PromptBuilder, canon *Canonicalizer, timeout time.Duration, log *zap.Logger) ExplanationGenerator {
	if prompts == nil {
		prompts = NewPromptBuilder()
	}
	return &explanationGenerator{
		reasoning: reasoning,
		prompts:   prompts,
		canon:     canon,
		timeout:   timeout,
		log:       logger.WithFields(log, zap.String(logger.FieldStage, StageExplanation)),
	}
}

func (g *explanationGenerator) Explain(ctx context.Context, in ExplanationInput) (Explanation, error) {
	system, prompt := g.prompts.BuildExplanationPrompt(explanationPromptInput{
		Facts:           in.Facts,
		Comparison:      in.Comparison,
		Transferability: in.Transferability,
		Scores:          in.Scores,
		Overall:         in.Overall,
		JobTitle:        jobTitle(in.Requirements),
		MaxItems:        MaxStrengths,
		Senior:          in.senior(),
	})

	var lastErr error
	for attempt := 1; attempt <= explanationAttempts && ctx.Err() == nil; attempt++ {
		raw, err := g.call(ctx, system, prompt)
		if err == nil {
			return g.finalize(raw, in), nil
		}
		lastErr = err
		g.log.Warn("explanation call rejected", zap.Int("attempt", attempt), zap.Error(err))
	}

	if err := ctx.Err(); err != nil {
		return Explanation{}, fmt.Errorf("explanation cancelled: %w", err)
	}

	out := g.finalize(Explanation{}, in)
	out.Degraded = true
	out.Warning = fmt.Sprintf("explanation: %s; deterministic fallback used", failureLabel(lastErr))
	return out, nil
}

func (g *explanationGenerator) call(ctx context.Context, system, prompt string) (Explanation, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	response, err := g.reasoning.Generate(callCtx, ReasoningRequest{
		Task:        TaskExplanation,
		System:      system,
		Prompt:      prompt,
		Temperature: explanationTemperature,
		MaxTokens:   2048,
	})
	if err != nil {
		return Explanation{}, reasoningCallError(callCtx, err)
	}

	var raw map[string]any
	if err := parseJSONResponse(response, &raw); err != nil {
		return Explanation{}, err
	}

	out := Explanation{
		Strengths:       stringList(raw["strengths"]),
		Gaps:            stringList(raw["gaps"]),
		Recommendations: stringList(raw["recommendations"]),
	}
	if len(out.Strengths)+len(out.Gaps)+len(out.Recommendations) == 0 {
		return Explanation{}, fmt.Errorf("%w: no strengths, gaps or recommendations", ErrMalformedModelOutput)
	}
	return out, nil
}

// finalize drops ungrounded statements, enforces the degree rule and list
// limits, and balances recommendations across missing requirements. Lists the
// model left empty are filled from the deterministic fallback.
func (g *explanationGenerator) finalize(raw Explanation, in ExplanationInput) Explanation {
	gr := newGrounding(g.canon, in)
	fallback := g.fallback(in)
	senior := in.senior()

	keep := func(list []string, n int) []string {
		out := make([]string, 0, len(list))
		seen := map[string]struct{}{}
		for _, s := range list {
			key := strings.ToLower(s)
			if _, dup := seen[key]; dup {
				continue
			}
			if !gr.grounded(s) {
				g.log.Debug("dropped ungrounded statement", zap.String("statement", logger.TruncateForLog(s, 120)))
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
			if len(out) == n {
				break
			}
		}
		return out
	}

	out := Explanation{
		Strengths: keep(raw.Strengths, MaxStrengths),
		Gaps:      keep(raw.Gaps, MaxGaps),
	}
	if len(out.Strengths) == 0 {
		out.Strengths = limit(fallback.Strengths, MaxStrengths)
	}
	if len(out.Gaps) == 0 {
		out.Gaps = limit(fallback.Gaps, MaxGaps)
	}

	recs := make([]string, 0, len(raw.Recommendations))
	for _, r := range raw.Recommendations {
		if senior && gr.degreeAdvice(r) {
			g.log.Debug("dropped degree recommendation for experienced candidate", zap.String("statement", logger.TruncateForLog(r, 120)))
			continue
		}
		if gr.grounded(r) {
			recs = append(recs, r)
		}
	}
	out.Recommendations = balanceRecommendations(recs, fallback.Recommendations, gr, MaxRecommendations)

	return out
}

// balanceRecommendations keeps at most a third of the list per missing
// requirement and reserves a share for nice-to-have gaps proportional to their
// count, topping up from fallback when the model under-covers them.
func balanceRecommendations(recs, fallback []string, gr *grounding, maxItems int) []string {
	perRequirement := maxItems / 3
	if perRequirement < 1 {
		perRequirement = 1
	}

	nMust, nNice := len(gr.missingMust), len(gr.missingNice)
	niceQuota := 0
	if nNice > 0 {
		niceQuota = int(math.Round(float64(maxItems) * float64(nNice) / float64(nMust+nNice)))
		if niceQuota < 1 {
			niceQuota = 1
		}
	}

	counts := map[string]int{}
	var nice, other []string
	take := func(list []string) {
		for _, r := range list {
			key, isNice := gr.attribute(r)
			if key != "" && counts[key] >= perRequirement {
				continue
			}
			if containsString(nice, r) || containsString(other, r) {
				continue
			}
			if key != "" {
				counts[key]++
			}
			if isNice {
				nice = append(nice, r)
			} else {
				other = append(other, r)
			}
		}
	}
	take(recs)
	if len(nice) < niceQuota || len(nice)+len(other) < maxItems {
		take(fallback)
	}

	if niceQuota > len(nice) {
		niceQuota = len(nice)
	}
	out := make([]string, 0, maxItems)
	out = append(out, limit(other, maxItems-niceQuota)...)
	out = append(out, limit(nice, maxItems-len(out))...)
	return out
}

// fallback builds an explanation purely from the comparison.
func (g *explanationGenerator) fallback(in ExplanationInput) Explanation {
	cmp := in.Comparison
	var out Explanation

	for _, m := range append(append([]models.RequirementMatch{}, cmp.MatchedMustHave...), cmp.MatchedNiceToHave...) {
		out.Strengths = append(out.Strengths, fmt.Sprintf("Meets %q: %s", m.Requirement, m.Evidence))
	}
	if cmp.ExperienceMatch.Required && cmp.ExperienceMatch.Status == models.CriterionMet {
		out.Strengths = append(out.Strengths, fmt.Sprintf("%d years of experience meet the %d+ year requirement",
			cmp.ExperienceMatch.CVYears, cmp.ExperienceMatch.RequiredYears))
	}
	if len(out.Strengths) == 0 && in.Facts.TotalYearsExperience > 0 {
		out.Strengths = append(out.Strengths, fmt.Sprintf("%d years of professional experience", in.Facts.TotalYearsExperience))
	}

	for _, m := range cmp.MissingMustHave {
		out.Gaps = append(out.Gaps, fmt.Sprintf("Missing must-have %q: %s", m.Requirement, m.Evidence))
	}
	for _, m := range cmp.MissingNiceToHave {
		out.Gaps = append(out.Gaps, fmt.Sprintf("Missing nice-to-have %q", m.Requirement))
	}
	out.Gaps = interleaveNice(out.Gaps, len(cmp.MissingMustHave), MaxGaps)

	assessments := make(map[string]models.TransferabilityAssessment, len(in.Transferability))
	for _, t := range in.Transferability {
		assessments[string(t.Priority)+"\x00"+t.Requirement] = t
	}
	for _, m := range append(append([]models.RequirementMatch{}, cmp.MissingMustHave...), cmp.MissingNiceToHave...) {
		if rec := recommendationFor(m, assessments[string(m.Priority)+"\x00"+m.Requirement], in.Facts, in.senior()); rec != "" {
			out.Recommendations = append(out.Recommendations, rec)
		}
	}

	return out
}

func recommendationFor(m models.RequirementMatch, t models.TransferabilityAssessment, facts *models.CVFacts, senior bool) string {
	switch m.Kind {
	case models.KindEducation:
		if senior {
			return fmt.Sprintf("Lead with your %d years of professional experience where formal education is assessed", facts.TotalYearsExperience)
		}
		return fmt.Sprintf("Consider a qualification or recognised equivalent that satisfies %q", m.Requirement)
	case models.KindExperience:
		return fmt.Sprintf("Highlight the depth of your %d years of experience against %q", facts.TotalYearsExperience, m.Requirement)
	case models.KindManagement:
		return fmt.Sprintf("Describe any leadership or mentoring responsibilities relevant to %q", m.Requirement)
	}

	subject := m.Requirement
	if len(m.Skills) > 0 {
		subject = strings.Join(m.Skills, ", ")
	}
	if t.Score > 0 && len(t.ClosestSkills) > 0 {
		rec := fmt.Sprintf("Build on %s to cover %s", strings.Join(t.ClosestSkills, ", "), subject)
		if t.RampUp != "" && t.RampUp != models.RampUpUnknown && t.RampUp != models.RampUpNotTransferable {
			rec += fmt.Sprintf(" (estimated ramp-up %s)", t.RampUp)
		}
		return rec
	}
	if m.Priority == models.PriorityNiceToHave {
		return fmt.Sprintf("Consider gaining exposure to %s", subject)
	}
	return fmt.Sprintf("Gain hands-on experience with %s for %q", subject, m.Requirement)
}

// interleaveNice keeps room for nice-to-have gaps when must-have gaps alone would fill the list.
func interleaveNice(gaps []string, nMust, maxItems int) []string {
	if len(gaps) <= maxItems || nMust >= len(gaps) || nMust < maxItems {
		return limit(gaps, maxItems)
	}
	must := gaps[:nMust]
	nice := gaps[nMust:]
	niceShare := int(math.Round(float64(maxItems) * float64(len(nice)) / float64(len(gaps))))
	if niceShare < 1 {
		niceShare = 1
	}
	out := append([]string{}, limit(must, maxItems-niceShare)...)
	return append(out, limit(nice, maxItems-len(out))...)
}

type requirementRef struct {
	key      string
	kind     models.RequirementKind
	nice     bool
	skills   []string
	keywords []string
}

// grounding decides whether a statement cites a fact from the CV or the comparison.
type grounding struct {
	canon       *Canonicalizer
	skills      map[string]struct{}
	phrases     []string
	yearsPhrase string
	missingMust []requirementRef
	missingNice []requirementRef
	allReqs     []requirementRef
}

func newGrounding(canon *Canonicalizer, in ExplanationInput) *grounding {
	g := &grounding{canon: canon, skills: map[string]struct{}{}}

	for _, t := range in.Comparison.CVTechnologies {
		g.skills[t] = struct{}{}
	}
	for _, exp := range in.Facts.Experience {
		g.addPhrase(exp.Title)
		g.addPhrase(exp.Organization)
	}
	for _, ed := range in.Facts.Education {
		g.addPhrase(ed.Degree)
		g.addPhrase(ed.Institution)
	}
	for _, cert := range in.Facts.Certifications {
		g.addPhrase(cert)
	}
	if in.Facts.TotalYearsExperience > 0 {
		g.yearsPhrase = fmt.Sprintf("%d years", in.Facts.TotalYearsExperience)
	}

	ref := func(m models.RequirementMatch) requirementRef {
		for _, s := range m.Skills {
			g.skills[s] = struct{}{}
		}
		return requirementRef{key: string(m.Priority) + "\x00" + m.Requirement, kind: m.Kind, skills: m.Skills, keywords: keywords(m.Requirement)}
	}
	for _, m := range in.Comparison.MissingMustHave {
		g.missingMust = append(g.missingMust, ref(m))
	}
	for _, m := range in.Comparison.MissingNiceToHave {
		g.missingNice = append(g.missingNice, ref(m))
	}
	g.allReqs = append(append([]requirementRef{}, g.missingMust...), g.missingNice...)
	for _, m := range append(append([]models.RequirementMatch{}, in.Comparison.MatchedMustHave...), in.Comparison.MatchedNiceToHave...) {
		g.allReqs = append(g.allReqs, ref(m))
	}

	return g
}

func (g *grounding) addPhrase(p string) {
	p = strings.ToLower(strings.TrimSpace(p))
	if len(p) >= 3 {
		g.phrases = append(g.phrases, p)
	}
}

func (g *grounding) grounded(statement string) bool {
	lower := strings.ToLower(statement)
	for _, s := range g.canon.MentionedSkills(lower) {
		if _, ok := g.skills[s]; ok {
			return true
		}
	}
	for s := range g.skills {
		if !g.canon.Known(s) && containsTerm(lower, s) {
			return true
		}
	}
	for _, p := range g.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	if g.yearsPhrase != "" && strings.Contains(lower, g.yearsPhrase) {
		return true
	}
	for _, r := range g.allReqs {
		if mentionsKeywords(lower, r.keywords) {
			return true
		}
	}
	return false
}

// degreeAdvice reports whether a recommendation names a degree or addresses a
// missing education requirement.
func (g *grounding) degreeAdvice(statement string) bool {
	if degreeNounPattern.MatchString(strings.ToLower(statement)) {
		return true
	}
	ref, ok := g.attributeRef(statement)
	return ok && ref.kind == models.KindEducation
}

// attribute returns the missing requirement a statement addresses and whether it is nice-to-have.
func (g *grounding) attribute(statement string) (string, bool) {
	ref, ok := g.attributeRef(statement)
	if !ok {
		return "", false
	}
	return ref.key, ref.nice
}

func (g *grounding) attributeRef(statement string) (requirementRef, bool) {
	lower := strings.ToLower(statement)
	mentioned := g.canon.MentionedSkills(lower)

	match := func(r requirementRef) bool {
		for _, s := range r.skills {
			if containsString(mentioned, s) || containsTerm(lower, s) {
				return true
			}
		}
		return mentionsKeywords(lower, r.keywords)
	}
	for _, r := range g.missingMust {
		if match(r) {
			return r, true
		}
	}
	for _, r := range g.missingNice {
		if match(r) {
			r.nice = true
			return r, true
		}
	}
	return requirementRef{}, false
}

func keywords(text string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r) && r != '-' && r != '+' && r != '#' && r != '.'
	}) {
		w = strings.Trim(w, ".-")
		if len(w) < 4 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if !containsString(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// mentionsKeywords requires two keywords, or the only one when the requirement has just one.
func mentionsKeywords(lower string, kws []string) bool {
	if len(kws) == 0 {
		return false
	}
	need := 2
	if len(kws) == 1 {
		need = 1
	}
	hits := 0
	for _, k := range kws {
		if containsTerm(lower, k) {
			hits++
			if hits >= need {
				return true
			}
		}
	}
	return false
}

func jobTitle(reqs *models.RequirementSet) string {
	if reqs == nil {
		return ""
	}
	return reqs.Title
}

func limit(list []string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	if len(list) <= n {
		return append([]string{}, list...)
	}
	return append([]string{}, list[:n]...)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
