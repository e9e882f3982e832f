package services

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
)

var (
	yearsPattern = regexp.MustCompile(`(\d+)\s*\+?\s*(?:years?|yrs?)\b`)

	// abbreviatedDegrees also occur in product names ("MS SQL", "BA tools"), so
	// they mark education only when the requirement names no skill.
	abbreviatedDegrees = []string{"bs", "b.s", "b.s.", "ms", "m.s", "m.s.", "ba", "b.a.", "ma", "m.a."}
	educationTerms     = educationVocabulary([]string{"degree", "diploma", "university", "graduate"}, bachelorTerms, masterTerms, doctorateTerms)
	managementTerms    = []string{
		"lead", "leading", "led", "leadership", "manage", "managing", "management", "manager",
		"mentor", "mentoring", "mentorship", "supervise", "supervising", "supervised",
		"direct reports", "team of", "people management", "coach", "coaching",
	}
)

// Classification is the classifier's verdict on one requirement.
type Classification struct {
	Kind   models.RequirementKind
	Skills []string
	Years  int
	// LowConfidence marks verdicts reached without any positive signal.
	LowConfidence bool
}

// RequirementClassifier is a best-effort keyword classifier. It is not an oracle:
// low-confidence verdicts are logged for review.
type RequirementClassifier struct {
	canon *Canonicalizer
	log   *zap.Logger
}

func NewRequirementClassifier(canon *Canonicalizer, log *zap.Logger) *RequirementClassifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &RequirementClassifier{canon: canon, log: log}
}

// Classify resolves the kind of req. cvSkills lets skills outside the vocabulary
// still be recognised when the CV names them.
func (c *RequirementClassifier) Classify(req models.Requirement, cvSkills []string) Classification {
	text := strings.ToLower(req.Text)
	skills := c.skillTokens(text, cvSkills)
	years := requiredYears(text)

	cls := Classification{Skills: skills, Years: years}

	if req.Kind != models.KindUnknown {
		cls.Kind = req.Kind
		return cls
	}

	switch {
	case containsAny(text, educationTerms), len(skills) == 0 && containsAny(text, abbreviatedDegrees):
		cls.Kind = models.KindEducation
	case len(skills) == 0 && containsAny(text, managementTerms):
		cls.Kind = models.KindManagement
	case len(skills) == 0 && years > 0:
		cls.Kind = models.KindExperience
	default:
		cls.Kind = models.KindSkill
		cls.LowConfidence = len(skills) == 0
	}

	if cls.LowConfidence {
		c.log.Warn("low-confidence requirement classification",
			zap.String("requirement", req.Text),
			zap.String("kind", string(cls.Kind)),
		)
	}

	return cls
}

func (c *RequirementClassifier) skillTokens(text string, cvSkills []string) []string {
	tokens := c.canon.MentionedSkills(text)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}

	for _, skill := range cvSkills {
		if _, ok := seen[skill]; ok || c.canon.Known(skill) {
			continue
		}
		if containsTerm(text, skill) {
			seen[skill] = struct{}{}
			tokens = append(tokens, skill)
		}
	}
	return tokens
}

// requiredYears returns the largest "N years" figure in text, or 0.
func requiredYears(text string) int {
	best := 0
	for _, m := range yearsPattern.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > best && n < 60 {
			best = n
		}
	}
	return best
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if containsTerm(text, term) {
			return true
		}
	}
	return false
}

func firstTerm(text string, terms []string) string {
	for _, term := range terms {
		if containsTerm(text, term) {
			return term
		}
	}
	return ""
}

// educationVocabulary joins base with every degree tier term except the
// abbreviated forms.
func educationVocabulary(base []string, tiers ...[]string) []string {
	out := append([]string(nil), base...)
	for _, terms := range tiers {
		for _, term := range terms {
			if !containsString(abbreviatedDegrees, term) && !containsString(out, term) {
				out = append(out, term)
			}
		}
	}
	return out
}
