package services

import (
	"fmt"
	"math"
	"strings"

	"alfredoptarigan/cv-matcher/internal/models"
)

const (
	ScoringVersionTransfer = "v4.0"
	ScoringVersionExact    = "v4.0-exact"
)

var (
	seniorRoleTerms = []string{"senior", "sr", "lead", "principal", "staff", "head", "architect"}
	seniorCVTerms   = []string{"senior", "sr", "lead", "principal", "staff", "head of", "architect", "manager", "director"}
)

// BaseScores are the category scores before safety rails. BaseSkills counts
// exact matches only and is reported alongside the credited Skills score.
type BaseScores struct {
	Skills         int
	BaseSkills     int
	Experience     int
	Qualifications int
}

type ScoreInput struct {
	Facts           *models.CVFacts
	Requirements    *models.RequirementSet
	Comparison      *models.ComparisonResult
	Transferability []models.TransferabilityAssessment
}

// Scorer is one versioned scoring strategy. Implementations are pure.
type Scorer interface {
	Version() string
	Method() string
	UsesTransferability() bool
	Score(in ScoreInput) BaseScores
}

// NewScorer selects a scoring strategy by version. An empty version selects v4.0.
func NewScorer(version string, profile ScoringProfile) (Scorer, error) {
	version, err := ResolveScoringVersion(version)
	if err != nil {
		return nil, err
	}
	return &baseScorer{profile: profile, version: version, transfer: version == ScoringVersionTransfer}, nil
}

// ResolveScoringVersion maps an empty version to the default and rejects unknown ones.
func ResolveScoringVersion(version string) (string, error) {
	switch v := strings.TrimSpace(version); v {
	case "":
		return ScoringVersionTransfer, nil
	case ScoringVersionTransfer, ScoringVersionExact:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown scoring version %q", ErrInvalidInput, version)
}

// ScoringVersions lists the accepted scoring versions.
func ScoringVersions() []string {
	return []string{ScoringVersionTransfer, ScoringVersionExact}
}

type baseScorer struct {
	profile  ScoringProfile
	version  string
	transfer bool
}

func (s *baseScorer) Version() string {
	return s.version
}

func (s *baseScorer) Method() string {
	if s.transfer {
		return s.version + " (base + transferability)"
	}
	return s.version + " (base only)"
}

func (s *baseScorer) UsesTransferability() bool {
	return s.transfer
}

func (s *baseScorer) Score(in ScoreInput) BaseScores {
	credit := make(map[string]float64, len(in.Transferability))
	if s.transfer {
		for _, t := range in.Transferability {
			credit[string(t.Priority)+"\x00"+t.Requirement] = t.Score
		}
	}

	skills, base := s.skillsScore(in.Comparison, credit)

	return BaseScores{
		Skills:         skills,
		BaseSkills:     base,
		Experience:     s.experienceScore(in.Facts, in.Requirements, in.Comparison),
		Qualifications: s.qualificationsScore(in.Facts, in.Comparison),
	}
}

// skillsScore computes
//
//	category% = 100 * (exact + sum(credit for missing)) / total
//	skills    = must% * w_must + nice% * w_nice
//
// over skill requirements only. A priority with no skill requirements hands its
// weight to the other one.
func (s *baseScorer) skillsScore(cmp *models.ComparisonResult, credit map[string]float64) (int, int) {
	mustPct, mustBase, mustN := s.categoryPercent(cmp.MatchedMustHave, cmp.MissingMustHave, credit)
	nicePct, niceBase, niceN := s.categoryPercent(cmp.MatchedNiceToHave, cmp.MissingNiceToHave, credit)

	wMust, wNice := s.profile.SkillWeights.MustHave, s.profile.SkillWeights.NiceToHave
	switch {
	case mustN == 0 && niceN == 0:
		return 100, 100
	case mustN == 0:
		wMust, wNice = 0, 1
	case niceN == 0:
		wMust, wNice = 1, 0
	}
	total := wMust + wNice

	skills := (mustPct*wMust + nicePct*wNice) / total
	base := (mustBase*wMust + niceBase*wNice) / total
	return clampScore(skills), clampScore(base)
}

func (s *baseScorer) categoryPercent(matched, missing []models.RequirementMatch, credit map[string]float64) (float64, float64, int) {
	exact := float64(models.CountKind(matched, models.KindSkill))
	n := int(exact) + models.CountKind(missing, models.KindSkill)
	if n == 0 {
		return 100, 100, 0
	}

	credited := exact
	for _, m := range missing {
		if m.Kind != models.KindSkill {
			continue
		}
		c := credit[string(m.Priority)+"\x00"+m.Requirement]
		if m.Status == models.StatusPartial && c < s.profile.PartialCredit {
			c = s.profile.PartialCredit
		}
		credited += math.Min(math.Max(c, 0), 1)
	}

	return 100 * credited / float64(n), 100 * exact / float64(n), n
}

func (s *baseScorer) experienceScore(facts *models.CVFacts, reqs *models.RequirementSet, cmp *models.ComparisonResult) int {
	years := facts.TotalYearsExperience
	required := cmp.ExperienceMatch.RequiredYears

	score := 0
	if required > 0 {
		ratio := float64(years) / float64(required)
		for _, tier := range s.profile.ExperienceTiers {
			if ratio >= tier.MinRatio {
				score = tier.Score
				break
			}
		}
	} else {
		for _, tier := range s.profile.AbsoluteTiers {
			if years >= tier.MinYears {
				score = tier.Score
				break
			}
		}
	}

	if seniorRole(reqs) && seniorCV(facts) {
		score += s.profile.SeniorityBonus
	}

	return clampScore(float64(score))
}

func (s *baseScorer) qualificationsScore(facts *models.CVFacts, cmp *models.ComparisonResult) int {
	q := s.profile.Qualification
	switch {
	case cmp.EducationMatch.Status == models.CriterionMet:
		return clampScore(float64(q.Met))
	case cmp.EducationMatch.HasEquivalentEducation:
		return clampScore(float64(min(q.Equivalent, q.Met-1)))
	case len(facts.Certifications) > 0:
		return clampScore(float64(min(q.Certified, q.Met-1)))
	}
	return clampScore(float64(min(q.Base, q.Met-1)))
}

func seniorRole(reqs *models.RequirementSet) bool {
	if reqs == nil {
		return false
	}
	return containsAny(strings.ToLower(reqs.RoleLevel+" "+reqs.Title), seniorRoleTerms)
}

func seniorCV(facts *models.CVFacts) bool {
	for _, exp := range facts.Experience {
		if containsAny(strings.ToLower(exp.Title), seniorCVTerms) {
			return true
		}
	}
	return false
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
