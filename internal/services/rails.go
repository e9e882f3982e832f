package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
)

const (
	RailDomainMismatch     = "domain_mismatch"
	RailExperienceFloor    = "experience_floor"
	RailQualificationFloor = "qualification_floor"

	FieldOverall        = "overall_score"
	FieldSkills         = "skills_score"
	FieldExperience     = "experience_score"
	FieldQualifications = "qualifications_score"
)

// AnalyzeDomain finds the technology category that dominates the job's skill
// requirements and how much of it the CV covers.
func AnalyzeDomain(canon *Canonicalizer, cmp *models.ComparisonResult, rails DomainRails) models.DomainAnalysis {
	perCategory := map[string]int{}
	coveredPerCategory := map[string]int{}

	count := func(list []models.RequirementMatch, covered bool) {
		for _, m := range list {
			if m.Kind != models.KindSkill {
				continue
			}
			seen := map[string]struct{}{}
			for _, skill := range m.Skills {
				category := canon.Category(skill)
				if category == "" {
					continue
				}
				if _, dup := seen[category]; dup {
					continue
				}
				seen[category] = struct{}{}
				perCategory[category]++
				if covered || m.Status == models.StatusPartial {
					coveredPerCategory[category]++
				}
			}
		}
	}
	count(cmp.MatchedMustHave, true)
	count(cmp.MissingMustHave, false)
	count(cmp.MatchedNiceToHave, true)
	count(cmp.MissingNiceToHave, false)

	analysis := models.DomainAnalysis{Fit: models.DomainSame, Severity: models.SeverityNone}
	if len(perCategory) == 0 {
		analysis.Explanation = "job names no categorised technologies"
		return analysis
	}

	categories := make([]string, 0, len(perCategory))
	for c := range perCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if perCategory[categories[i]] != perCategory[categories[j]] {
			return perCategory[categories[i]] > perCategory[categories[j]]
		}
		return categories[i] < categories[j]
	})

	dominant := categories[0]
	analysis.Category = dominant
	analysis.Requirements = perCategory[dominant]
	analysis.CoveredByCV = coveredPerCategory[dominant]

	cvInCategory := 0
	for _, tech := range cmp.CVTechnologies {
		if canon.Category(tech) == dominant {
			cvInCategory++
		}
	}

	switch {
	case analysis.Requirements >= rails.OrthogonalThreshold && analysis.CoveredByCV == 0 && cvInCategory == 0:
		analysis.Fit = models.DomainOrthogonal
		analysis.Severity = models.SeverityModerate
		if analysis.Requirements >= rails.SevereThreshold {
			analysis.Severity = models.SeveritySevere
		}
		analysis.Explanation = fmt.Sprintf("%d requirements are %s technologies and the CV lists none", analysis.Requirements, dominant)
	case analysis.CoveredByCV*2 < analysis.Requirements:
		analysis.Fit = models.DomainAdjacent
		analysis.Explanation = fmt.Sprintf("CV covers %d of %d %s requirements", analysis.CoveredByCV, analysis.Requirements, dominant)
	default:
		analysis.Explanation = fmt.Sprintf("CV covers %d of %d %s requirements", analysis.CoveredByCV, analysis.Requirements, dominant)
	}

	return analysis
}

// RailOutcome is the rail-adjusted category scores plus the ceiling the
// combiner must apply to the overall score (100 when no cap is active).
type RailOutcome struct {
	Scores         BaseScores
	OverallCeiling int
	Adjustments    []models.RailAdjustment
}

type SafetyRails struct {
	profile ScoringProfile
	log     *zap.Logger
}

func NewSafetyRails(profile ScoringProfile, log *zap.Logger) *SafetyRails {
	if log == nil {
		log = zap.NewNop()
	}
	return &SafetyRails{profile: profile, log: log}
}

// Apply runs the domain cap, then the experience and qualification floors. The
// floors apply whatever the domain fit is.
func (r *SafetyRails) Apply(scores BaseScores, facts *models.CVFacts, cmp *models.ComparisonResult, analysis models.DomainAnalysis) RailOutcome {
	out := RailOutcome{Scores: scores, OverallCeiling: 100, Adjustments: []models.RailAdjustment{}}
	years := facts.TotalYearsExperience

	if analysis.Fit == models.DomainOrthogonal {
		skillsCap, overallCap := r.profile.Domain.ModerateSkillsCap, r.profile.Domain.ModerateOverallCap
		if analysis.Severity == models.SeveritySevere {
			skillsCap, overallCap = r.profile.Domain.SevereSkillsCap, r.profile.Domain.SevereOverallCap
		}
		if out.Scores.Skills > skillsCap {
			r.record(&out, RailDomainMismatch, FieldSkills, out.Scores.Skills, skillsCap,
				fmt.Sprintf("%s domain mismatch caps skills at %d", analysis.Severity, skillsCap))
			out.Scores.Skills = skillsCap
		}
		out.OverallCeiling = overallCap
	}

	for _, floor := range r.profile.ExperienceFloors {
		if years < floor.MinYears {
			continue
		}
		if out.Scores.Experience < floor.Score {
			r.record(&out, RailExperienceFloor, FieldExperience, out.Scores.Experience, floor.Score,
				fmt.Sprintf("%d years of experience floors experience at %d", years, floor.Score))
			out.Scores.Experience = floor.Score
		}
		break
	}

	qf := r.profile.QualificationFloor
	if qf.MinYears > 0 && years >= qf.MinYears {
		target := qf.Score
		if cmp.EducationMatch.Status != models.CriterionMet && target > 99 {
			target = 99
		}
		if out.Scores.Qualifications < target {
			r.record(&out, RailQualificationFloor, FieldQualifications, out.Scores.Qualifications, target,
				fmt.Sprintf("%d years of experience floor qualifications at %d", years, target))
			out.Scores.Qualifications = target
		}
	}

	return out
}

func (r *SafetyRails) record(out *RailOutcome, rail, field string, from, to int, reason string) {
	out.Adjustments = append(out.Adjustments, models.RailAdjustment{Rail: rail, Field: field, From: from, To: to, Reason: reason})
	r.log.Info("safety rail applied",
		zap.String("rail", rail),
		zap.String("field", field),
		zap.Int("from", from),
		zap.Int("to", to),
	)
}
