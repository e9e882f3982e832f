package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"alfredoptarigan/cv-matcher/internal/models"
)

const maxPromptSkills = 30

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildExtractionPrompt creates the prompt that turns raw CV text into CVFacts.
func (pb *PromptBuilder) BuildExtractionPrompt(cvText string) (string, string) {
	system := "You extract structured facts from CVs. You never infer, guess or embellish. Return only valid JSON."

	prompt := fmt.Sprintf(`Extract the facts from the CV below.

RULES:
- Copy only information that is literally written in the CV.
- If a field is not stated, return an empty string, an empty list or 0. Never guess.
- "years" of an experience entry is derived from its period; use 0 when the period is missing.
- "total_years_experience" is the total span of professional experience; use 0 when it cannot be derived.
- Put programming languages in "languages", libraries and frameworks in "frameworks",
  platforms, databases and tools in "tools", and interpersonal skills in "soft_skills".
- "education" holds degrees, diplomas, bootcamps and other formal training exactly as written.

CV:
"""
%s
"""

Return JSON in exactly this shape:
{
  "summary": "",
  "skills": {"languages": [], "frameworks": [], "tools": [], "soft_skills": []},
  "experience": [
    {"title": "", "organization": "", "period": "", "years": 0, "description": [], "technologies": []}
  ],
  "education": [{"degree": "", "field": "", "institution": "", "year": ""}],
  "certifications": [],
  "total_years_experience": 0
}`, strings.TrimSpace(cvText))

	return system, prompt
}

type transferabilityPromptInput struct {
	Requirement   string
	Priority      models.Priority
	CVSkills      []string
	CVYears       int
	CVTitles      []string
	ClosestSkills []string
	JobTitle      string
	JobDomain     string
}

// BuildTransferabilityPrompt asks for a bounded rating of one missing requirement.
func (pb *PromptBuilder) BuildTransferabilityPrompt(in transferabilityPromptInput) (string, string) {
	system := "You are a skill transferability rater. Return only valid JSON."

	skills := in.CVSkills
	more := ""
	if len(skills) > maxPromptSkills {
		more = fmt.Sprintf(" (and %d more)", len(skills)-maxPromptSkills)
		skills = skills[:maxPromptSkills]
	}

	hints := "none"
	if len(in.ClosestSkills) > 0 {
		hints = strings.Join(in.ClosestSkills, ", ")
	}

	prompt := fmt.Sprintf(`Rate how well the candidate's existing skills transfer to one missing requirement.

CANDIDATE HAS:
Skills: %s%s
Roles: %s
Years of experience: %d

MISSING REQUIREMENT (%s): %s
JOB: %s
JOB DOMAIN: %s
RELATED CANONICAL SKILLS: %s

RATING SCALE (0.0 to 1.0):
1.0 - exact synonym (same skill, different name), e.g. "Postgres" vs "PostgreSQL"
0.8 - adjacent technology in the same category, e.g. "Flask" -> "FastAPI", "MySQL" -> "PostgreSQL"
0.6 - same broad domain, different technology, e.g. backend Python -> backend Node.js
0.5 - generic skill an experienced engineer can learn, e.g. a new framework or tool
0.3 - loosely related, significant learning needed
0.0 - unrelated

RULES:
- Judge only from the skills and roles listed above.
- "learnable" is true when an experienced engineer could acquire the skill on the job.
- Be consistent: the same input must produce the same score within 0.1.

Return JSON:
{
  "score": 0.0,
  "reasoning": "one or two sentences naming the candidate skill you relied on",
  "ramp_up_estimate": "2-4 weeks|1-2 months|3-6 months|6-12 months|12+ months|not transferable",
  "closest_skills": [],
  "learnable": false
}`,
		orNone(strings.Join(skills, ", ")), more,
		orNone(strings.Join(in.CVTitles, "; ")),
		in.CVYears,
		strings.ReplaceAll(string(in.Priority), "_", "-"), in.Requirement,
		orNone(in.JobTitle), orNone(in.JobDomain), hints,
	)

	return system, prompt
}

type explanationPromptInput struct {
	Facts           *models.CVFacts
	Comparison      *models.ComparisonResult
	Transferability []models.TransferabilityAssessment
	Scores          BaseScores
	Overall         int
	JobTitle        string
	MaxItems        int
	Senior          bool
}

// BuildExplanationPrompt asks for strengths, gaps and recommendations grounded in the comparison.
func (pb *PromptBuilder) BuildExplanationPrompt(in explanationPromptInput) (string, string) {
	system := "You explain CV-to-job match results. Every statement must cite a fact from the data you are given. Return only valid JSON."

	experience := in.Facts.Experience
	if len(experience) > 4 {
		experience = experience[:4]
	}
	expJSON, _ := json.MarshalIndent(experience, "", "  ")
	transferJSON, _ := json.MarshalIndent(in.Transferability, "", "  ")

	degreeRule := ""
	if in.Senior {
		degreeRule = fmt.Sprintf("\n- The candidate has %d years of experience: never recommend obtaining a degree or any other formal qualification.", in.Facts.TotalYearsExperience)
	}

	prompt := fmt.Sprintf(`Explain this CV-to-job match.

JOB TITLE: %s

CV SUMMARY: %s
CV EXPERIENCE (%d years total):
%s
CV TECHNOLOGIES: %s
CV EDUCATION: %s
CV CERTIFICATIONS: %s

MATCH RESULTS:
- Matched must-have: %s
- Missing must-have: %s
- Matched nice-to-have: %s
- Missing nice-to-have: %s
- Experience: %s
- Education: %s

TRANSFERABILITY:
%s

SCORES: overall %d, skills %d, experience %d, qualifications %d

Return JSON:
{"strengths": [], "gaps": [], "recommendations": []}

RULES:
- At most %d items per list.
- Only reference facts listed above: name the technology, role, organization or requirement.
- Do not invent qualifications, employers or numbers.
- Gaps cover both must-have and nice-to-have requirements.
- Spread recommendations across different missing requirements.%s`,
		orNone(in.JobTitle),
		orNone(in.Facts.Summary),
		in.Facts.TotalYearsExperience, string(expJSON),
		orNone(strings.Join(in.Comparison.CVTechnologies, ", ")),
		orNone(describeEducation(in.Facts.Education)),
		orNone(strings.Join(in.Facts.Certifications, "; ")),
		requirementTexts(in.Comparison.MatchedMustHave),
		requirementTexts(in.Comparison.MissingMustHave),
		requirementTexts(in.Comparison.MatchedNiceToHave),
		requirementTexts(in.Comparison.MissingNiceToHave),
		in.Comparison.ExperienceMatch.Evidence,
		in.Comparison.EducationMatch.Evidence,
		string(transferJSON),
		in.Overall, in.Scores.Skills, in.Scores.Experience, in.Scores.Qualifications,
		in.MaxItems, degreeRule,
	)

	return system, prompt
}

func requirementTexts(list []models.RequirementMatch) string {
	if len(list) == 0 {
		return "none"
	}
	texts := make([]string, len(list))
	for i, m := range list {
		texts[i] = fmt.Sprintf("%q", m.Requirement)
	}
	return strings.Join(texts, ", ")
}

func describeEducation(list []models.Education) string {
	parts := make([]string, 0, len(list))
	for _, e := range list {
		label := strings.TrimSpace(strings.Join([]string{e.Degree, e.Field}, " "))
		if e.Institution != "" {
			label += " (" + e.Institution + ")"
		}
		if label != "" {
			parts = append(parts, label)
		}
	}
	return strings.Join(parts, "; ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
