package models

import "time"

type DomainFit string

const (
	DomainSame       DomainFit = "SAME"
	DomainAdjacent   DomainFit = "ADJACENT"
	DomainOrthogonal DomainFit = "ORTHOGONAL"
)

type MismatchSeverity string

const (
	SeverityNone     MismatchSeverity = "none"
	SeverityModerate MismatchSeverity = "moderate"
	SeveritySevere   MismatchSeverity = "severe"
)

// DomainAnalysis explains how the job's dominant technology category relates to the CV.
type DomainAnalysis struct {
	Fit          DomainFit        `json:"fit"`
	Severity     MismatchSeverity `json:"severity"`
	Category     string           `json:"category,omitempty"`
	Requirements int              `json:"requirements"`
	CoveredByCV  int              `json:"covered_by_cv"`
	Explanation  string           `json:"explanation"`
}

// RailAdjustment records one safety-rail change so the final score can be re-derived.
type RailAdjustment struct {
	Rail   string `json:"rail"`
	Field  string `json:"field"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

// MatchResult is the immutable output of one pipeline run.
type MatchResult struct {
	OverallScore        int `json:"overall_score"`
	SkillsScore         int `json:"skills_score"`
	ExperienceScore     int `json:"experience_score"`
	QualificationsScore int `json:"qualifications_score"`
	BaseSkillsScore     int `json:"base_skills_score"`

	MatchedMustHave   []RequirementMatch `json:"matched_must_have"`
	MissingMustHave   []RequirementMatch `json:"missing_must_have"`
	MatchedNiceToHave []RequirementMatch `json:"matched_nice_to_have"`
	MissingNiceToHave []RequirementMatch `json:"missing_nice_to_have"`

	ExperienceMatch ExperienceMatch `json:"experience_match"`
	EducationMatch  EducationMatch  `json:"education_match"`
	ManagementMatch ManagementMatch `json:"management_match"`

	TransferabilityDetails []TransferabilityAssessment `json:"transferability_details"`

	Strengths       []string `json:"strengths"`
	Gaps            []string `json:"gaps"`
	Recommendations []string `json:"recommendations"`

	DomainFit       DomainFit        `json:"domain_fit"`
	DomainAnalysis  DomainAnalysis   `json:"domain_analysis"`
	RailAdjustments []RailAdjustment `json:"rail_adjustments"`

	ScoringMethod string    `json:"scoring_method"`
	Degraded      bool      `json:"degraded"`
	Warnings      []string  `json:"warnings,omitempty"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}
